package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/qabilityp/namechecker/internal/auth"
	"github.com/qabilityp/namechecker/internal/model"
)

const msgFieldRequired = "This field is required."

// Accounts registers users and issues tokens.
type Accounts interface {
	Register(ctx context.Context, username, password string) (*model.User, error)
	Obtain(ctx context.Context, username, password string) (*auth.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
}

// AuthHandler serves registration and token endpoints.
type AuthHandler struct {
	accounts Accounts
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(accounts Accounts) *AuthHandler {
	return &AuthHandler{accounts: accounts}
}

// Register mounts the account endpoints on r.
func (h *AuthHandler) Register(r chi.Router) {
	r.Post("/register/", h.HandleRegister)
	r.Post("/token/", h.HandleObtain)
	r.Post("/token/refresh/", h.HandleRefresh)
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleRegister handles POST /register/.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "JSON parse error"})
		return
	}

	user, err := h.accounts.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		var fe auth.FieldErrors
		if errors.As(err, &fe) {
			writeJSON(w, http.StatusBadRequest, fe)
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"username": user.Username})
}

// HandleObtain handles POST /token/.
func (h *AuthHandler) HandleObtain(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "JSON parse error"})
		return
	}
	missing := auth.FieldErrors{}
	if req.Username == "" {
		missing["username"] = []string{msgFieldRequired}
	}
	if req.Password == "" {
		missing["password"] = []string{msgFieldRequired}
	}
	if len(missing) > 0 {
		writeJSON(w, http.StatusBadRequest, missing)
		return
	}

	pair, err := h.accounts.Obtain(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": auth.ErrInvalidCredentials.Error()})
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// HandleRefresh handles POST /token/refresh/.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "JSON parse error"})
		return
	}
	if req.Refresh == "" {
		writeJSON(w, http.StatusBadRequest, auth.FieldErrors{"refresh": {msgFieldRequired}})
		return
	}

	access, err := h.accounts.Refresh(r.Context(), req.Refresh)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": auth.ErrInvalidToken.Error()})
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access": access})
}
