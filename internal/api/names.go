package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/qabilityp/namechecker/internal/model"
)

// Resolver answers name lookups.
type Resolver interface {
	Resolve(ctx context.Context, name string) (*model.Lookup, error)
}

// Ranker lists popular names for a country.
type Ranker interface {
	TopNames(ctx context.Context, code string, limit int) ([]model.PopularName, error)
}

// NamesHandler serves name lookups and popular-name rankings.
type NamesHandler struct {
	resolver Resolver
	ranker   Ranker
}

// NewNamesHandler creates a NamesHandler.
func NewNamesHandler(resolver Resolver, ranker Ranker) *NamesHandler {
	return &NamesHandler{resolver: resolver, ranker: ranker}
}

// Register mounts the lookup endpoints on r.
func (h *NamesHandler) Register(r chi.Router) {
	r.Get("/names/", h.HandleLookup)
	r.Get("/names", h.HandleLookup)
	r.Get("/popular/", h.HandlePopular)
	r.Get("/popular", h.HandlePopular)
}

// HandleLookup handles GET /names/?name=.
func (h *NamesHandler) HandleLookup(w http.ResponseWriter, r *http.Request) {
	lookup, err := h.resolver.Resolve(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lookup)
}

// HandlePopular handles GET /popular/?country=.
func (h *NamesHandler) HandlePopular(w http.ResponseWriter, r *http.Request) {
	top, err := h.ranker.TopNames(r.Context(), r.URL.Query().Get("country"), 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, top)
}
