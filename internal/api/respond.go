package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/qabilityp/namechecker/internal/nationality"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

// writeError maps lookup and ranking errors to their HTTP responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		vErr  *nationality.ValidationError
		nfErr *nationality.NotFoundError
		cnErr *nationality.CountryNotFoundError
		ndErr *nationality.NoDataError
		upErr *nationality.UpstreamError
	)
	switch {
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": vErr.Error()})
	case errors.As(err, &nfErr):
		writeJSON(w, http.StatusNotFound, map[string]string{"message": nfErr.Error()})
	case errors.As(err, &cnErr):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": cnErr.Error()})
	case errors.As(err, &ndErr):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": ndErr.Error()})
	case errors.As(err, &upErr):
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "Failed to fetch data from external API: " + upErr.Error(),
		})
	default:
		zap.L().Error("api: request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
}

func decodeJSON(r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20)
	return json.NewDecoder(r.Body).Decode(v)
}
