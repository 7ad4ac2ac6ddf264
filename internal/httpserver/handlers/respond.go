package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/linkstash/linkstash/internal/errclass"
	pgstore "github.com/linkstash/linkstash/internal/store/postgres"
)

type errorResponse struct {
	Error      string `json:"error"`
	Category   string `json:"category"`
	Suggestion string `json:"suggestion,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError classifies err into a user-facing message and maps its category
// to an HTTP status.
func writeError(w http.ResponseWriter, err error) {
	c := errclass.Classify(err)

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, pgstore.ErrNotFound):
		status = http.StatusNotFound
	case c.Category == errclass.CategoryInvalidURL:
		status = http.StatusBadRequest
	case c.Category == errclass.CategoryDuplicateLink:
		status = http.StatusConflict
	case c.Category == errclass.CategoryAuthExpired:
		status = http.StatusUnauthorized
	case c.Category == errclass.CategoryPermissionDenied:
		status = http.StatusForbidden
	case c.Category == errclass.CategoryRateLimited:
		status = http.StatusTooManyRequests
	case c.Category == errclass.CategoryUpstreamUnavailable:
		status = http.StatusBadGateway
	}

	writeJSON(w, status, errorResponse{
		Error:      c.Message,
		Category:   string(c.Category),
		Suggestion: c.Suggestion,
	})
}
