package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/linkstash/linkstash/internal/canonical"
	"github.com/linkstash/linkstash/internal/errclass"
	"github.com/linkstash/linkstash/internal/httpserver/deps"
)

type extractRequest struct {
	URL string `json:"url"`
}

// Extract runs a stateless extraction for the given URL without touching any
// stored link. Used by clients to preview a page before saving it.
func Extract(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req extractRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{
				Error:    "malformed request body",
				Category: string(errclass.CategoryInvalidURL),
			})
			return
		}

		if _, err := canonical.Canonicalize(req.URL); err != nil {
			writeError(w, err)
			return
		}

		// Fetch the page as submitted; canonicalization only validates.
		md, err := d.Extractor.Extract(r.Context(), canonical.FetchURL(req.URL))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, md)
	}
}
