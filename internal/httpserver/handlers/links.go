package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/linkstash/linkstash/internal/canonical"
	"github.com/linkstash/linkstash/internal/domain"
	"github.com/linkstash/linkstash/internal/errclass"
	"github.com/linkstash/linkstash/internal/httpserver/deps"
	"github.com/linkstash/linkstash/internal/httpserver/mw"
	"github.com/linkstash/linkstash/internal/logger"
	pgstore "github.com/linkstash/linkstash/internal/store/postgres"
)

type createLinkRequest struct {
	URL     string  `json:"url"`
	Title   string  `json:"title,omitempty"`
	SpaceID *string `json:"spaceId,omitempty"`
}

type duplicateResponse struct {
	Error string       `json:"error"`
	Link  *domain.Link `json:"link"`
}

// CreateLink canonicalizes the submitted URL and inserts the row. The title
// starts as the domain fallback; enrichment fills it in asynchronously so the
// save itself never waits on the target page. A duplicate save answers 409
// carrying the existing row for the client to adopt.
func CreateLink(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createLinkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{
				Error:    "malformed request body",
				Category: string(errclass.CategoryInvalidURL),
			})
			return
		}

		res, err := canonical.Canonicalize(req.URL)
		if err != nil {
			writeError(w, err)
			return
		}

		owner := mw.Owner(r.Context())
		title := req.Title
		if title == "" {
			title = res.Domain
		}

		link := &domain.Link{
			OwnerID:      owner,
			RawURL:       req.URL,
			CanonicalURL: res.CanonicalURL,
			Domain:       res.Domain,
			Title:        title,
			SpaceID:      req.SpaceID,
		}

		created, err := d.Store.CreateLink(r.Context(), link)
		if err != nil {
			if errors.Is(err, pgstore.ErrDuplicateLink) {
				existing, lookupErr := d.Store.GetLinkByCanonicalURL(r.Context(), owner, res.CanonicalURL)
				if lookupErr != nil {
					writeError(w, err)
					return
				}
				writeJSON(w, http.StatusConflict, duplicateResponse{
					Error: "duplicate link: already saved",
					Link:  existing,
				})
				return
			}
			writeError(w, err)
			return
		}

		// Enrich out of band so the capture path stays fast. The request
		// context dies with the response, so the goroutine gets its own.
		if d.Enricher != nil {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if _, err := d.Enricher.Enrich(ctx, owner, created.ID); err != nil {
					d.Logger.Warn("background enrichment failed",
						logger.String("link_id", created.ID),
						logger.Error(err))
				}
			}()
		}

		writeJSON(w, http.StatusCreated, created)
	}
}

// ListLinks returns the owner's collection, optionally filtered by space.
func ListLinks(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var spaceID *string
		if v := r.URL.Query().Get("space"); v != "" {
			spaceID = &v
		}

		links, err := d.Store.ListLinks(r.Context(), mw.Owner(r.Context()), spaceID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, links)
	}
}

// GetLink returns one link by id.
func GetLink(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		link, err := d.Store.GetLink(r.Context(), mw.Owner(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, link)
	}
}

// PatchLink applies a partial update. Absent fields stay untouched, explicit
// nulls clear the field.
func PatchLink(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch domain.LinkPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{
				Error:    "malformed request body",
				Category: string(errclass.CategoryUnknown),
			})
			return
		}
		if patch.IsEmpty() {
			writeJSON(w, http.StatusBadRequest, errorResponse{
				Error:    "empty patch",
				Category: string(errclass.CategoryUnknown),
			})
			return
		}

		link, err := d.Store.UpdateLink(r.Context(), mw.Owner(r.Context()), chi.URLParam(r, "id"), patch)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, link)
	}
}

// DeleteLink removes one link.
func DeleteLink(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := d.Store.DeleteLink(r.Context(), mw.Owner(r.Context()), chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// EnrichLink runs one cooldown-gated extraction pass for the link and returns
// the resulting row. Clients call this for records still showing fallback
// metadata.
func EnrichLink(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		link, err := d.Enricher.Enrich(r.Context(), mw.Owner(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, link)
	}
}
