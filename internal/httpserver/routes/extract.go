package routes

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/linkstash/linkstash/internal/httpserver/deps"
	"github.com/linkstash/linkstash/internal/httpserver/handlers"
	"github.com/linkstash/linkstash/internal/httpserver/mw"
)

func init() { Register(registerExtract) }

func registerExtract(r chi.Router, d deps.Deps) {
	// Extraction waits on an arbitrary origin; give it the full extractor
	// timeout plus slack.
	r.With(middleware.Timeout(15*time.Second), mw.RequireOwner()).
		Post("/api/extract", handlers.Extract(d))
}
