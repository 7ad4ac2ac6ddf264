package routes

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/linkstash/linkstash/internal/httpserver/deps"
	"github.com/linkstash/linkstash/internal/httpserver/handlers"
	"github.com/linkstash/linkstash/internal/httpserver/mw"
)

func init() { Register(registerLinks) }

func registerLinks(r chi.Router, d deps.Deps) {
	r.Route("/api/links", func(r chi.Router) {
		r.Use(middleware.Timeout(15 * time.Second))
		r.Use(mw.RequireOwner())

		r.Post("/", handlers.CreateLink(d))
		r.Get("/", handlers.ListLinks(d))
		r.Get("/{id}", handlers.GetLink(d))
		r.Patch("/{id}", handlers.PatchLink(d))
		r.Delete("/{id}", handlers.DeleteLink(d))
		r.Post("/{id}/enrich", handlers.EnrichLink(d))
	})
}
