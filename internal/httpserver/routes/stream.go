package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/linkstash/linkstash/internal/httpserver/deps"
	"github.com/linkstash/linkstash/internal/httpserver/handlers"
	"github.com/linkstash/linkstash/internal/httpserver/mw"
)

func init() { Register(registerStream) }

// No request timeout here: the websocket lives until the client disconnects
// or the server shuts down.
func registerStream(r chi.Router, d deps.Deps) {
	r.With(mw.RequireOwner()).Get("/api/stream", handlers.Stream(d))
}
