package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/linkstash/linkstash/internal/httpserver/deps"
)

type readyzResponse struct {
	Ready      bool            `json:"ready"`
	Components map[string]bool `json:"components"`
}

// Readyz probes the durable store and the metadata cache. Postgres is the
// source of truth so it gates readiness; Redis only degrades extraction and
// is reported but never fails the probe.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		pgOK := d.DB != nil && d.DB.PingContext(ctx) == nil
		redisOK := d.RedisClient != nil && d.RedisClient.Ping(ctx).Err() == nil

		status := http.StatusOK
		if !pgOK {
			status = http.StatusServiceUnavailable
		}

		writeJSON(w, status, readyzResponse{
			Ready: pgOK,
			Components: map[string]bool{
				"postgres": pgOK,
				"redis":    redisOK,
			},
		})
	}
}
