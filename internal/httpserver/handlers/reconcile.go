package handlers

import (
	"net/http"

	"github.com/linkstash/linkstash/internal/httpserver/deps"
	"github.com/linkstash/linkstash/internal/logger"
)

// Reconcile triggers a manual metadata reconciliation pass.
func Reconcile(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case d.ReconcileTrigger <- struct{}{}:
			d.Logger.Info("manual metadata reconciliation triggered via endpoint",
				logger.String("remote_ip", r.RemoteAddr))
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte("reconciliation triggered\n"))
		default:
			d.Logger.Warn("metadata reconciliation already in progress",
				logger.String("remote_ip", r.RemoteAddr))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte("reconciliation already in progress\n"))
		}
	}
}
