package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/linkstash/linkstash/internal/httpserver/deps"
	"github.com/linkstash/linkstash/internal/logger"
)

func TestHealthzReportsUptimeFromInjectedClock(t *testing.T) {
	start := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	d := deps.Deps{
		Logger:    logger.NewNop(),
		StartTime: start,
		Version:   "1.2.3",
		TimeNow:   func() time.Time { return start.Add(90 * time.Second) },
	}

	rec := httptest.NewRecorder()
	Healthz(d).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp healthzResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
	if resp.UptimeSeconds != 90 {
		t.Errorf("uptime = %v, want 90", resp.UptimeSeconds)
	}
	if resp.Version != "1.2.3" {
		t.Errorf("version = %q, want 1.2.3", resp.Version)
	}
}
