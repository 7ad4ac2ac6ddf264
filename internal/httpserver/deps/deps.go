package deps

import (
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/linkstash/linkstash/internal/enrich"
	"github.com/linkstash/linkstash/internal/logger"
	"github.com/linkstash/linkstash/internal/metadata"
	pgstore "github.com/linkstash/linkstash/internal/store/postgres"
	"github.com/linkstash/linkstash/internal/stream"
)

type Deps struct {
	Logger           logger.Logger
	StartTime        time.Time
	Version          string
	Commit           string
	BuildDate        string
	GoVersion        string
	TimeNow          func() time.Time    // clock for uptime reporting, nil means time.Now
	AdminCIDRS       []string            // IPs allowed to hit admin endpoints (readyz, reconcile)
	TrustProxy       bool                // true if running behind a trusted reverse proxy
	DB               *sql.DB             // Postgres connection pool, probed by readyz
	RedisClient      *redis.Client       // Redis client connection, probed by readyz (may be nil)
	Store            *pgstore.Store      // Durable link store
	Extractor        *metadata.Extractor // On-demand metadata extraction
	Enricher         *enrich.Enricher    // Cooldown-gated enrichment of stored links
	Hub              *stream.Hub         // Change event fan-out to connected devices
	ReconcileTrigger chan struct{}       // Channel to trigger manual metadata reconciliation
}
