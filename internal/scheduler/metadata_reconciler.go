package scheduler

import (
	"context"
	"time"

	"github.com/linkstash/linkstash/internal/logger"
)

const (
	// DefaultReconcileInterval is how often the repair pass runs.
	DefaultReconcileInterval = 6 * time.Hour

	// DefaultRearmBackdate is how far past the retry cooldown re-armed
	// records are back-dated, so the next enrichment pass retries them
	// without waiting.
	DefaultRearmBackdate = 2 * time.Minute
)

// RearmStore is the store operation the reconciler drives.
type RearmStore interface {
	RearmStaleMetadata(ctx context.Context, backdate time.Duration) (int64, error)
}

// MetadataReconciler periodically repairs records that were marked
// metadata-complete while holding only the fallback title. Safe to run
// concurrently with live enrichment: the repair is a single UPDATE and
// already-repaired rows no longer match its predicate.
type MetadataReconciler struct {
	store         RearmStore
	logger        logger.Logger
	interval      time.Duration
	backdate      time.Duration
	stopCh        chan struct{}
	manualTrigger chan struct{}
}

// NewMetadataReconciler creates a new reconciliation job.
func NewMetadataReconciler(
	store RearmStore,
	log logger.Logger,
	interval time.Duration,
	manualTrigger chan struct{},
) *MetadataReconciler {
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}

	return &MetadataReconciler{
		store:         store,
		logger:        log,
		interval:      interval,
		backdate:      DefaultRearmBackdate,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// Start begins the periodic reconciliation process
func (mr *MetadataReconciler) Start(ctx context.Context) error {
	// Run immediately on start
	if err := mr.Reconcile(ctx); err != nil {
		mr.logger.Warn("initial metadata reconciliation failed",
			logger.Error(err))
	}

	ticker := time.NewTicker(mr.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := mr.Reconcile(ctx); err != nil {
					mr.logger.Error("metadata reconciliation failed",
						logger.Error(err))
				}
			case <-mr.manualTrigger:
				mr.logger.Info("manual metadata reconciliation triggered")
				if err := mr.Reconcile(ctx); err != nil {
					mr.logger.Error("metadata reconciliation failed",
						logger.Error(err))
				}
			case <-mr.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the reconciler
func (mr *MetadataReconciler) Stop() {
	close(mr.stopCh)
}

// Reconcile runs one repair pass.
func (mr *MetadataReconciler) Reconcile(ctx context.Context) error {
	mr.logger.Debug("running metadata reconciliation pass")

	rearmed, err := mr.store.RearmStaleMetadata(ctx, mr.backdate)
	if err != nil {
		return err
	}

	if rearmed > 0 {
		mr.logger.Info("metadata reconciliation completed",
			logger.Int64("rearmed", rearmed))
	} else {
		mr.logger.Debug("no stale metadata records found")
	}

	return nil
}
