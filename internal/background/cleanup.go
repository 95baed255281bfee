package background

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/riskgate/internal/metrics"
)

// ObservationPruner deletes login observations recorded before cutoff
type ObservationPruner interface {
	DeleteObservationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupManager periodically prunes login history older than the retention window
type CleanupManager struct {
	pruner    ObservationPruner
	logger    *slog.Logger
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewCleanupManager creates a new cleanup manager. A zero retention disables pruning.
func NewCleanupManager(
	pruner ObservationPruner,
	logger *slog.Logger,
	retention time.Duration,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		pruner:    pruner,
		logger:    logger,
		retention: retention,
		interval:  interval,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// Enabled reports whether a retention window is configured
func (cm *CleanupManager) Enabled() bool {
	return cm.retention > 0 && cm.interval > 0
}

// Start runs the periodic cleanup until Stop is called or ctx is cancelled
func (cm *CleanupManager) Start(ctx context.Context) {
	if !cm.Enabled() {
		cm.logger.Info("history retention disabled, cleanup manager not started")
		return
	}

	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// runCleanup removes observations older than the retention window
func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cutoff := cm.now().Add(-cm.retention).UTC()
	rowsDeleted, err := cm.pruner.DeleteObservationsBefore(cleanupCtx, cutoff)
	if err != nil {
		cm.logger.Error("failed to prune login history", slog.Any("error", err))
		return
	}

	if rowsDeleted > 0 {
		metrics.HistoryPruned.Add(float64(rowsDeleted))
		cm.logger.Info("login history pruned",
			slog.Int64("rows_deleted", rowsDeleted),
			slog.Time("cutoff", cutoff))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}
