package workflow

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/fir_backend/config"
)

// ReconcileStaleDrafts removes drafts whose fir_number already exists in
// the final store. Such rows are leftovers from an approve migration that
// crashed between the final insert and the draft delete; the final record
// is authoritative, so the draft is safe to drop.
func ReconcileStaleDrafts(ctx context.Context, db *gorm.DB) (int64, error) {
	result := db.WithContext(ctx).Exec(`
		DELETE d FROM draft_firs d
		JOIN final_firs f ON f.fir_number = d.fir_number
	`)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		config.RemoveRedisKey("fir:counts")
	}
	return result.RowsAffected, result.Error
}

// RunReconciler sweeps on a fixed interval until ctx is cancelled.
// Enabled via FIR_RECONCILE_INTERVAL; the ops endpoint triggers the same
// sweep on demand.
func RunReconciler(ctx context.Context, db *gorm.DB, logger *logrus.Logger, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := ReconcileStaleDrafts(ctx, db)
			if err != nil {
				config.LogError(logger, "workflow", "RunReconciler", "reconcile stale drafts", nil, err)
				continue
			}
			if removed > 0 && logger != nil {
				logger.WithFields(logrus.Fields{
					"field":   "Reconciler",
					"removed": removed,
				}).Info("removed stale drafts left by interrupted approvals")
			}
		}
	}
}
