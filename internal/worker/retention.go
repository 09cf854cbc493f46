package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"dredge/internal/config"
	"dredge/internal/metrics"
)

// CleanupExpiredRuns deletes terminal runs older than the retention
// window. Database rows cascade to documents and resource records;
// bucket objects are not swept.
func CleanupExpiredRuns(ctx context.Context, cfg config.RetentionConfig, st queueStore) int64 {
	if cfg.RunsDays <= 0 {
		return 0
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -cfg.RunsDays)

	n, err := st.DeleteRunsCompletedBefore(ctx, cutoff)
	if err != nil {
		zap.L().Warn("retention cleanup failed", zap.Error(err))
		return 0
	}
	if n > 0 {
		metrics.RecordRetentionRuns(n)
		zap.L().Info("retention cleanup removed runs",
			zap.Int64("deleted", n),
			zap.Time("cutoff", cutoff))
	}
	return n
}
