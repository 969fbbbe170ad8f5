package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SessionPurger deletes sessions that are past their expiry.
type SessionPurger interface {
	PurgeExpiredSessions(ctx context.Context) (int64, error)
}

func SessionCleanupHandler(purger SessionPurger, logger *slog.Logger) JobHandler {
	return func(ctx context.Context, job *Job) error {
		purged, err := purger.PurgeExpiredSessions(ctx)
		if err != nil {
			return err
		}
		logger.Info("expired sessions purged", slog.Int64("count", purged), slog.String("job_id", job.ID))
		return nil
	}
}

// TickKey names the wall-clock window of length interval that t falls in.
// Replicas ticking inside the same window derive the same key.
func TickKey(name string, t time.Time, interval time.Duration) string {
	return fmt.Sprintf("locks:%s:%d", name, t.Truncate(interval).UnixMilli())
}

// Every calls fn immediately and then once per interval until ctx is done.
// Errors are logged and do not stop the loop.
func Every(ctx context.Context, interval time.Duration, logger *slog.Logger, name string, fn func(ctx context.Context) error) {
	if interval <= 0 {
		return
	}

	run := func() {
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			logger.Error("periodic task failed", slog.String("task", name), slog.String("error", err.Error()))
		}
	}

	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}
