package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/steady/job"
)

// Logging returns middleware that logs the start and outcome of each
// execution attempt.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		logger.Info("execution started",
			slog.String("job_name", j.Name),
			slog.String("job_id", j.ID.String()),
			slog.String("queue", j.Queue),
			slog.Int("attempt", j.ExecutionsCount),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("execution failed",
				slog.String("job_name", j.Name),
				slog.String("job_id", j.ID.String()),
				slog.Int("attempt", j.ExecutionsCount),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("execution completed",
				slog.String("job_name", j.Name),
				slog.String("job_id", j.ID.String()),
				slog.Int("attempt", j.ExecutionsCount),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
