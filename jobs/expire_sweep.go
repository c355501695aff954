package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/smetaflow/smetaflow/internal/jobs"
)

// ExpireService is the slice of the estimates service the sweep needs.
type ExpireService interface {
	ExpireOverdue(ctx context.Context, asOf time.Time) (int, error)
}

// ExpireSweepJob transitions draft and sent estimates whose validity window
// has lapsed into the expired status.
type ExpireSweepJob struct {
	service ExpireService
	log     *slog.Logger
	track   *jobmetrics.Metrics
	clock   func() time.Time
}

// NewExpireSweepJob constructs an ExpireSweepJob.
func NewExpireSweepJob(service ExpireService, logger *slog.Logger, metrics *jobmetrics.Metrics) *ExpireSweepJob {
	return &ExpireSweepJob{service: service, log: logger, track: metrics, clock: time.Now}
}

// WithClock overrides the time source, mainly for tests.
func (j *ExpireSweepJob) WithClock(clock func() time.Time) {
	if clock != nil {
		j.clock = clock
	}
}

// Handle processes TaskEstimateExpireSweep tasks.
func (j *ExpireSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ExpireSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	asOf := payload.AsOf
	if asOf.IsZero() {
		asOf = j.now()
	}

	tracker := j.metrics().Track(TaskEstimateExpireSweep)
	start := j.now()
	expired, err := j.service.ExpireOverdue(ctx, asOf)
	if err != nil {
		j.logger().Error("expire sweep", slog.Any("error", err))
		return tracker.End(err)
	}
	j.logger().Info("expire sweep finished",
		slog.String("job", TaskEstimateExpireSweep),
		slog.Int("expired", expired),
		slog.Duration("took", j.now().Sub(start)),
	)
	return tracker.End(nil)
}

func (j *ExpireSweepJob) logger() *slog.Logger {
	if j.log != nil {
		return j.log
	}
	return slog.Default()
}

func (j *ExpireSweepJob) metrics() *jobmetrics.Metrics {
	return j.track
}

func (j *ExpireSweepJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now()
}
