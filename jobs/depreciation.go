package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/assets"
	"github.com/odyssey-erp/odyssey-ledger/internal/domain"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

type batchRunner interface {
	RunBatch(ctx context.Context, periodEnd time.Time, creator string) (assets.BatchResult, error)
}

// DepreciationJob runs the monthly depreciation batch.
type DepreciationJob struct {
	Runner  batchRunner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewDepreciationJob initialises the depreciation handler.
func NewDepreciationJob(runner batchRunner, logger *slog.Logger, metrics *jobmetrics.Metrics) *DepreciationJob {
	return &DepreciationJob{
		Runner:  runner,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle depreciates every active asset. Assets already depreciated for the
// month are skipped, so redelivery is harmless. Any per-asset failure fails
// the task so asynq retries the batch.
func (j *DepreciationJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Runner == nil {
		return errors.New("depreciation: handler not configured")
	}
	var payload DepreciationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("depreciation: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	periodEnd, err := j.periodEnd(payload.PeriodEnd)
	if err != nil {
		return fmt.Errorf("depreciation: %v: %w", err, asynq.SkipRetry)
	}
	creator := payload.Creator
	if creator == "" {
		creator = "scheduler"
	}

	tracker := j.Metrics.Track(TaskDepreciationRun)
	defer func() { err = tracker.End(err) }()

	logger := j.logger().With(slog.String("period_end", periodEnd.Format(payloadDateLayout)))
	start := time.Now()
	res, err := j.Runner.RunBatch(ctx, periodEnd, creator)
	if err != nil {
		logger.Error("depreciation batch failed", slog.Any("error", err))
		return err
	}
	j.Metrics.AddAssets("depreciated", len(res.Records))
	j.Metrics.AddAssets("skipped", len(res.Skipped))
	j.Metrics.AddAssets("failed", len(res.Failures))
	for code, ferr := range res.Failures {
		logger.Warn("asset depreciation failed", slog.String("asset", code), slog.Any("error", ferr))
	}
	logger.Info("depreciation batch completed",
		slog.Int("depreciated", len(res.Records)),
		slog.Int("skipped", len(res.Skipped)),
		slog.Int("failed", len(res.Failures)),
		slog.Duration("duration", time.Since(start)),
	)
	if len(res.Failures) > 0 {
		return fmt.Errorf("depreciation: %d assets failed", len(res.Failures))
	}
	return nil
}

func (j *DepreciationJob) periodEnd(raw string) (time.Time, error) {
	if raw == "" {
		now := j.clock()
		firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return firstOfMonth.AddDate(0, 0, -1), nil
	}
	t, err := time.Parse(payloadDateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("period_end %q: %w", raw, err)
	}
	return domain.MonthEnd(t), nil
}

func (j *DepreciationJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default().With(slog.String("job", TaskDepreciationRun))
	}
	return j.Logger.With(slog.String("job", TaskDepreciationRun))
}
