package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

type ledgerVerifier interface {
	VerifyLedger(ctx context.Context) (ledger.IntegrityReport, error)
}

// LedgerIntegrityJob replays the general ledger and fails when any snapshot
// disagrees with the fold or debits differ from credits.
type LedgerIntegrityJob struct {
	Verifier ledgerVerifier
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewLedgerIntegrityJob initialises the integrity check handler.
func NewLedgerIntegrityJob(verifier ledgerVerifier, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{Verifier: verifier, Logger: logger, Metrics: metrics}
}

// Handle executes one verification.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Verifier == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	if len(t.Payload()) > 0 {
		var payload IntegrityPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("ledger integrity: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	tracker := j.Metrics.Track(TaskLedgerIntegrity)
	defer func() { err = tracker.End(err) }()

	logger := j.logger()
	report, err := j.Verifier.VerifyLedger(ctx)
	if err != nil {
		logger.Error("ledger integrity check failed", slog.Any("error", err))
		return err
	}
	j.Metrics.AddMismatches(len(report.Mismatches))
	if !report.Balanced() {
		for _, m := range report.Mismatches {
			logger.Error("ledger mismatch", slog.Any("error", m))
		}
		return fmt.Errorf("%w: %d mismatches", ledger.ErrIntegrity, len(report.Mismatches))
	}
	logger.Info("ledger integrity check passed",
		slog.Int("accounts", report.Accounts),
		slog.Int("rows", report.Rows),
		slog.String("total_debit", report.TotalDebit.String()),
	)
	return nil
}

func (j *LedgerIntegrityJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default().With(slog.String("job", TaskLedgerIntegrity))
	}
	return j.Logger.With(slog.String("job", TaskLedgerIntegrity))
}
