package jobs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/assets"
	"github.com/odyssey-erp/odyssey-ledger/internal/domain"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledgertest"
)

type stubRunner struct {
	periodEnd time.Time
	creator   string
	result    assets.BatchResult
	err       error
}

func (s *stubRunner) RunBatch(_ context.Context, periodEnd time.Time, creator string) (assets.BatchResult, error) {
	s.periodEnd = periodEnd
	s.creator = creator
	return s.result, s.err
}

func TestDepreciationJobDefaultsToPreviousMonth(t *testing.T) {
	runner := &stubRunner{}
	job := NewDepreciationJob(runner, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	job.clock = func() time.Time { return time.Date(2024, time.March, 14, 9, 0, 0, 0, time.UTC) }

	task, err := NewDepreciationTask(time.Time{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, ledgertest.Date(2024, time.February, 29), runner.periodEnd)
	require.Equal(t, "scheduler", runner.creator)
}

func TestDepreciationJobNormalisesExplicitMonth(t *testing.T) {
	runner := &stubRunner{}
	job := NewDepreciationJob(runner, nil, nil)

	task, err := NewDepreciationTask(ledgertest.Date(2024, time.April, 3))
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, ledgertest.Date(2024, time.April, 30), runner.periodEnd)
}

func TestDepreciationJobFailsOnAssetFailures(t *testing.T) {
	runner := &stubRunner{result: assets.BatchResult{
		Skipped:  []string{"VAN"},
		Failures: map[string]error{"PRESS": domain.ErrConcurrencyConflict},
	}}
	job := NewDepreciationJob(runner, nil, nil)
	task, err := NewDepreciationTask(ledgertest.Date(2024, time.April, 30))
	require.NoError(t, err)
	require.Error(t, job.Handle(context.Background(), task))
}

func TestDepreciationJobSkipsRetryOnBadPayload(t *testing.T) {
	job := NewDepreciationJob(&stubRunner{}, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskDepreciationRun, []byte(`{"period_end":"April"}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), asynq.NewTask(TaskDepreciationRun, []byte(`not json`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type stubVerifier struct {
	report ledger.IntegrityReport
	err    error
}

func (s stubVerifier) VerifyLedger(context.Context) (ledger.IntegrityReport, error) {
	return s.report, s.err
}

func TestLedgerIntegrityJob(t *testing.T) {
	task, err := NewIntegrityTask(time.Now())
	require.NoError(t, err)

	ok := NewLedgerIntegrityJob(stubVerifier{report: ledger.IntegrityReport{
		Accounts:    3,
		Rows:        4,
		TotalDebit:  domain.MustAmount("10"),
		TotalCredit: domain.MustAmount("10"),
	}}, nil, nil)
	require.NoError(t, ok.Handle(context.Background(), task))

	broken := NewLedgerIntegrityJob(stubVerifier{report: ledger.IntegrityReport{
		TotalDebit:  domain.MustAmount("10"),
		TotalCredit: domain.MustAmount("10"),
		Mismatches:  []error{&ledger.IntegrityError{AccountCode: "1000", RowID: 7}},
	}}, nil, nil)
	require.ErrorIs(t, broken.Handle(context.Background(), task), ledger.ErrIntegrity)

	storage := NewLedgerIntegrityJob(stubVerifier{err: domain.ErrStorageFailure}, nil, nil)
	require.ErrorIs(t, storage.Handle(context.Background(), task), domain.ErrStorageFailure)
}

func TestLedgerIntegrityJobAgainstMemstore(t *testing.T) {
	st := ledgertest.Seed(t)
	poster := ledger.NewPoster(st, nil, nil, ledger.Config{})
	_, err := poster.Post(context.Background(), ledger.PostingInput{
		Transaction: domain.Transaction{ReferenceNo: "JOB-1"},
		Entry:       ledgertest.Entry(ledgertest.Date(2024, time.May, 2), ledgertest.Cash, ledgertest.Capital, "500"),
	})
	require.NoError(t, err)

	task, err := NewIntegrityTask(time.Now())
	require.NoError(t, err)
	require.NoError(t, NewLedgerIntegrityJob(poster, nil, nil).Handle(context.Background(), task))
}

func TestTaskPayloads(t *testing.T) {
	task, err := NewDepreciationTask(ledgertest.Date(2024, time.June, 30))
	require.NoError(t, err)
	require.Equal(t, TaskDepreciationRun, task.Type())
	var payload DepreciationPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, "2024-06-30", payload.PeriodEnd)
}

func TestHealthWithoutInspector(t *testing.T) {
	h := NewHandler(nil, nil)
	rec := httptest.NewRecorder()
	h.health(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body queueHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, QueueDefault, body.Queue)
}
