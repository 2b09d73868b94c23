package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity replays every account and checks the stored snapshots.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskDepreciationRun depreciates every active asset for one month.
	TaskDepreciationRun = "assets:depreciation"
)

const payloadDateLayout = "2006-01-02"

// DepreciationPayload selects the month to depreciate. An empty PeriodEnd
// means the month that ended before the task ran.
type DepreciationPayload struct {
	PeriodEnd string `json:"period_end,omitempty"`
	Creator   string `json:"creator,omitempty"`
}

// IntegrityPayload carries scheduling metadata for integrity checks.
type IntegrityPayload struct {
	ScheduledFor time.Time `json:"scheduled_for,omitempty"`
}

// NewDepreciationTask constructs an Asynq task for a depreciation batch. A
// zero periodEnd defers the month choice to the worker.
func NewDepreciationTask(periodEnd time.Time) (*asynq.Task, error) {
	payload := DepreciationPayload{Creator: "scheduler"}
	if !periodEnd.IsZero() {
		payload.PeriodEnd = periodEnd.Format(payloadDateLayout)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDepreciationRun, body, asynq.Queue(QueueDefault)), nil
}

// NewIntegrityTask constructs an Asynq task for a ledger integrity check.
func NewIntegrityTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(IntegrityPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, body, asynq.Queue(QueueDefault)), nil
}
