package perf

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/domain"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledgertest"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

type flakyVerifier struct {
	next  *ledger.Poster
	fails int
}

func (v *flakyVerifier) VerifyLedger(ctx context.Context) (ledger.IntegrityReport, error) {
	if v.fails > 0 {
		v.fails--
		return ledger.IntegrityReport{}, errors.New("timeout")
	}
	return v.next.VerifyLedger(ctx)
}

func TestIntegrityJobThroughputAndReliability(t *testing.T) {
	st := ledgertest.Seed(t)
	poster := ledger.NewPoster(st, nil, nil, ledger.Config{MaxAttempts: 3})
	ctx := context.Background()
	for i := 0; i < 200; i++ {
		_, err := poster.Post(ctx, ledger.PostingInput{
			Transaction: domain.Transaction{ReferenceNo: fmt.Sprintf("JOB-%04d", i)},
			Entry:       ledgertest.Entry(ledgertest.Date(2024, time.March, 1+i/10), ledgertest.Supplies, ledgertest.Cash, "3.75"),
		})
		if err != nil {
			t.Fatalf("post %d: %v", i, err)
		}
	}

	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	job := jobs.NewLedgerIntegrityJob(&flakyVerifier{next: poster, fails: 2}, nil, metrics)
	task, err := jobs.NewIntegrityTask(time.Now())
	if err != nil {
		t.Fatalf("build task: %v", err)
	}

	failures := 0
	for i := 0; i < 30; i++ {
		if err := job.Handle(ctx, asynq.NewTask(task.Type(), task.Payload())); err != nil {
			failures++
		}
	}
	if failures != 2 {
		t.Fatalf("expected 2 injected failures, got %d", failures)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	success := metricValue(t, families, "odyssey_jobs_total", map[string]string{"job": jobs.TaskLedgerIntegrity, "status": "success"})
	failure := metricValue(t, families, "odyssey_jobs_total", map[string]string{"job": jobs.TaskLedgerIntegrity, "status": "failure"})
	if success+failure == 0 {
		t.Fatal("no integrity runs recorded")
	}
	if ratio := success / (success + failure); ratio < 0.9 {
		t.Fatalf("integrity job success ratio too low: %f", ratio)
	}

	mean := histogramMean(t, families, "odyssey_job_duration_seconds", map[string]string{"job": jobs.TaskLedgerIntegrity})
	if mean > 2.0 {
		t.Fatalf("integrity job duration above budget: %f", mean)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != val {
				return false
			}
		}
	}
	for key := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
