package metrics

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCronJobMetrics(reg)
	job := "loan-maintenance"
	metrics.ObserveDuration(job, 250*time.Millisecond)
	metrics.IncSuccess(job)
	metrics.IncFailure(job)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "library_cron_job_success_total", map[string]string{"job": job}); err != nil {
		t.Fatalf("fetch success: %v", err)
	} else if got != 1 {
		t.Fatalf("expected success=1, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "library_cron_job_failure_total", map[string]string{"job": job}); err != nil {
		t.Fatalf("fetch failure: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failure=1, got %f", got)
	}
	if got, err := fetchHistogramSum(mfs, "library_cron_job_duration_seconds", map[string]string{"job": job}); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestLoanMetricsCountsTransitionsAndSweeps(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewLoanMetrics(reg)
	metrics.ObserveTransition("request_borrow", OutcomeSuccess)
	metrics.ObserveTransition("request_borrow", OutcomeSuccess)
	metrics.ObserveTransition("request_borrow", OutcomeRejected)
	metrics.ObserveSweep(2, 5)
	metrics.ObserveSweep(0, 1)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	got, err := fetchCounterValue(mfs, "library_loans_transitions_total", map[string]string{"operation": "request_borrow", "outcome": OutcomeSuccess})
	if err != nil || got != 2 {
		t.Fatalf("expected 2 successful borrows, got %f (%v)", got, err)
	}
	got, err = fetchCounterValue(mfs, "library_loans_sweep_records_total", map[string]string{"kind": "reservations_expired"})
	if err != nil || got != 6 {
		t.Fatalf("expected 6 expired reservations, got %f (%v)", got, err)
	}
}

func TestNilRecordersAreSafe(t *testing.T) {
	var cron *CronJobMetrics
	cron.IncSuccess("job")
	var loans *LoanMetrics
	loans.ObserveTransition("op", OutcomeError)
	loans.ObserveSweep(1, 1)
	var outbox *OutboxMetrics
	outbox.IncPublished("reservation_created")
	NewOutboxMetrics(nil).IncDeadLettered("reservation_created")
}

func TestHandlerServesRegisteredMetrics(t *testing.T) {
	reg := NewRegistry()
	NewOutboxMetrics(reg).IncPublished("return_confirmed")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `library_outbox_published_total{event_type="return_confirmed"} 1`) {
		t.Fatalf("published counter missing from output")
	}
}

func fetchCounterValue(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabels(metric.GetLabel(), labels) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing labels %v", name, labels)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabels(metric.GetLabel(), labels) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing labels %v", name, labels)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, pair := range pairs {
		if v, ok := want[pair.GetName()]; ok && v == pair.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
