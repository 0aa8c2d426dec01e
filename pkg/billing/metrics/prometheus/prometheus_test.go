package prommetrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gatherFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	for _, family := range families {
		if family.GetName() == name {
			return family
		}
	}
	return nil
}

func counterValue(family *dto.MetricFamily, labels map[string]string) float64 {
	if family == nil {
		return 0
	}
	for _, metric := range family.GetMetric() {
		match := true
		for _, pair := range metric.GetLabel() {
			if want, ok := labels[pair.GetName()]; ok && want != pair.GetValue() {
				match = false
				break
			}
		}
		if match {
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	if metrics := NewMetrics(reg, "test"); metrics == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordWebhookEvent(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordWebhookEvent("stripe", "checkout.session.completed", "success")
	metrics.RecordWebhookEvent("stripe", "checkout.session.completed", "success")
	metrics.RecordWebhookEvent("stripe", "invoice.payment_succeeded", "skipped")

	family := gatherFamily(t, reg, "test_billing_webhook_events_total")
	if got := counterValue(family, map[string]string{
		"provider":   "stripe",
		"event_type": "checkout.session.completed",
		"status":     "success",
	}); got != 2 {
		t.Errorf("Expected 2 successful checkout events, got %v", got)
	}
	if got := counterValue(family, map[string]string{"status": "skipped"}); got != 1 {
		t.Errorf("Expected 1 skipped event, got %v", got)
	}
}

func TestRecordWebhookError(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordWebhookError("stripe", "auth_failed")

	family := gatherFamily(t, reg, "test_billing_webhook_errors_total")
	if got := counterValue(family, map[string]string{"error_type": "auth_failed"}); got != 1 {
		t.Errorf("Expected 1 auth_failed error, got %v", got)
	}
}

func TestRecordWebhookProcessingDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordWebhookProcessingDuration("stripe", "checkout.session.completed", 20*time.Millisecond)

	family := gatherFamily(t, reg, "test_billing_webhook_processing_duration_seconds")
	if family == nil {
		t.Fatal("Expected duration histogram to be registered")
	}
	if family.GetMetric()[0].GetHistogram().GetSampleCount() != 1 {
		t.Error("Expected 1 histogram sample")
	}
}

func TestRecordSubscriptionChange(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordSubscriptionChange("stripe", "none", "active")
	metrics.RecordSubscriptionChange("stripe", "active", "canceled")

	family := gatherFamily(t, reg, "test_billing_subscription_changes_total")
	if got := counterValue(family, map[string]string{"from_status": "none", "to_status": "active"}); got != 1 {
		t.Errorf("Expected 1 activation transition, got %v", got)
	}
	if got := counterValue(family, map[string]string{"from_status": "active", "to_status": "canceled"}); got != 1 {
		t.Errorf("Expected 1 cancellation transition, got %v", got)
	}
}

func TestRecordAccountSync(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordAccountSync("stripe", "success")

	family := gatherFamily(t, reg, "test_billing_account_sync_total")
	if got := counterValue(family, map[string]string{"status": "success"}); got != 1 {
		t.Errorf("Expected 1 sync, got %v", got)
	}
}

func TestRecordAPICall(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordAPICall("stripe", "checkout_sessions", "success")
	metrics.RecordAPICallDuration("stripe", "checkout_sessions", 100*time.Millisecond)

	calls := gatherFamily(t, reg, "test_billing_api_calls_total")
	if got := counterValue(calls, map[string]string{"endpoint": "checkout_sessions"}); got != 1 {
		t.Errorf("Expected 1 API call, got %v", got)
	}
	durations := gatherFamily(t, reg, "test_billing_api_call_duration_seconds")
	if durations == nil {
		t.Fatal("Expected API call duration histogram to be registered")
	}
}
