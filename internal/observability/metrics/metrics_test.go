package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("event_type", "allocate"),
		attribute.String("invoice_id", "456"),
		attribute.String("method", "cash"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "event_type" || attrs[1].Key != "method" {
		t.Fatalf("unexpected attributes retained: %v", attrs)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordInvoiceGenerated(context.Background(), "new")
	m.RecordPaymentEvent(context.Background(), "refund")
	m.RecordRateLookupFailure(context.Background())
}

func TestNoopMetricsRecord(t *testing.T) {
	m := NewNoop()
	if m == nil {
		t.Fatalf("expected noop metrics")
	}
	m.RecordPayment(context.Background(), "cheque")
	m.RecordInvoiceNumberRetry(context.Background())
}
