package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes billing engine instruments.
type Metrics struct {
	invoicesGenerated    metric.Int64Counter
	invoiceNumberRetries metric.Int64Counter
	invoiceTransitions   metric.Int64Counter
	paymentsRecorded     metric.Int64Counter
	paymentEvents        metric.Int64Counter
	rateLookupFailures   metric.Int64Counter
	subscriptionEvents   metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "clinicbilling"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	var err error
	if m.invoicesGenerated, err = meter.Int64Counter("clinicbilling_invoices_generated_total"); err != nil {
		return nil, err
	}
	if m.invoiceNumberRetries, err = meter.Int64Counter("clinicbilling_invoice_number_retries_total"); err != nil {
		return nil, err
	}
	if m.invoiceTransitions, err = meter.Int64Counter("clinicbilling_invoice_transitions_total"); err != nil {
		return nil, err
	}
	if m.paymentsRecorded, err = meter.Int64Counter("clinicbilling_payments_recorded_total"); err != nil {
		return nil, err
	}
	if m.paymentEvents, err = meter.Int64Counter("clinicbilling_payment_events_total"); err != nil {
		return nil, err
	}
	if m.rateLookupFailures, err = meter.Int64Counter("clinicbilling_rate_lookup_failures_total"); err != nil {
		return nil, err
	}
	if m.subscriptionEvents, err = meter.Int64Counter("clinicbilling_subscription_events_total"); err != nil {
		return nil, err
	}
	return m, nil
}

// NewNoop returns instruments bound to a no-op provider.
func NewNoop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

// RecordInvoiceGenerated increments generated invoice counts by invoice type.
func (m *Metrics) RecordInvoiceGenerated(ctx context.Context, invoiceType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("invoice_type", strings.TrimSpace(invoiceType)))
	m.invoicesGenerated.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordInvoiceNumberRetry counts numbering collisions that forced a retry.
func (m *Metrics) RecordInvoiceNumberRetry(ctx context.Context) {
	if m == nil {
		return
	}
	m.invoiceNumberRetries.Add(ctx, 1)
}

// RecordInvoiceTransition counts invoice status changes such as void or write off.
func (m *Metrics) RecordInvoiceTransition(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("event_type", strings.TrimSpace(eventType)))
	m.invoiceTransitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPayment increments recorded payment counts by method.
func (m *Metrics) RecordPayment(ctx context.Context, method string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("method", strings.TrimSpace(method)))
	m.paymentsRecorded.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPaymentEvent counts allocation, deallocation, refund and cancel events.
func (m *Metrics) RecordPaymentEvent(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("event_type", strings.TrimSpace(eventType)))
	m.paymentEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLookupFailure counts unresolved currency pairs.
func (m *Metrics) RecordRateLookupFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.rateLookupFailures.Add(ctx, 1)
}

// RecordSubscriptionEvent counts subscription lifecycle transitions.
func (m *Metrics) RecordSubscriptionEvent(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("event_type", strings.TrimSpace(eventType)))
	m.subscriptionEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"invoice_type": {},
	"event_type":   {},
	"method":       {},
	"reason":       {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
