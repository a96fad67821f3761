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
	"go.opentelemetry.io/otel/sdk/resource"
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
	// Interval between exports; zero means ten seconds.
	Interval time.Duration
	Resource []attribute.KeyValue
}

// Metrics exposes composer instruments. A nil *Metrics records nothing.
type Metrics struct {
	meter            metric.Meter
	autosave         metric.Int64Counter
	save             metric.Int64Counter
	transition       metric.Int64Counter
	draftStoreFailed metric.Int64Counter
	draftsPurged     metric.Int64Counter
	jobDuration      metric.Float64Histogram
	remoteLatency    metric.Float64Histogram
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

	interval := cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(newResource(cfg)),
	)
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
			zap.Duration("interval", interval),
		)
	}

	return provider, nil
}

// New configures the composer instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "pocomposer"
	}
	meter := provider.Meter(name)

	autosave, err := meter.Int64Counter("po_autosave_total")
	if err != nil {
		return nil, err
	}
	save, err := meter.Int64Counter("po_save_total")
	if err != nil {
		return nil, err
	}
	transition, err := meter.Int64Counter("po_transition_total")
	if err != nil {
		return nil, err
	}
	draftStoreFailed, err := meter.Int64Counter("po_draft_store_failures_total")
	if err != nil {
		return nil, err
	}
	draftsPurged, err := meter.Int64Counter("po_drafts_purged_total")
	if err != nil {
		return nil, err
	}
	jobDuration, err := meter.Float64Histogram("po_scheduler_job_duration_seconds", metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	remoteLatency, err := meter.Float64Histogram("po_remote_request_duration_seconds", metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		meter:            meter,
		autosave:         autosave,
		save:             save,
		transition:       transition,
		draftStoreFailed: draftStoreFailed,
		draftsPurged:     draftsPurged,
		jobDuration:      jobDuration,
		remoteLatency:    remoteLatency,
	}, nil
}

// ObserveOpenSessions reports count() as the number of open composer
// sessions on every collection.
func (m *Metrics) ObserveOpenSessions(count func() int) error {
	if m == nil || count == nil {
		return nil
	}
	gauge, err := m.meter.Int64ObservableGauge("po_composer_sessions_open")
	if err != nil {
		return err
	}
	_, err = m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(gauge, int64(count()))
		return nil
	}, gauge)
	return err
}

// RecordAutosave counts debounced autosave attempts by result.
func (m *Metrics) RecordAutosave(ctx context.Context, result string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("result", strings.TrimSpace(result)))
	m.autosave.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordSave counts manual create-or-update saves by result.
func (m *Metrics) RecordSave(ctx context.Context, result string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("result", strings.TrimSpace(result)))
	m.save.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordTransition counts lifecycle transitions.
func (m *Metrics) RecordTransition(ctx context.Context, eventType, result string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("event_type", strings.TrimSpace(eventType)),
		attribute.String("result", strings.TrimSpace(result)),
	)
	m.transition.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordDraftStoreFailure counts local persistence failures.
func (m *Metrics) RecordDraftStoreFailure(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.draftStoreFailed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordDraftsPurged counts expired drafts removed by the scheduler.
func (m *Metrics) RecordDraftsPurged(ctx context.Context, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.draftsPurged.Add(ctx, n)
}

// ObserveJob records one scheduler job run.
func (m *Metrics) ObserveJob(ctx context.Context, job, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("job", strings.TrimSpace(job)),
		attribute.String("result", strings.TrimSpace(result)),
	)
	m.jobDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
}

// ObserveRemoteRequest records authority round trips.
func (m *Metrics) ObserveRemoteRequest(ctx context.Context, operation string, statusCode int, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("operation", strings.TrimSpace(operation)),
		attribute.Int("status_code", statusCode),
	)
	m.remoteLatency.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
}

func newResource(cfg Config) *resource.Resource {
	if len(cfg.Resource) > 0 {
		return resource.NewSchemaless(cfg.Resource...)
	}
	return resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("deployment.environment", cfg.Environment),
	)
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
	"result":      {},
	"event_type":  {},
	"reason":      {},
	"operation":   {},
	"status_code": {},
	"job":         {},
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
