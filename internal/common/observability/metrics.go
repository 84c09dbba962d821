package observability

import (
	"context"
	"time"

	"audit-planner/internal/common/logger"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Observability bundles the OTel meter (exported through Prometheus) and
// the tracer used around planner operations. A nil *Observability is valid
// and falls back to the global no-op providers.
type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	opCounter      otelmetric.Int64Counter
	opDuration     otelmetric.Float64Histogram
}

// Options configures New.
type Options struct {
	ServiceName    string
	JaegerEndpoint string
	Registerer     prometheus.Registerer
}

func New(opts Options, log logger.Logger) *Observability {
	log = logger.Component(log, "observability")
	o := &Observability{}

	if opts.ServiceName == "" {
		opts.ServiceName = "audit-planner"
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}

	exporter, err := otelprom.New(otelprom.WithRegisterer(opts.Registerer))
	if err != nil {
		log.Warn("prometheus exporter unavailable, otel metrics disabled", map[string]interface{}{"error": err.Error()})
	} else {
		o.meterProvider = metric.NewMeterProvider(metric.WithReader(exporter))
		otel.SetMeterProvider(o.meterProvider)

		meter := o.meterProvider.Meter(opts.ServiceName)
		o.opCounter, _ = meter.Int64Counter(
			"planner.operations",
			otelmetric.WithDescription("Planner operations by name and status"),
		)
		o.opDuration, _ = meter.Float64Histogram(
			"planner.operation.duration",
			otelmetric.WithDescription("Planner operation duration"),
			otelmetric.WithUnit("ms"),
		)
	}

	tp, err := newTracerProvider(opts)
	if err != nil {
		log.Warn("jaeger exporter unavailable, tracing disabled", map[string]interface{}{"error": err.Error()})
	}
	if tp != nil {
		o.tracerProvider = tp
		otel.SetTracerProvider(tp)
		o.tracer = tp.Tracer(opts.ServiceName)
	} else {
		o.tracer = otel.Tracer(opts.ServiceName)
	}

	return o
}

// StartSpan opens a span; callers must End it.
func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("audit-planner")
	if o != nil && o.tracer != nil {
		tracer = o.tracer
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err on the span before ending it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// RecordOperation counts an operation and records its duration.
func (o *Observability) RecordOperation(ctx context.Context, operation string, duration time.Duration, err error) {
	if o == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	)
	if o.opCounter != nil {
		o.opCounter.Add(ctx, 1, attrs)
	}
	if o.opDuration != nil {
		o.opDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

func (o *Observability) Shutdown(ctx context.Context) {
	if o == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if o.tracerProvider != nil {
		_ = o.tracerProvider.Shutdown(ctx)
	}
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
}
