package core

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// PrometheusMetricsRecorder exports operation counts, latencies and the
// rows successful operations produced per source.
type PrometheusMetricsRecorder struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	rows     *prometheus.CounterVec
}

// NewPrometheusMetricsRecorder registers the crosswalk collectors with reg.
// A nil reg uses the default registerer.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) *PrometheusMetricsRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &PrometheusMetricsRecorder{
		total: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crosswalk",
			Name:      "operations_total",
			Help:      "Service operations by name and outcome.",
		}, []string{"operation", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "crosswalk",
			Name:      "operation_duration_seconds",
			Help:      "Service operation latency.",
			Buckets:   []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"operation"}),
		rows: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crosswalk",
			Name:      "rows_total",
			Help:      "Records, roster entries and mappings produced by successful operations.",
		}, []string{"operation", "source"}),
	}
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, obs Observation) {
	r.total.WithLabelValues(obs.Operation, string(obs.Status())).Inc()
	r.duration.WithLabelValues(obs.Operation).Observe(obs.Duration.Seconds())
	if obs.Err == nil {
		r.rows.WithLabelValues(obs.Operation, sourceLabel(obs.Source)).Add(float64(obs.Rows))
	}
}

// OTelTracer opens OpenTelemetry spans through the global tracer provider
// unless one is supplied.
type OTelTracer struct {
	tracer trace.Tracer
}

// NewOTelTracer returns a tracer named crosswalk.core from provider, or from
// the global provider when provider is nil.
func NewOTelTracer(provider trace.TracerProvider) *OTelTracer {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &OTelTracer{tracer: provider.Tracer("crosswalk.core")}
}

// Start implements Tracer.
func (t *OTelTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	ctx, span := t.tracer.Start(ctx, "crosswalk."+operation,
		trace.WithAttributes(attribute.String("crosswalk.operation", operation)))
	return ctx, otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s otelSpan) End(obs Observation) {
	s.span.SetAttributes(
		attribute.String("crosswalk.source", sourceLabel(obs.Source)),
		attribute.String("crosswalk.subject", obs.Subject),
		attribute.Int("crosswalk.rows", obs.Rows),
	)
	if obs.Err != nil {
		s.span.RecordError(obs.Err)
		s.span.SetStatus(codes.Error, obs.Err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}
