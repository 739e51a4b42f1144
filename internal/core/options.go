package core

import (
	"context"
	"time"

	"crosswalk/internal/export"
)

// Clock provides the current time. Tests pin it to make scope validation
// and audit timestamps deterministic.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock. A nil function falls back to the wall clock.
func (f ClockFunc) Now() time.Time {
	if f == nil {
		return time.Now().UTC()
	}
	return f()
}

// Logger is the logging surface used by the service. *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// AuditStatus is the outcome recorded for an operation.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes one completed service operation.
type AuditEntry struct {
	ID        string        `json:"id"`
	Operation string        `json:"operation"`
	Source    string        `json:"source,omitempty"`
	Subject   string        `json:"subject,omitempty"`
	Status    AuditStatus   `json:"status"`
	Error     string        `json:"error,omitempty"`
	Rows      int           `json:"rows"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// Observation describes one finished service operation. Source names the
// record source involved, Subject the window, snapshot or format, and Rows
// the records, roster entries or mappings the operation produced.
type Observation struct {
	Operation string
	Source    string
	Subject   string
	Rows      int
	Duration  time.Duration
	Err       error
}

// Status maps the outcome to an AuditStatus.
func (o Observation) Status() AuditStatus {
	if o.Err != nil {
		return AuditStatusError
	}
	return AuditStatusSuccess
}

// AuditRecorder receives an entry for every service operation.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}

// MetricsRecorder observes operation outcomes, latencies and row counts.
type MetricsRecorder interface {
	Observe(ctx context.Context, obs Observation)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, Observation) {}

// Tracer opens a span per operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is closed with the finished operation.
type TraceSpan interface {
	End(obs Observation)
}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(Observation) {}

type serviceOptions struct {
	clock    Clock
	logger   Logger
	audit    AuditRecorder
	metrics  MetricsRecorder
	tracer   Tracer
	exporter *export.Exporter
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		clock:    ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:   noopLogger{},
		audit:    noopAuditRecorder{},
		metrics:  noopMetricsRecorder{},
		tracer:   noopTracer{},
		exporter: export.New(nil),
	}
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

// WithClock overrides the clock used for scope validation and audit entries.
func WithClock(clock Clock) ServiceOption {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger Logger) ServiceOption {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithAuditRecorder sets the audit sink.
func WithAuditRecorder(recorder AuditRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if recorder != nil {
			o.audit = recorder
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(recorder MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if recorder != nil {
			o.metrics = recorder
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer Tracer) ServiceOption {
	return func(o *serviceOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithExporter sets the exporter used by Render and Export. The default
// exporter has no blob store, so Export fails until one is configured.
func WithExporter(exporter *export.Exporter) ServiceOption {
	return func(o *serviceOptions) {
		if exporter != nil {
			o.exporter = exporter
		}
	}
}
