package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var expvarSeq uint64

// noSource labels operations that did not touch a record source, such as
// rendering and export.
const noSource = "none"

func sourceLabel(source string) string {
	if source == "" {
		return noSource
	}
	return source
}

// ExpvarMetricsRecorder publishes crosswalk run totals under /debug/vars:
// accumulated milliseconds and outcomes per operation, rows produced per
// operation and source, and the last failure seen for each operation.
type ExpvarMetricsRecorder struct {
	name      string
	mu        sync.Mutex
	durations map[string]float64
	results   map[string]map[string]int64
	rows      map[string]map[string]int64
	lastError map[string]string
}

// ExpvarMetricsSnapshot captures a read-only view of the recorded metrics.
type ExpvarMetricsSnapshot struct {
	DurationsMS map[string]float64          `json:"durations_ms_total"`
	Results     map[string]map[string]int64 `json:"results_total"`
	Rows        map[string]map[string]int64 `json:"rows_total"`
	LastError   map[string]string           `json:"last_error,omitempty"`
	RecordedAt  time.Time                   `json:"recorded_at"`
}

// NewExpvarMetricsRecorder publishes a recorder under name. An empty name
// gets a generated one. expvar panics on duplicate names.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		id := atomic.AddUint64(&expvarSeq, 1)
		name = fmt.Sprintf("crosswalk_service_metrics_%d", id)
	}
	rec := &ExpvarMetricsRecorder{
		name:      name,
		durations: make(map[string]float64),
		results:   make(map[string]map[string]int64),
		rows:      make(map[string]map[string]int64),
		lastError: make(map[string]string),
	}
	expvar.Publish(name, expvar.Func(func() any {
		return rec.Snapshot()
	}))
	return rec
}

// Name returns the expvar export name associated with the recorder.
func (r *ExpvarMetricsRecorder) Name() string {
	return r.name
}

// Snapshot returns an immutable copy of the aggregated metrics.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	durations := make(map[string]float64, len(r.durations))
	for op, total := range r.durations {
		durations[op] = total
	}
	lastError := make(map[string]string, len(r.lastError))
	for op, msg := range r.lastError {
		lastError[op] = msg
	}

	return ExpvarMetricsSnapshot{
		DurationsMS: durations,
		Results:     copyCounts(r.results),
		Rows:        copyCounts(r.rows),
		LastError:   lastError,
		RecordedAt:  time.Now().UTC(),
	}
}

func copyCounts(in map[string]map[string]int64) map[string]map[string]int64 {
	out := make(map[string]map[string]int64, len(in))
	for op, counts := range in {
		cpy := make(map[string]int64, len(counts))
		for k, v := range counts {
			cpy[k] = v
		}
		out[op] = cpy
	}
	return out
}

func bump(m map[string]map[string]int64, op, key string, n int64) {
	if _, ok := m[op]; !ok {
		m[op] = make(map[string]int64, 2)
	}
	m[op][key] += n
}

// Observe records a finished operation. Rows only count on success.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, obs Observation) {
	if obs.Operation == "" {
		return
	}
	ms := float64(obs.Duration) / float64(time.Millisecond)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.durations[obs.Operation] += ms
	bump(r.results, obs.Operation, string(obs.Status()), 1)
	if obs.Err != nil {
		r.lastError[obs.Operation] = obs.Err.Error()
		return
	}
	bump(r.rows, obs.Operation, sourceLabel(obs.Source), int64(obs.Rows))
}

// JSONTraceEntry is one span written by JSONTraceTracer.
type JSONTraceEntry struct {
	Operation  string    `json:"operation"`
	Parent     string    `json:"parent,omitempty"`
	Source     string    `json:"source,omitempty"`
	Subject    string    `json:"subject,omitempty"`
	Rows       int       `json:"rows"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// JSONTraceTracer serializes spans to a writer and retains them for inspection.
type JSONTraceTracer struct {
	mu      sync.Mutex
	entries []JSONTraceEntry
	enc     *json.Encoder
}

// NewJSONTracer writes spans as JSON lines to w, which may be nil. Spans are
// also retained for Entries.
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	var enc *json.Encoder
	if w != nil {
		enc = json.NewEncoder(w)
	}
	return &JSONTraceTracer{enc: enc}
}

// Entries returns a copy of all recorded spans.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]JSONTraceEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Start implements the Tracer interface. The span's operation becomes the
// parent of spans started from the returned context.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	parent, _ := ctx.Value(jsonSpanKey{}).(string)
	span := &jsonTraceSpan{
		tracer:    t,
		operation: operation,
		parent:    parent,
		started:   time.Now().UTC(),
	}
	return context.WithValue(ctx, jsonSpanKey{}, operation), span
}

type jsonSpanKey struct{}

type jsonTraceSpan struct {
	tracer    *JSONTraceTracer
	operation string
	parent    string
	started   time.Time
}

func (s *jsonTraceSpan) End(obs Observation) {
	ended := time.Now().UTC()
	entry := JSONTraceEntry{
		Operation:  s.operation,
		Parent:     s.parent,
		Source:     obs.Source,
		Subject:    obs.Subject,
		Rows:       obs.Rows,
		Status:     string(obs.Status()),
		DurationMS: float64(ended.Sub(s.started)) / float64(time.Millisecond),
		StartedAt:  s.started,
		EndedAt:    ended,
	}
	if obs.Err != nil {
		entry.Error = obs.Err.Error()
	}

	s.tracer.mu.Lock()
	s.tracer.entries = append(s.tracer.entries, entry)
	if s.tracer.enc != nil {
		_ = s.tracer.enc.Encode(entry)
	}
	s.tracer.mu.Unlock()
}
