package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestExpvarMetricsRecorder(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	require.True(t, strings.HasPrefix(rec.Name(), "crosswalk_service_metrics_"))

	ctx := context.Background()
	rec.Observe(ctx, Observation{Operation: OpLoadRecords, Source: "bfs", Rows: 120, Duration: 20 * time.Millisecond})
	rec.Observe(ctx, Observation{Operation: OpLoadRecords, Source: "bfs", Rows: 30, Duration: 5 * time.Millisecond})
	rec.Observe(ctx, Observation{Operation: OpLoadRecords, Source: "archive", Rows: 7, Duration: time.Millisecond, Err: errors.New("archive offline")})
	rec.Observe(ctx, Observation{Operation: OpRender, Rows: 4})
	rec.Observe(ctx, Observation{Duration: time.Second})

	snap := rec.Snapshot()
	assert.InDelta(t, 26.0, snap.DurationsMS[OpLoadRecords], 0.001)
	assert.Equal(t, int64(2), snap.Results[OpLoadRecords]["success"])
	assert.Equal(t, int64(1), snap.Results[OpLoadRecords]["error"])
	assert.Len(t, snap.Results, 2)
	assert.Equal(t, map[string]int64{"bfs": 150}, snap.Rows[OpLoadRecords], "failed loads add no rows")
	assert.Equal(t, int64(4), snap.Rows[OpRender][noSource])
	assert.Equal(t, "archive offline", snap.LastError[OpLoadRecords])

	published := expvar.Get(rec.Name())
	require.NotNil(t, published)
	assert.Contains(t, published.String(), "durations_ms_total")
	assert.Contains(t, published.String(), "rows_total")
}

func TestJSONTracerWritesLines(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)

	ctx, outer := tracer.Start(context.Background(), OpResolve)
	_, inner := tracer.Start(ctx, OpLoadRecords)
	inner.End(Observation{Operation: OpLoadRecords, Source: "bfs", Err: errors.New("timeout")})
	outer.End(Observation{Operation: OpResolve, Source: "bfs", Subject: "2000-01-01..2020-12-31 ZH", Rows: 3})

	entries := tracer.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, OpLoadRecords, entries[0].Operation)
	assert.Equal(t, OpResolve, entries[0].Parent)
	assert.Equal(t, "error", entries[0].Status)
	assert.Equal(t, "timeout", entries[0].Error)
	assert.Equal(t, "bfs", entries[0].Source)
	assert.Equal(t, "success", entries[1].Status)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var decoded JSONTraceEntry
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &decoded))
	assert.Equal(t, OpResolve, decoded.Operation)
	assert.Equal(t, "bfs", decoded.Source)
	assert.Equal(t, "2000-01-01..2020-12-31 ZH", decoded.Subject)
	assert.Equal(t, 3, decoded.Rows)
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusMetricsRecorder(reg)
	ctx := context.Background()
	rec.Observe(ctx, Observation{Operation: OpResolve, Source: "bfs", Rows: 5, Duration: 150 * time.Millisecond})
	rec.Observe(ctx, Observation{Operation: OpResolve, Source: "bfs", Rows: 2, Duration: 50 * time.Millisecond})
	rec.Observe(ctx, Observation{Operation: OpExport, Rows: 7})
	rec.Observe(ctx, Observation{Operation: OpLoadRoster, Source: "bfs", Rows: 9, Duration: time.Second, Err: errors.New("down")})

	assert.Equal(t, 2.0, promtest.ToFloat64(rec.total.WithLabelValues(OpResolve, "success")))
	assert.Equal(t, 1.0, promtest.ToFloat64(rec.total.WithLabelValues(OpLoadRoster, "error")))
	assert.Equal(t, 3, promtest.CollectAndCount(rec.duration))
	assert.Equal(t, 7.0, promtest.ToFloat64(rec.rows.WithLabelValues(OpResolve, "bfs")))
	assert.Equal(t, 7.0, promtest.ToFloat64(rec.rows.WithLabelValues(OpExport, noSource)))
	assert.Equal(t, 2, promtest.CollectAndCount(rec.rows), "failed roster load adds no rows")

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.ElementsMatch(t, []string{"crosswalk_operations_total", "crosswalk_operation_duration_seconds", "crosswalk_rows_total"}, names)
}

func TestOTelTracerWithServiceRun(t *testing.T) {
	tracer := NewOTelTracer(noop.NewTracerProvider())
	ctx, span := tracer.Start(context.Background(), OpExport)
	require.NotNil(t, ctx)
	span.End(Observation{Operation: OpExport, Err: errors.New("boom")})

	_, span = tracer.Start(context.Background(), OpExport)
	span.End(Observation{Operation: OpExport, Subject: "csv", Rows: 4})

	svc := newTestService(WithTracer(NewOTelTracer(nil)))
	_, err := svc.Resolve(context.Background(), &fakeSource{mutations: sampleMutations()}, sampleScope())
	require.NoError(t, err)
}

func TestNoopSinks(t *testing.T) {
	opts := defaultServiceOptions()
	ctx, span := opts.tracer.Start(context.Background(), OpResolve)
	span.End(Observation{Operation: OpResolve})
	opts.metrics.Observe(ctx, Observation{Operation: OpResolve, Duration: time.Millisecond})
	opts.audit.Record(ctx, AuditEntry{})
	opts.logger.Debug("debug")
	opts.logger.Info("info")
	opts.logger.Warn("warn")
	opts.logger.Error("error")
	assert.Equal(t, fixedNow, newTestService().Now())
}
