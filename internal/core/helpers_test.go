package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"crosswalk/internal/source"
	"crosswalk/pkg/domain"
)

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

var (
	fixedNow = time.Date(2021, time.March, 1, 9, 30, 0, 0, time.UTC)

	wyla       = domain.Identity{Canton: "ZH", DistrictNumber: 108, MunicipalityNumber: 180, Name: "Wyla"}
	wylaNew    = domain.Identity{Canton: "ZH", DistrictNumber: 116, MunicipalityNumber: 180, Name: "Wyla"}
	turbenthal = domain.Identity{Canton: "ZH", DistrictNumber: 116, MunicipalityNumber: 178, Name: "Turbenthal"}
	bern       = domain.Identity{Canton: "BE", DistrictNumber: 246, MunicipalityNumber: 351, Name: "Bern"}
)

func sampleMutations() []domain.MutationRecord {
	return []domain.MutationRecord{
		{ChangeID: 1, Old: wyla, New: wylaNew, ChangeDate: day(2010, time.January, 1)},
		{ChangeID: 2, Old: wylaNew, New: turbenthal, ChangeDate: day(2015, time.January, 1)},
	}
}

func sampleScope() domain.Scope {
	return domain.Scope{Since: day(2000, time.January, 1), To: day(2020, time.December, 31)}
}

func sampleRoster() []domain.RosterEntry {
	return []domain.RosterEntry{
		{HistoryNumber: 10, Identity: turbenthal, DistrictName: "Winterthur", AdmissionDate: day(2015, time.January, 1)},
		{HistoryNumber: 11, Identity: bern, DistrictName: "Bern-Mittelland", AdmissionDate: day(2010, time.January, 1)},
	}
}

type fakeSource struct {
	mu          sync.Mutex
	lastUpdated time.Time
	mutations   []domain.MutationRecord
	roster      []domain.RosterEntry
	mutErr      error
	rosterErr   error
	calls       []string
	rosterAt    time.Time
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeSource) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeSource) LastUpdated(context.Context) (time.Time, error) {
	f.record("last_updated")
	return f.lastUpdated, nil
}

func (f *fakeSource) Mutations(context.Context, source.MutationQuery) ([]domain.MutationRecord, error) {
	f.record("mutations")
	return f.mutations, f.mutErr
}

func (f *fakeSource) Roster(_ context.Context, at time.Time, _ []string) ([]domain.RosterEntry, error) {
	f.record("roster")
	f.mu.Lock()
	f.rosterAt = at
	f.mu.Unlock()
	return f.roster, f.rosterErr
}

type captureAuditRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.mu.Lock()
	c.entries = append(c.entries, entry)
	c.mu.Unlock()
}

func (c *captureAuditRecorder) find(op string) (AuditEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range c.entries {
		if entry.Operation == op {
			return entry, true
		}
	}
	return AuditEntry{}, false
}

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct {
	mu    sync.Mutex
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, obs Observation) {
	c.mu.Lock()
	c.calls = append(c.calls, metricsCall{op: obs.Operation, success: obs.Err == nil})
	c.mu.Unlock()
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type captureLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *captureLogger) log(level, msg string, args ...any) {
	l.mu.Lock()
	l.lines = append(l.lines, fmt.Sprintf("%s %s %v", level, msg, args))
	l.mu.Unlock()
}

func (l *captureLogger) Debug(msg string, args ...any) { l.log("DEBUG", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.log("INFO", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.log("WARN", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.log("ERROR", msg, args...) }

func (l *captureLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, line := range l.lines {
		if len(line) >= len(level) && line[:len(level)] == level {
			n++
		}
	}
	return n
}
