// Package core orchestrates crosswalk runs: it validates the scope, loads
// records from a source, resolves them and exports the result, recording
// every operation through the configured logger, metrics, tracer and audit
// sinks.
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"crosswalk/internal/crosswalk"
	"crosswalk/internal/export"
	"crosswalk/internal/source"
	"crosswalk/pkg/domain"
)

// Operation names reported to metrics, traces and audit entries.
const (
	OpResolve     = "resolve"
	OpLoadRecords = "load_records"
	OpLoadRoster  = "load_roster"
	OpImport      = "import"
	OpRender      = "render"
	OpExport      = "export"
	opLastUpdated = "last_updated"
)

// ErrNoSource is returned when an operation is called without a source.
var ErrNoSource = errors.New("core: source is required")

// ErrNoStore is returned by Import without a record store.
var ErrNoStore = errors.New("core: record store is required")

// Service runs resolutions. It keeps no state between calls.
type Service struct {
	opts serviceOptions
}

// NewService constructs a service with the supplied options.
func NewService(opts ...ServiceOption) *Service {
	cfg := defaultServiceOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &Service{opts: cfg}
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time { return s.opts.clock.Now() }

// Resolve validates scope, checks that src covers the window, loads the
// mutations (and the roster valid at the end of the window when unchanged
// municipalities are requested) and resolves the crosswalk. Scope errors
// are returned before src is contacted.
func (s *Service) Resolve(ctx context.Context, src source.Source, scope domain.Scope) (crosswalk.Result, error) {
	var res crosswalk.Result
	err := s.run(ctx, operation{name: OpResolve, source: sourceName(src), subject: describeScope(scope)}, func(ctx context.Context) (int, error) {
		if err := scope.Validate(s.opts.clock.Now()); err != nil {
			return 0, err
		}
		if src == nil {
			return 0, ErrNoSource
		}
		lastUpdated, err := s.lastUpdated(ctx, src)
		if err != nil {
			return 0, err
		}
		if err := source.CheckFresh(scope.Since, lastUpdated); err != nil {
			return 0, err
		}
		q := source.MutationQuery{Since: scope.Since, To: scope.To, Cantons: scope.Cantons}
		bundle, err := source.Fetch(ctx, observedSource{Source: src, svc: s}, q, source.RosterDate(scope.To, lastUpdated), scope.IncludeUnchanged)
		if err != nil {
			return 0, err
		}
		res, err = crosswalk.Resolve(bundle.Mutations, bundle.Roster, scope)
		if err != nil {
			return 0, err
		}
		s.opts.logger.Debug("crosswalk resolved",
			"kept", res.Stats.Filter.Kept, "chains", res.Stats.Chains, "steps", res.Stats.Steps,
			"changed", res.Stats.Changed, "unchanged", res.Stats.Unchanged)
		return len(res.Mappings), nil
	})
	return res, err
}

// ImportRequest selects the snapshot an import downloads. A zero To means
// today; the roster is taken at To clamped to the source's last update.
type ImportRequest struct {
	To time.Time
}

// ImportSummary reports what an import cached.
type ImportSummary struct {
	Source      string    `json:"source"`
	LastUpdated time.Time `json:"last_updated"`
	Snapshot    time.Time `json:"snapshot"`
	Mutations   int       `json:"mutations"`
	Roster      int       `json:"roster"`
}

// Import downloads the full mutation register and the roster from src and
// replaces the contents of store with them.
func (s *Service) Import(ctx context.Context, src source.Source, store domain.RecordStore, req ImportRequest) (ImportSummary, error) {
	now := s.opts.clock.Now()
	to := req.To
	if to.IsZero() {
		to = now
	}
	scope := domain.Scope{Since: domain.MinimumDate, To: domain.Day(to)}
	summary := ImportSummary{Source: sourceName(src)}
	err := s.run(ctx, operation{name: OpImport, source: summary.Source, subject: domain.FormatISO(scope.To)}, func(ctx context.Context) (int, error) {
		if err := scope.Validate(now); err != nil {
			return 0, err
		}
		if src == nil {
			return 0, ErrNoSource
		}
		if store == nil {
			return 0, ErrNoStore
		}
		lastUpdated, err := s.lastUpdated(ctx, src)
		if err != nil {
			return 0, err
		}
		summary.LastUpdated = lastUpdated
		summary.Snapshot = source.RosterDate(scope.To, lastUpdated)
		q := source.MutationQuery{Since: scope.Since, To: scope.To}
		bundle, err := source.Fetch(ctx, observedSource{Source: src, svc: s}, q, summary.Snapshot, true)
		if err != nil {
			return 0, err
		}
		if err := store.ReplaceMutations(ctx, bundle.Mutations); err != nil {
			return 0, fmt.Errorf("cache mutations: %w", err)
		}
		if err := store.ReplaceRoster(ctx, summary.Snapshot, bundle.Roster); err != nil {
			return 0, fmt.Errorf("cache roster: %w", err)
		}
		summary.Mutations = len(bundle.Mutations)
		summary.Roster = len(bundle.Roster)
		return summary.Mutations + summary.Roster, nil
	})
	return summary, err
}

// Render encodes res without storing it.
func (s *Service) Render(ctx context.Context, format export.Format, res crosswalk.Result) (export.Rendered, error) {
	var out export.Rendered
	err := s.run(ctx, operation{name: OpRender, subject: string(format)}, func(context.Context) (int, error) {
		var err error
		out, err = s.opts.exporter.Render(format, res)
		return out.Artifact.Rows, err
	})
	return out, err
}

// Export renders res and stores it through the configured exporter.
func (s *Service) Export(ctx context.Context, format export.Format, res crosswalk.Result) (export.Artifact, error) {
	var art export.Artifact
	err := s.run(ctx, operation{name: OpExport, subject: string(format)}, func(ctx context.Context) (int, error) {
		var err error
		art, err = s.opts.exporter.Export(ctx, format, res)
		return art.Rows, err
	})
	return art, err
}

func (s *Service) lastUpdated(ctx context.Context, src source.Source) (time.Time, error) {
	ctx, span := s.opts.tracer.Start(ctx, opLastUpdated)
	started := time.Now()
	t, err := src.LastUpdated(ctx)
	span.End(Observation{Operation: opLastUpdated, Source: src.Name(), Duration: time.Since(started), Err: err})
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: last update: %w", src.Name(), err)
	}
	return t, nil
}

type operation struct {
	name    string
	source  string
	subject string
}

func (s *Service) run(ctx context.Context, op operation, fn func(context.Context) (int, error)) error {
	ctx, span := s.opts.tracer.Start(ctx, op.name)
	started := time.Now()
	rows, err := fn(ctx)
	obs := Observation{
		Operation: op.name,
		Source:    op.source,
		Subject:   op.subject,
		Rows:      rows,
		Duration:  time.Since(started),
		Err:       err,
	}
	span.End(obs)
	s.opts.metrics.Observe(ctx, obs)

	entry := AuditEntry{
		ID:        uuid.NewString(),
		Operation: obs.Operation,
		Source:    obs.Source,
		Subject:   obs.Subject,
		Status:    obs.Status(),
		Rows:      obs.Rows,
		Duration:  obs.Duration,
		Timestamp: s.opts.clock.Now(),
	}
	args := []any{"operation", obs.Operation, "source", obs.Source, "subject", obs.Subject, "rows", obs.Rows, "duration", obs.Duration}
	switch {
	case err == nil:
		s.opts.logger.Info("operation completed", args...)
	case domain.IsConfigError(err):
		entry.Error = err.Error()
		s.opts.logger.Warn("operation rejected", append(args, "error", err)...)
	default:
		entry.Error = err.Error()
		s.opts.logger.Error("operation failed", append(args, "error", err)...)
	}
	s.opts.audit.Record(ctx, entry)
	return err
}

// observedSource reports each load through the service's sinks.
type observedSource struct {
	source.Source
	svc *Service
}

func (o observedSource) Mutations(ctx context.Context, q source.MutationQuery) ([]domain.MutationRecord, error) {
	var recs []domain.MutationRecord
	subject := domain.FormatISO(q.Since) + ".." + domain.FormatISO(q.To)
	err := o.svc.run(ctx, operation{name: OpLoadRecords, source: o.Name(), subject: subject}, func(ctx context.Context) (int, error) {
		var err error
		recs, err = o.Source.Mutations(ctx, q)
		return len(recs), err
	})
	return recs, err
}

func (o observedSource) Roster(ctx context.Context, at time.Time, cantons []string) ([]domain.RosterEntry, error) {
	var entries []domain.RosterEntry
	err := o.svc.run(ctx, operation{name: OpLoadRoster, source: o.Name(), subject: domain.FormatISO(at)}, func(ctx context.Context) (int, error) {
		var err error
		entries, err = o.Source.Roster(ctx, at, cantons)
		return len(entries), err
	})
	return entries, err
}

func sourceName(src source.Source) string {
	if src == nil {
		return ""
	}
	return src.Name()
}

func describeScope(scope domain.Scope) string {
	cantons := "all"
	if !scope.AllCantons() {
		cantons = strings.Join(scope.Cantons, ",")
	}
	return fmt.Sprintf("%s..%s %s", domain.FormatISO(scope.Since), domain.FormatISO(scope.To), cantons)
}
