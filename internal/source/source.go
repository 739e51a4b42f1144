// Package source loads the federal municipality register: the list of
// mutations and the roster of municipalities valid at a date. Records come
// from the live BFS web service, from the blob archive of earlier downloads,
// from the RecordStore cache or from local spreadsheet files.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"crosswalk/pkg/domain"
)

// ErrNoSnapshot is returned when no archived or cached data is available.
var ErrNoSnapshot = errors.New("source: no snapshot available")

// MutationQuery narrows a mutation download. The resolver applies the same
// window and canton filter again, so sources may return a superset.
type MutationQuery struct {
	Since   time.Time
	To      time.Time
	Cantons []string
}

// SingleCanton returns the canton code when exactly one canton is requested.
func (q MutationQuery) SingleCanton() (string, bool) {
	if len(q.Cantons) == 1 {
		return q.Cantons[0], true
	}
	return "", false
}

// Source provides mutation records and roster entries.
type Source interface {
	// Name identifies the source in logs and audit entries.
	Name() string
	// LastUpdated returns the date up to which the source is complete. A
	// zero time means the source cannot tell.
	LastUpdated(ctx context.Context) (time.Time, error)
	Mutations(ctx context.Context, q MutationQuery) ([]domain.MutationRecord, error)
	Roster(ctx context.Context, at time.Time, cantons []string) ([]domain.RosterEntry, error)
}

// Logger is the subset of *slog.Logger used by sources.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

func loggerOrNoop(l Logger) Logger {
	if l == nil {
		return noopLogger{}
	}
	return l
}

// Bundle is the input of one resolution run.
type Bundle struct {
	Mutations []domain.MutationRecord
	Roster    []domain.RosterEntry
}

// Fetch loads mutations and, when withRoster is set, the roster valid at
// rosterAt. Both downloads run concurrently; the first failure cancels the other.
func Fetch(ctx context.Context, src Source, q MutationQuery, rosterAt time.Time, withRoster bool) (Bundle, error) {
	var b Bundle
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		recs, err := src.Mutations(gctx, q)
		if err != nil {
			return fmt.Errorf("%s: load mutations: %w", src.Name(), err)
		}
		b.Mutations = recs
		return nil
	})
	if withRoster {
		g.Go(func() error {
			entries, err := src.Roster(gctx, rosterAt, q.Cantons)
			if err != nil {
				return fmt.Errorf("%s: load roster: %w", src.Name(), err)
			}
			if entries == nil {
				entries = []domain.RosterEntry{}
			}
			b.Roster = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Bundle{}, err
	}
	return b, nil
}

// CheckFresh rejects windows that start after the source's last update. A
// zero lastUpdated disables the check.
func CheckFresh(since, lastUpdated time.Time) error {
	if lastUpdated.IsZero() || !domain.Day(since).After(domain.Day(lastUpdated)) {
		return nil
	}
	return fmt.Errorf("%w: the register was last updated on %s", domain.ErrSourceStale, domain.FormatUS(lastUpdated))
}

// RosterDate is the snapshot date requested for a window ending at to: the
// end of the window, clamped to the source's last update.
func RosterDate(to, lastUpdated time.Time) time.Time {
	to = domain.Day(to)
	if !lastUpdated.IsZero() && domain.Day(lastUpdated).Before(to) {
		return domain.Day(lastUpdated)
	}
	return to
}
