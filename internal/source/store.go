package source

import (
	"context"
	"fmt"
	"time"

	"crosswalk/pkg/domain"
)

// StoreSource serves records cached in a RecordStore by `crosswalk import`.
type StoreSource struct {
	store  domain.RecordStore
	logger Logger
}

// NewStoreSource wraps store.
func NewStoreSource(store domain.RecordStore, logger Logger) *StoreSource {
	return &StoreSource{store: store, logger: loggerOrNoop(logger)}
}

// Name implements Source.
func (s *StoreSource) Name() string { return "store" }

// LastUpdated reports the roster snapshot date, which import sets to the
// date the register was complete up to.
func (s *StoreSource) LastUpdated(ctx context.Context) (time.Time, error) {
	snapshot, _, err := s.store.ListRoster(ctx)
	return snapshot, err
}

// Mutations implements Source.
func (s *StoreSource) Mutations(ctx context.Context, _ MutationQuery) ([]domain.MutationRecord, error) {
	recs, err := s.store.ListMutations(ctx)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: record store holds no mutations", ErrNoSnapshot)
	}
	return recs, nil
}

// Roster implements Source. The cached roster is the one valid at the
// import date; the resolver drops entries admitted after at.
func (s *StoreSource) Roster(ctx context.Context, at time.Time, _ []string) ([]domain.RosterEntry, error) {
	snapshot, entries, err := s.store.ListRoster(ctx)
	if err != nil {
		return nil, err
	}
	if snapshot.IsZero() {
		return nil, fmt.Errorf("%w: record store holds no roster", ErrNoSnapshot)
	}
	if !snapshot.Equal(domain.Day(at)) {
		s.logger.Warn("cached roster taken at another date", "snapshot", domain.FormatISO(snapshot), "requested", domain.FormatISO(at))
	}
	return entries, nil
}
