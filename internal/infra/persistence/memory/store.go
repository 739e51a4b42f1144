// Package memory provides an in-process RecordStore. Nothing survives the
// process; it backs tests and one-shot runs with CROSSWALK_STORAGE_DRIVER=memory.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"crosswalk/pkg/domain"
)

// Store keeps the cached register in memory.
type Store struct {
	mu        sync.RWMutex
	mutations []domain.MutationRecord
	roster    []domain.RosterEntry
	snapshot  time.Time
}

var _ domain.RecordStore = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store { return &Store{} }

// ReplaceMutations swaps the cached register. Incomplete records reject the
// whole batch and leave the previous content in place.
func (s *Store) ReplaceMutations(_ context.Context, records []domain.MutationRecord) error {
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	cp := append([]domain.MutationRecord(nil), records...)
	sort.SliceStable(cp, func(i, j int) bool {
		if !cp[i].ChangeDate.Equal(cp[j].ChangeDate) {
			return cp[i].ChangeDate.Before(cp[j].ChangeDate)
		}
		return cp[i].ChangeID < cp[j].ChangeID
	})
	s.mu.Lock()
	s.mutations = cp
	s.mu.Unlock()
	return nil
}

// ListMutations returns a copy of the cached register.
func (s *Store) ListMutations(context.Context) ([]domain.MutationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.MutationRecord(nil), s.mutations...), nil
}

// ReplaceRoster swaps the cached roster.
func (s *Store) ReplaceRoster(_ context.Context, snapshot time.Time, entries []domain.RosterEntry) error {
	for _, e := range entries {
		if err := e.Identity.Validate(); err != nil {
			return fmt.Errorf("roster entry %d: %w", e.HistoryNumber, err)
		}
	}
	cp := append([]domain.RosterEntry(nil), entries...)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].Identity.Less(cp[j].Identity) })
	s.mu.Lock()
	s.roster = cp
	s.snapshot = domain.Day(snapshot)
	s.mu.Unlock()
	return nil
}

// ListRoster returns a copy of the cached roster and its snapshot date.
func (s *Store) ListRoster(context.Context) (time.Time, []domain.RosterEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot, append([]domain.RosterEntry(nil), s.roster...), nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
