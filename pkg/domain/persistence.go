package domain

import (
	"context"
	"time"
)

// RecordStore caches the source register so that runs can be resolved
// without network access. Replace operations swap the full content
// atomically.
type RecordStore interface {
	ReplaceMutations(ctx context.Context, records []MutationRecord) error
	ListMutations(ctx context.Context) ([]MutationRecord, error)
	ReplaceRoster(ctx context.Context, snapshot time.Time, entries []RosterEntry) error
	// ListRoster returns the cached roster and the snapshot date it was taken at.
	ListRoster(ctx context.Context) (time.Time, []RosterEntry, error)
	Close() error
}
