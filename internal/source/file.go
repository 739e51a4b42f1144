package source

import (
	"context"
	"fmt"
	"os"
	"time"

	"crosswalk/pkg/domain"
)

// FileSource reads local xlsx or CSV exports of the register.
type FileSource struct {
	MutationsPath string
	RosterPath    string
}

// Name implements Source.
func (s FileSource) Name() string { return "file" }

// LastUpdated implements Source; files carry no update date.
func (s FileSource) LastUpdated(context.Context) (time.Time, error) { return time.Time{}, nil }

// Mutations implements Source.
func (s FileSource) Mutations(context.Context, MutationQuery) ([]domain.MutationRecord, error) {
	data, err := os.ReadFile(s.MutationsPath)
	if err != nil {
		return nil, fmt.Errorf("read mutations file: %w", err)
	}
	return DecodeMutations(data)
}

// Roster implements Source.
func (s FileSource) Roster(context.Context, time.Time, []string) ([]domain.RosterEntry, error) {
	if s.RosterPath == "" {
		return nil, fmt.Errorf("%w: no roster file given", ErrNoSnapshot)
	}
	data, err := os.ReadFile(s.RosterPath)
	if err != nil {
		return nil, fmt.Errorf("read roster file: %w", err)
	}
	return DecodeRoster(data)
}
