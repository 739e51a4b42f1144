package crosswalk

import (
	"time"

	"crosswalk/pkg/domain"
)

// FilterStats counts what Filter kept and why it dropped the rest.
type FilterStats struct {
	Input       int `json:"input"`
	Degenerate  int `json:"degenerate"`
	OutOfWindow int `json:"out_of_window"`
	OutOfRegion int `json:"out_of_region"`
	Kept        int `json:"kept"`
}

// Filter returns the records that may take part in a cascade for scope.
//
// The scope is validated before any record is looked at. Every record is
// then validated; a single incomplete record rejects the whole batch since
// dropping it could silently truncate a chain. Degenerate records are
// dropped regardless of scope because a chain could re-enter them forever.
// A record is kept when its change date lies in [Since, To] and its old or
// new canton is part of the subset.
func Filter(records []domain.MutationRecord, scope domain.Scope) ([]domain.MutationRecord, FilterStats, error) {
	stats := FilterStats{Input: len(records)}
	if err := scope.Validate(time.Time{}); err != nil {
		return nil, stats, err
	}
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return nil, stats, err
		}
	}
	out := make([]domain.MutationRecord, 0, len(records))
	for _, r := range records {
		switch {
		case r.Degenerate():
			stats.Degenerate++
		case !scope.Contains(r.ChangeDate):
			stats.OutOfWindow++
		case !scope.HasCanton(r.Old.Canton) && !scope.HasCanton(r.New.Canton):
			stats.OutOfRegion++
		default:
			out = append(out, r)
		}
	}
	stats.Kept = len(out)
	return out, stats, nil
}
