package crosswalk

import (
	"errors"
	"sort"
	"time"

	"crosswalk/pkg/domain"
)

// ErrRosterRequired is returned when unchanged municipalities are requested
// without a roster to take them from.
var ErrRosterRequired = errors.New("roster required to include unchanged municipalities")

// Stats summarises one resolution.
type Stats struct {
	Filter    FilterStats `json:"filter"`
	Chains    int         `json:"chains"`
	Steps     int         `json:"steps"`
	Rejected  int         `json:"rejected"`
	Changed   int         `json:"changed"`
	Unchanged int         `json:"unchanged"`
}

// Result is the resolved crosswalk for one scope.
type Result struct {
	Scope    domain.Scope     `json:"scope"`
	Mappings []domain.Mapping `json:"mappings"`
	Stats    Stats            `json:"stats"`
}

// Resolve runs Filter, BuildCascade and Collapse over records and, when the
// scope asks for unchanged municipalities, MergeRoster over roster. The
// mappings are sorted by old then new identity and exact duplicates are
// emitted once, so the result only depends on the record set. An invalid
// scope is reported before a missing roster.
func Resolve(records []domain.MutationRecord, roster []domain.RosterEntry, scope domain.Scope) (Result, error) {
	res := Result{Scope: scope}
	if err := scope.Validate(time.Time{}); err != nil {
		return res, err
	}
	if scope.IncludeUnchanged && roster == nil {
		return res, ErrRosterRequired
	}
	filtered, fstats, err := Filter(records, scope)
	res.Stats.Filter = fstats
	if err != nil {
		return res, err
	}
	cascade := BuildCascade(filtered)
	res.Stats.Chains = len(cascade.Chains)
	res.Stats.Steps = cascade.Steps
	res.Stats.Rejected = cascade.Rejected

	mappings := Collapse(cascade.Chains)
	if scope.IncludeUnchanged {
		var added int
		mappings, added, err = MergeRoster(mappings, roster, scope)
		if err != nil {
			return res, err
		}
		res.Stats.Unchanged = added
	}
	res.Mappings = sortUnique(mappings)
	for _, m := range res.Mappings {
		if m.Changed() {
			res.Stats.Changed++
		}
	}
	return res, nil
}

func sortUnique(mappings []domain.Mapping) []domain.Mapping {
	sort.SliceStable(mappings, func(i, j int) bool { return mappings[i].Less(mappings[j]) })
	out := mappings[:0]
	for _, m := range mappings {
		if len(out) > 0 && m == out[len(out)-1] {
			continue
		}
		out = append(out, m)
	}
	return out
}
