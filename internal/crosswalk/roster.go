package crosswalk

import (
	"fmt"

	"crosswalk/pkg/domain"
)

// MergeRoster adds every roster municipality valid at scope.To that is not
// already the new side of a mapping, mapped onto itself. Roster entries are
// restricted to the scope's cantons. An identity is added at most once.
func MergeRoster(mappings []domain.Mapping, roster []domain.RosterEntry, scope domain.Scope) ([]domain.Mapping, int, error) {
	seen := make(map[domain.Identity]struct{}, len(mappings)+len(roster))
	for _, m := range mappings {
		seen[m.New] = struct{}{}
	}
	out := make([]domain.Mapping, len(mappings), len(mappings)+len(roster))
	copy(out, mappings)
	added := 0
	to := domain.Day(scope.To)
	for _, e := range roster {
		if err := e.Identity.Validate(); err != nil {
			return nil, 0, fmt.Errorf("roster entry %d: %w", e.HistoryNumber, err)
		}
		if !e.AdmissionDate.IsZero() && domain.Day(e.AdmissionDate).After(to) {
			continue
		}
		if !scope.HasCanton(e.Identity.Canton) {
			continue
		}
		if _, ok := seen[e.Identity]; ok {
			continue
		}
		seen[e.Identity] = struct{}{}
		out = append(out, domain.Mapping{Old: e.Identity, New: e.Identity})
		added++
	}
	return out, added, nil
}
