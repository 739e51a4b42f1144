package crosswalk

import "crosswalk/pkg/domain"

// Collapse reduces every chain to the pair of its first old identity and
// its last new identity. Intermediate hops are discarded. A chain that
// returns to its first identity has no net effect and yields no mapping.
func Collapse(chains []Chain) []domain.Mapping {
	out := make([]domain.Mapping, 0, len(chains))
	for _, c := range chains {
		if len(c) == 0 || c.First() == c.Last() {
			continue
		}
		out = append(out, domain.Mapping{Old: c.First(), New: c.Last()})
	}
	return out
}
