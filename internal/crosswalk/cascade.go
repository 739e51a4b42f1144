package crosswalk

import (
	"sort"

	"crosswalk/pkg/domain"
)

// Chain is a temporally ordered run of mutation records in which every
// record's old identity equals the previous record's new identity.
type Chain []domain.MutationRecord

// First returns the identity the chain starts from.
func (c Chain) First() domain.Identity { return c[0].Old }

// Last returns the identity the chain ends in.
func (c Chain) Last() domain.Identity { return c[len(c)-1].New }

// Cascade is the outcome of BuildCascade.
type Cascade struct {
	Chains []Chain
	// Steps is the number of productive extension steps.
	Steps int
	// Rejected counts records that belong to no chain because they could
	// only continue a chain out of temporal order.
	Rejected int
}

// chain is the working representation: indexes into the record slice.
type chain struct {
	hops []int
	open bool
}

// BuildCascade builds the chains of records that start at an identity
// existing at the beginning of the window.
//
// A record starts a chain when no other record produces its old identity.
// Identities reachable only through a cycle have no such record; each
// unreached cycle starts at its earliest record instead.
//
// Extension is an iterative fixpoint. Each step looks up, for every open
// chain, the records whose old identity equals the chain's current
// identity. A candidate dated before the chain's last hop is rejected and
// so is a record the chain already contains. When several candidates are
// accepted the chain branches, one chain per candidate. The loop stops at
// the first step that extends nothing; since every extension consumes a
// record not yet in the chain, that happens after at most len(records)
// steps. A rejected candidate never starts a chain of its own, so its new
// identity does not surface.
//
// Records must be non-degenerate; use Filter first.
func BuildCascade(records []domain.MutationRecord) Cascade {
	byOld := indexByOld(records)

	starts := chainStarts(records, byOld)
	working := make([]chain, len(starts))
	for i, idx := range starts {
		working[i] = chain{hops: []int{idx}, open: true}
	}

	steps := 0
	for {
		extended := 0
		next := make([]chain, 0, len(working))
		for _, c := range working {
			if !c.open {
				next = append(next, c)
				continue
			}
			branches := extend(c, records, byOld)
			if len(branches) == 0 {
				c.open = false
				next = append(next, c)
				continue
			}
			extended++
			next = append(next, branches...)
		}
		working = next
		if extended == 0 {
			break
		}
		steps++
	}

	used := make([]bool, len(records))
	chains := make([]Chain, 0, len(working))
	for _, c := range working {
		out := make(Chain, len(c.hops))
		for i, idx := range c.hops {
			out[i] = records[idx]
			used[idx] = true
		}
		chains = append(chains, out)
	}
	rejected := 0
	for _, u := range used {
		if !u {
			rejected++
		}
	}
	return Cascade{Chains: chains, Steps: steps, Rejected: rejected}
}

// indexByOld maps an identity to the records leaving it, ordered by date
// then change id so that branching is deterministic.
func indexByOld(records []domain.MutationRecord) map[domain.Identity][]int {
	idx := make(map[domain.Identity][]int, len(records))
	for i, r := range records {
		idx[r.Old] = append(idx[r.Old], i)
	}
	for _, list := range idx {
		sortChronologically(list, records)
	}
	return idx
}

func sortChronologically(list []int, records []domain.MutationRecord) {
	sort.SliceStable(list, func(a, b int) bool {
		ra, rb := records[list[a]], records[list[b]]
		if !ra.ChangeDate.Equal(rb.ChangeDate) {
			return ra.ChangeDate.Before(rb.ChangeDate)
		}
		return ra.ChangeID < rb.ChangeID
	})
}

// chainStarts returns the records whose old identity no other record
// produces, followed by the earliest record of every cycle none of them
// reaches. Reachability ignores dates.
func chainStarts(records []domain.MutationRecord, byOld map[domain.Identity][]int) []int {
	produced := make(map[domain.Identity]struct{}, len(records))
	for _, r := range records {
		produced[r.New] = struct{}{}
	}
	reached := make(map[domain.Identity]struct{}, len(records))
	var starts []int
	for i, r := range records {
		if _, ok := produced[r.Old]; ok {
			continue
		}
		starts = append(starts, i)
		reach(r.Old, records, byOld, reached)
	}

	order := make([]int, len(records))
	for i := range order {
		order[i] = i
	}
	sortChronologically(order, records)
	for _, i := range order {
		if _, ok := reached[records[i].Old]; ok {
			continue
		}
		starts = append(starts, i)
		reach(records[i].Old, records, byOld, reached)
	}
	return starts
}

func reach(from domain.Identity, records []domain.MutationRecord, byOld map[domain.Identity][]int, seen map[domain.Identity]struct{}) {
	stack := []domain.Identity{from}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		for _, idx := range byOld[id] {
			stack = append(stack, records[idx].New)
		}
	}
}

func extend(c chain, records []domain.MutationRecord, byOld map[domain.Identity][]int) []chain {
	last := records[c.hops[len(c.hops)-1]]
	var branches []chain
	for _, cand := range byOld[last.New] {
		if records[cand].ChangeDate.Before(last.ChangeDate) {
			continue
		}
		if contains(c.hops, cand) {
			continue
		}
		hops := make([]int, len(c.hops), len(c.hops)+1)
		copy(hops, c.hops)
		branches = append(branches, chain{hops: append(hops, cand), open: true})
	}
	return branches
}

func contains(hops []int, idx int) bool {
	for _, h := range hops {
		if h == idx {
			return true
		}
	}
	return false
}
