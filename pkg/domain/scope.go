package domain

import (
	"fmt"
	"time"
)

// Scope carries the parameters of one resolution run.
type Scope struct {
	Since time.Time `json:"since"`
	To    time.Time `json:"to"`
	// Cantons restricts the run to records touching these cantons; nil means all.
	Cantons []string `json:"cantons,omitempty"`
	// IncludeUnchanged adds roster municipalities without mutations as
	// self mappings.
	IncludeUnchanged bool `json:"include_unchanged"`
}

// Validate checks the window against the register's coverage and the
// current day. It does not look at any record.
func (s Scope) Validate(now time.Time) error {
	if s.Since.IsZero() || s.To.IsZero() {
		return fmt.Errorf("%w: since and to are required", ErrInvalidScope)
	}
	since, to := Day(s.Since), Day(s.To)
	if since.Before(MinimumDate) {
		return fmt.Errorf("%w: since must be on or after %s", ErrInvalidScope, FormatISO(MinimumDate))
	}
	if !now.IsZero() && to.After(Day(now)) {
		return fmt.Errorf("%w: to %s is in the future", ErrInvalidScope, FormatISO(to))
	}
	if since.After(to) {
		return fmt.Errorf("%w: since %s is after to %s", ErrInvalidScope, FormatISO(since), FormatISO(to))
	}
	for _, c := range s.Cantons {
		if !IsCanton(c) {
			return fmt.Errorf("%w: unknown abbreviation %s", ErrInvalidCanton, c)
		}
	}
	return nil
}

// AllCantons reports whether no canton restriction applies.
func (s Scope) AllCantons() bool { return len(s.Cantons) == 0 }

// SingleCanton returns the canton when exactly one is selected.
func (s Scope) SingleCanton() (string, bool) {
	if len(s.Cantons) == 1 {
		return s.Cantons[0], true
	}
	return "", false
}

// HasCanton reports whether code is inside the scope.
func (s Scope) HasCanton(code string) bool {
	if s.AllCantons() {
		return true
	}
	for _, c := range s.Cantons {
		if c == code {
			return true
		}
	}
	return false
}

// Contains reports whether t falls inside [Since, To].
func (s Scope) Contains(t time.Time) bool {
	d := Day(t)
	return !d.Before(Day(s.Since)) && !d.After(Day(s.To))
}
