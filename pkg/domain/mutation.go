package domain

import "time"

// MutationRecord states that Old was replaced by New on ChangeDate. Several
// records may share a ChangeID when one administrative act touched more than
// one municipality (merges, splits).
type MutationRecord struct {
	ChangeID   int       `json:"change_nr"`
	Old        Identity  `json:"old"`
	New        Identity  `json:"new"`
	ChangeDate time.Time `json:"change_date"`
}

// Degenerate reports whether the record maps an identity onto itself.
func (r MutationRecord) Degenerate() bool { return r.Old == r.New }

// Validate rejects records with incomplete identities or no date.
func (r MutationRecord) Validate() error {
	if err := r.Old.Validate(); err != nil {
		return &RecordError{ChangeID: r.ChangeID, Side: "old", Err: err}
	}
	if err := r.New.Validate(); err != nil {
		return &RecordError{ChangeID: r.ChangeID, Side: "new", Err: err}
	}
	if r.ChangeDate.IsZero() {
		return &RecordError{ChangeID: r.ChangeID, Side: "change_date", Err: ErrIncompleteRecord}
	}
	return nil
}

// RosterEntry is one municipality of the official roster valid at a snapshot date.
type RosterEntry struct {
	HistoryNumber int       `json:"hist_nr"`
	Identity      Identity  `json:"identity"`
	DistrictName  string    `json:"district,omitempty"`
	AdmissionDate time.Time `json:"date_first"`
}

// Mapping pairs the identity of a municipality at the start of the requested
// window with its identity at the end of the window.
type Mapping struct {
	Old Identity `json:"old"`
	New Identity `json:"new"`
}

// Changed reports whether the municipality changed identity in the window.
func (m Mapping) Changed() bool { return m.Old != m.New }

// Less orders mappings by old identity, then new identity.
func (m Mapping) Less(other Mapping) bool {
	if m.Old != other.Old {
		return m.Old.Less(other.Old)
	}
	return m.New.Less(other.New)
}
