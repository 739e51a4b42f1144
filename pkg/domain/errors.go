package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidScope marks a date window that cannot be resolved.
	ErrInvalidScope = errors.New("invalid scope")
	// ErrInvalidCanton marks an unknown or duplicated canton abbreviation.
	ErrInvalidCanton = errors.New("invalid canton list")
	// ErrIncompleteRecord marks a source row with a missing identity field.
	ErrIncompleteRecord = errors.New("incomplete record")
	// ErrSourceStale is returned when the window starts after the source's last update.
	ErrSourceStale = errors.New("source not updated for requested window")
)

// RecordError identifies the mutation record that made a batch unusable.
type RecordError struct {
	ChangeID int
	Side     string
	Err      error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("mutation %d (%s): %v", e.ChangeID, e.Side, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// IsConfigError reports whether err stems from invalid run parameters rather
// than from the data or the environment.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidScope) || errors.Is(err, ErrInvalidCanton) || errors.Is(err, ErrSourceStale)
}
