package domain

import (
	"fmt"
	"strings"
	"time"
)

// Date layouts understood by ParseDate. The Swiss and US layouts accept
// unpadded day and month numbers.
const (
	LayoutISO   = "2006-01-02"
	LayoutSwiss = "02.01.2006"
	LayoutUS    = "01/02/2006"
)

// MinimumDate is the earliest date covered by the federal mutation register
// (entry into force of the federal constitution).
var MinimumDate = time.Date(1848, time.September, 12, 0, 0, 0, 0, time.UTC)

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses an ISO (2006-01-02), Swiss (02.01.2006) or US
// (01/02/2006) calendar date.
func ParseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	var layout string
	switch {
	case strings.Contains(s, "-"):
		layout = LayoutISO
	case strings.Contains(s, "."):
		layout = "2.1.2006"
	case strings.Contains(s, "/"):
		layout = "1/2/2006"
	default:
		return time.Time{}, fmt.Errorf("unrecognised date %q", raw)
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", raw, err)
	}
	return Day(t), nil
}

// FormatSwiss renders t as dd.mm.yyyy, the format the federal register expects.
func FormatSwiss(t time.Time) string { return t.Format(LayoutSwiss) }

// FormatUS renders t as mm/dd/yyyy.
func FormatUS(t time.Time) string { return t.Format(LayoutUS) }

// FormatISO renders t as yyyy-mm-dd.
func FormatISO(t time.Time) string { return t.Format(LayoutISO) }
