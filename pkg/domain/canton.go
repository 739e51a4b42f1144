package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Cantons lists the abbreviations of the 26 Swiss cantons.
var Cantons = []string{
	"AG", "AI", "AR", "BE", "BL", "BS", "FR", "GE", "GL", "GR", "JU", "LU", "NE",
	"NW", "OW", "SG", "SH", "SO", "SZ", "TG", "TI", "UR", "VD", "VS", "ZG", "ZH",
}

var cantonSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(Cantons))
	for _, c := range Cantons {
		m[c] = struct{}{}
	}
	return m
}()

// IsCanton reports whether code is a known canton abbreviation.
func IsCanton(code string) bool {
	_, ok := cantonSet[code]
	return ok
}

// ParseCantonSubset normalises a requested canton subset. An empty list, or
// a single empty or "all" entry, selects every canton and yields nil.
// Unknown and duplicated abbreviations are rejected.
func ParseCantonSubset(raw []string) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if len(raw) == 1 {
		only := strings.TrimSpace(raw[0])
		if only == "" || strings.EqualFold(only, "all") {
			return nil, nil
		}
	}
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	var unknown []string
	for _, r := range raw {
		code := strings.ToUpper(strings.TrimSpace(r))
		if _, dup := seen[code]; dup {
			return nil, fmt.Errorf("%w: %s listed more than once", ErrInvalidCanton, code)
		}
		seen[code] = struct{}{}
		if !IsCanton(code) {
			unknown = append(unknown, r)
			continue
		}
		out = append(out, code)
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: unknown abbreviations %s", ErrInvalidCanton, strings.Join(unknown, ", "))
	}
	sort.Strings(out)
	return out, nil
}

// SplitCantonList splits a comma separated canton list such as "BE,ZH".
func SplitCantonList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Split(s, ",")
}
