package crosswalk

import (
	"testing"
	"time"

	"crosswalk/pkg/domain"
)

func ident(canton string, district, number int, name string) domain.Identity {
	return domain.Identity{Canton: canton, DistrictNumber: district, MunicipalityNumber: number, Name: name}
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := domain.ParseDate(s)
	if err != nil {
		t.Fatalf("parse %s: %v", s, err)
	}
	return d
}

func mutation(t *testing.T, id int, from, to domain.Identity, date string) domain.MutationRecord {
	t.Helper()
	return domain.MutationRecord{ChangeID: id, Old: from, New: to, ChangeDate: day(t, date)}
}

func wideScope(t *testing.T) domain.Scope {
	return domain.Scope{Since: day(t, "1900-01-01"), To: day(t, "2020-12-31")}
}

var (
	idA = ident("AG", 1, 1, "A")
	idB = ident("AG", 1, 2, "B")
	idC = ident("AG", 1, 3, "C")
	idD = ident("AG", 1, 4, "D")
	idX = ident("BE", 2, 9, "X")
)
