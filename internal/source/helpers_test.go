package source

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"crosswalk/pkg/domain"
)

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

var (
	illnau     = domain.Identity{Canton: "ZH", DistrictNumber: 110, MunicipalityNumber: 173, Name: "Illnau"}
	effretikon = domain.Identity{Canton: "ZH", DistrictNumber: 110, MunicipalityNumber: 296, Name: "Illnau-Effretikon"}
)

// workbook renders rows into an xlsx file with a single sheet.
func workbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func mutationSheet(t *testing.T) []byte {
	t.Helper()
	return workbook(t, [][]any{
		{"Mutationsnummer", "Bisher", "", "", "", "Neu"},
		{"Mutationsnummer", "Kanton", "Bezirks-nummer", "BFS Gde-nummer", "Gemeindename", "Kanton", "Bezirks-nummer", "BFS Gde-nummer", "Gemeindename", "Datum der Aufnahme"},
		{1100, "ZH", 110, 173, "Illnau", "ZH", 110, 296, "Illnau-Effretikon", day(1974, 1, 1)},
		{},
		{1101, "ZH", 110, 174, "Effretikon", "ZH", 110, 296, "Illnau-Effretikon", "01.01.1974"},
	})
}

func rosterSheet(t *testing.T) []byte {
	t.Helper()
	return workbook(t, [][]any{
		{"Hist.-Nummer", "Kanton", "Bezirks-nummer", "Bezirksname", "BFS-Gde Nummer", "Gemeindename", "Datum der Aufnahme"},
		{13450, "ZH", 110, "Bezirk Pfäffikon", 296, "Illnau-Effretikon", day(1974, 1, 1)},
	})
}

type fakeSource struct {
	name        string
	lastUpdated time.Time
	mutations   []domain.MutationRecord
	roster      []domain.RosterEntry
	err         error
	rosterErr   error
	rosterAt    time.Time
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) LastUpdated(context.Context) (time.Time, error) { return f.lastUpdated, f.err }

func (f *fakeSource) Mutations(context.Context, MutationQuery) ([]domain.MutationRecord, error) {
	return f.mutations, f.err
}

func (f *fakeSource) Roster(_ context.Context, at time.Time, _ []string) ([]domain.RosterEntry, error) {
	f.rosterAt = at
	if f.rosterErr != nil {
		return nil, f.rosterErr
	}
	return f.roster, f.err
}
