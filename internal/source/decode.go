package source

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"crosswalk/pkg/domain"
)

// Column layout of the register downloads. Both sheets start with header
// rows; data begins at the first row whose first cell is a number.
const (
	mutationColumns = 10 // change_nr, old canton/district/nr/name, new canton/district/nr/name, change_date
	rosterColumns   = 7  // hist_nr, canton, district_nr, district, municipality_nr, municipality, date_first
)

// ErrMalformedSheet is returned when a data row cannot be decoded.
var ErrMalformedSheet = errors.New("source: malformed sheet")

// DecodeMutations parses a mutation sheet in xlsx or CSV form.
func DecodeMutations(data []byte) ([]domain.MutationRecord, error) {
	rows, err := readRows(data)
	if err != nil {
		return nil, err
	}
	var out []domain.MutationRecord
	for _, row := range dataRows(rows) {
		rec, err := decodeMutation(row.cells)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrMalformedSheet, row.line, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// DecodeRoster parses a roster sheet in xlsx or CSV form.
func DecodeRoster(data []byte) ([]domain.RosterEntry, error) {
	rows, err := readRows(data)
	if err != nil {
		return nil, err
	}
	var out []domain.RosterEntry
	for _, row := range dataRows(rows) {
		entry, err := decodeRosterEntry(row.cells)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrMalformedSheet, row.line, err)
		}
		out = append(out, entry)
	}
	return out, nil
}

func decodeMutation(c []string) (domain.MutationRecord, error) {
	c = pad(c, mutationColumns)
	var r domain.MutationRecord
	var err error
	if r.ChangeID, err = parseInt(c[0]); err != nil {
		return r, fmt.Errorf("change_nr: %w", err)
	}
	if r.Old, err = decodeIdentity(c[1:5]); err != nil {
		return r, fmt.Errorf("old: %w", err)
	}
	if r.New, err = decodeIdentity(c[5:9]); err != nil {
		return r, fmt.Errorf("new: %w", err)
	}
	if r.ChangeDate, err = parseCellDate(c[9]); err != nil {
		return r, fmt.Errorf("change_date: %w", err)
	}
	return r, nil
}

func decodeRosterEntry(c []string) (domain.RosterEntry, error) {
	c = pad(c, rosterColumns)
	var e domain.RosterEntry
	var err error
	if e.HistoryNumber, err = parseInt(c[0]); err != nil {
		return e, fmt.Errorf("hist_nr: %w", err)
	}
	e.Identity.Canton = strings.TrimSpace(c[1])
	if e.Identity.DistrictNumber, err = parseInt(c[2]); err != nil {
		return e, fmt.Errorf("district_nr: %w", err)
	}
	e.DistrictName = strings.TrimSpace(c[3])
	if e.Identity.MunicipalityNumber, err = parseInt(c[4]); err != nil {
		return e, fmt.Errorf("municipality_nr: %w", err)
	}
	e.Identity.Name = strings.TrimSpace(c[5])
	if e.AdmissionDate, err = parseCellDate(c[6]); err != nil {
		return e, fmt.Errorf("date_first: %w", err)
	}
	return e, nil
}

// decodeIdentity reads canton, district number, municipality number and
// name. Empty cells stay zero so that the resolver reports the record as
// incomplete.
func decodeIdentity(c []string) (domain.Identity, error) {
	var id domain.Identity
	var err error
	id.Canton = strings.TrimSpace(c[0])
	if id.DistrictNumber, err = parseInt(c[1]); err != nil {
		return id, fmt.Errorf("district_nr: %w", err)
	}
	if id.MunicipalityNumber, err = parseInt(c[2]); err != nil {
		return id, fmt.Errorf("municipality_nr: %w", err)
	}
	id.Name = strings.TrimSpace(c[3])
	return id, nil
}

type sheetRow struct {
	line  int
	cells []string
}

// dataRows drops the leading header rows and blank rows.
func dataRows(rows [][]string) []sheetRow {
	var out []sheetRow
	started := false
	for i, r := range rows {
		if blank(r) {
			continue
		}
		if !started {
			if _, err := parseInt(r[0]); err != nil || strings.TrimSpace(r[0]) == "" {
				continue
			}
			started = true
		}
		out = append(out, sheetRow{line: i + 1, cells: r})
	}
	return out
}

func blank(r []string) bool {
	for _, c := range r {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func pad(c []string, n int) []string {
	if len(c) >= n {
		return c
	}
	out := make([]string, n)
	copy(out, c)
	return out
}

// parseInt accepts integers written as "4001" or as an integral float
// ("4001.0"), which is how some spreadsheet exports store numbers.
func parseInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return int(f), nil
}

// parseCellDate accepts Excel serial numbers and textual dates.
func parseCellDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, err
		}
		return domain.Day(t), nil
	}
	return domain.ParseDate(s)
}

// readRows returns the cell grid of the first worksheet of an xlsx file, or
// of a CSV file when data is not a zip archive.
func readRows(data []byte) ([][]string, error) {
	if isXLSX(data) {
		return readXLSX(data)
	}
	return readCSV(data)
}

func isXLSX(data []byte) bool {
	return bytes.HasPrefix(data, []byte("PK\x03\x04"))
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrMalformedSheet)
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = sniffDelimiter(data)
	r.FieldsPerRecord = -1
	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		rows = append(rows, rec)
	}
}

// sniffDelimiter picks ';' when the first line has more semicolons than commas.
func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
		return ';'
	}
	return ','
}
