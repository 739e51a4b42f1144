// Package export renders a resolved crosswalk as CSV, JSON or XLSX and
// stores the rendered artifacts in the blob store.
package export

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"crosswalk/internal/blob"
	"crosswalk/internal/crosswalk"
	"crosswalk/pkg/domain"
)

// Format is an output encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// Formats lists the supported formats.
var Formats = []Format{FormatCSV, FormatJSON, FormatXLSX}

// ErrUnsupportedFormat is returned for unknown format names.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// ParseFormat resolves a format name case-insensitively. Empty means csv.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w %q (want csv, json or xlsx)", ErrUnsupportedFormat, s)
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv"
	}
}

// Columns is the column order of every tabular output.
var Columns = []string{
	"old_canton", "old_district_nr", "old_municipality_nr", "old_municipality",
	"new_canton", "new_district_nr", "new_municipality_nr", "new_municipality",
}

// Labels describes each column with the date it refers to, e.g.
// "Canton 01/01/2000".
func Labels(scope domain.Scope) []string {
	since, to := domain.FormatUS(scope.Since), domain.FormatUS(scope.To)
	return []string{
		"Canton " + since, "District number " + since, "Municipality number " + since, "Municipality name " + since,
		"Canton " + to, "District number " + to, "Municipality number " + to, "Municipality name " + to,
	}
}

// FileName is crosswalk_<since>_to_<to>.<ext> with dates as yyyy-mm-dd.
func FileName(scope domain.Scope, f Format) string {
	return fmt.Sprintf("crosswalk_%s_to_%s.%s", domain.FormatISO(scope.Since), domain.FormatISO(scope.To), f)
}

// Row is one mapping in flat form.
type Row struct {
	OldCanton             string `json:"old_canton"`
	OldDistrictNumber     int    `json:"old_district_nr"`
	OldMunicipalityNumber int    `json:"old_municipality_nr"`
	OldMunicipality       string `json:"old_municipality"`
	NewCanton             string `json:"new_canton"`
	NewDistrictNumber     int    `json:"new_district_nr"`
	NewMunicipalityNumber int    `json:"new_municipality_nr"`
	NewMunicipality       string `json:"new_municipality"`
}

// RowOf flattens m.
func RowOf(m domain.Mapping) Row {
	return Row{
		OldCanton: m.Old.Canton, OldDistrictNumber: m.Old.DistrictNumber,
		OldMunicipalityNumber: m.Old.MunicipalityNumber, OldMunicipality: m.Old.Name,
		NewCanton: m.New.Canton, NewDistrictNumber: m.New.DistrictNumber,
		NewMunicipalityNumber: m.New.MunicipalityNumber, NewMunicipality: m.New.Name,
	}
}

func (r Row) cells() []any {
	return []any{
		r.OldCanton, r.OldDistrictNumber, r.OldMunicipalityNumber, r.OldMunicipality,
		r.NewCanton, r.NewDistrictNumber, r.NewMunicipalityNumber, r.NewMunicipality,
	}
}

func (r Row) record() []string {
	out := make([]string, 0, len(Columns))
	for _, c := range r.cells() {
		switch v := c.(type) {
		case int:
			out = append(out, strconv.Itoa(v))
		default:
			out = append(out, fmt.Sprint(v))
		}
	}
	return out
}

// Document is the JSON encoding of a crosswalk.
type Document struct {
	Since       string            `json:"since"`
	To          string            `json:"to"`
	Cantons     []string          `json:"cantons,omitempty"`
	ChangesOnly bool              `json:"changes_only"`
	Labels      map[string]string `json:"labels"`
	Stats       crosswalk.Stats   `json:"stats"`
	Rows        []Row             `json:"rows"`
}

// Artifact describes a rendered (and possibly stored) export.
type Artifact struct {
	ID          string            `json:"id"`
	Format      Format            `json:"format"`
	FileName    string            `json:"file_name"`
	ContentType string            `json:"content_type"`
	SizeBytes   int64             `json:"size_bytes"`
	Rows        int               `json:"rows"`
	Key         string            `json:"key,omitempty"`
	URL         string            `json:"url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Rendered couples an artifact with its payload.
type Rendered struct {
	Artifact Artifact
	Payload  []byte
}

// Exporter renders results and writes them to a blob store.
type Exporter struct {
	store blob.Store
	now   func() time.Time
	newID func() string
}

// New returns an exporter. store may be nil when only Render is used.
func New(store blob.Store) *Exporter {
	return &Exporter{store: store, now: func() time.Time { return time.Now().UTC() }, newID: newID}
}

// Render encodes res in format.
func (e *Exporter) Render(format Format, res crosswalk.Result) (Rendered, error) {
	rows := make([]Row, len(res.Mappings))
	for i, m := range res.Mappings {
		rows[i] = RowOf(m)
	}
	var payload []byte
	var err error
	switch format {
	case FormatCSV:
		payload, err = renderCSV(rows)
	case FormatJSON:
		payload, err = renderJSON(res, rows)
	case FormatXLSX:
		payload, err = renderXLSX(res.Scope, rows)
	default:
		return Rendered{}, fmt.Errorf("%w %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return Rendered{}, fmt.Errorf("render %s: %w", format, err)
	}
	return Rendered{
		Artifact: Artifact{
			ID:          e.newID(),
			Format:      format,
			FileName:    FileName(res.Scope, format),
			ContentType: format.ContentType(),
			SizeBytes:   int64(len(payload)),
			Rows:        len(rows),
			Metadata: map[string]string{
				"since":        domain.FormatISO(res.Scope.Since),
				"to":           domain.FormatISO(res.Scope.To),
				"cantons":      strings.Join(res.Scope.Cantons, ","),
				"changes_only": strconv.FormatBool(!res.Scope.IncludeUnchanged),
			},
			CreatedAt: e.now(),
		},
		Payload: payload,
	}, nil
}

// Store writes r to exports/<id>/<file name> and returns the stored artifact.
func (e *Exporter) Store(ctx context.Context, r Rendered) (Artifact, error) {
	if e.store == nil {
		return Artifact{}, errors.New("export: no blob store configured")
	}
	art := r.Artifact
	art.Key = "exports/" + art.ID + "/" + art.FileName
	info, err := e.store.Put(ctx, art.Key, bytes.NewReader(r.Payload), blob.PutOptions{ContentType: art.ContentType, Metadata: art.Metadata})
	if err != nil {
		return Artifact{}, fmt.Errorf("store export %s: %w", art.Key, err)
	}
	art.SizeBytes = info.Size
	if u, err := e.store.PresignURL(ctx, art.Key, blob.SignedURLOptions{}); err == nil {
		art.URL = u
	}
	return art, nil
}

// Export renders and stores res.
func (e *Exporter) Export(ctx context.Context, format Format, res crosswalk.Result) (Artifact, error) {
	r, err := e.Render(format, res)
	if err != nil {
		return Artifact{}, err
	}
	return e.Store(ctx, r)
}

func renderCSV(rows []Row) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	if err := w.Write(Columns); err != nil {
		return nil, err
	}
	for _, r := range rows {
		if err := w.Write(r.record()); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderJSON(res crosswalk.Result, rows []Row) ([]byte, error) {
	labels := Labels(res.Scope)
	doc := Document{
		Since:       domain.FormatISO(res.Scope.Since),
		To:          domain.FormatISO(res.Scope.To),
		Cantons:     res.Scope.Cantons,
		ChangesOnly: !res.Scope.IncludeUnchanged,
		Labels:      make(map[string]string, len(Columns)),
		Stats:       res.Stats,
		Rows:        rows,
	}
	for i, c := range Columns {
		doc.Labels[c] = labels[i]
	}
	return json.MarshalIndent(doc, "", "  ")
}

const (
	dataSheet  = "crosswalk"
	labelSheet = "labels"
)

func renderXLSX(scope domain.Scope, rows []Row) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", dataSheet); err != nil {
		return nil, err
	}
	sw, err := f.NewStreamWriter(dataSheet)
	if err != nil {
		return nil, err
	}
	header := make([]any, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := sw.SetRow("A1", header); err != nil {
		return nil, err
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := sw.SetRow(cell, r.cells()); err != nil {
			return nil, err
		}
	}
	if err := sw.Flush(); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(labelSheet); err != nil {
		return nil, err
	}
	for i, label := range Labels(scope) {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(labelSheet, cell, &[]any{Columns[i], label}); err != nil {
			return nil, err
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func newID() string {
	id, err := uuid.NewRandom()
	if err != nil {
		var b [16]byte
		_, _ = rand.Read(b[:])
		return fmt.Sprintf("%x", b[:])
	}
	return id.String()
}
