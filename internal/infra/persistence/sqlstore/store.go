// Package sqlstore implements domain.RecordStore on top of database/sql. The
// sqlite and postgres packages supply a Dialect and the opened *sql.DB.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"crosswalk/pkg/domain"
)

// Dialect captures the SQL differences between engines.
type Dialect struct {
	Name string
	// Placeholder returns the bind marker for the n-th (1-based) argument.
	Placeholder func(n int) string
	// Clear returns a statement that removes every row of table.
	Clear func(table string) string
	// Schema statements run on open; they must be idempotent.
	Schema []string
}

var mutationColumns = []string{
	"change_nr",
	"old_canton", "old_district_nr", "old_municipality_nr", "old_municipality",
	"new_canton", "new_district_nr", "new_municipality_nr", "new_municipality",
	"change_date",
}

var rosterColumns = []string{
	"hist_nr", "canton", "district_nr", "district", "municipality_nr", "municipality", "date_first",
}

// rosterOrder matches domain.Identity.Less.
var rosterOrder = []string{"canton", "district_nr", "municipality_nr", "municipality"}

var metaColumns = []string{"name", "value"}

// SchemaStatements returns CREATE TABLE statements using the given column
// types for integers and text.
func SchemaStatements(intType, textType string) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS mutations (
		change_nr %[1]s NOT NULL,
		old_canton %[2]s NOT NULL,
		old_district_nr %[1]s NOT NULL,
		old_municipality_nr %[1]s NOT NULL,
		old_municipality %[2]s NOT NULL,
		new_canton %[2]s NOT NULL,
		new_district_nr %[1]s NOT NULL,
		new_municipality_nr %[1]s NOT NULL,
		new_municipality %[2]s NOT NULL,
		change_date %[2]s NOT NULL
	)`, intType, textType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS roster (
		hist_nr %[1]s NOT NULL,
		canton %[2]s NOT NULL,
		district_nr %[1]s NOT NULL,
		district %[2]s NOT NULL,
		municipality_nr %[1]s NOT NULL,
		municipality %[2]s NOT NULL,
		date_first %[2]s NOT NULL
	)`, intType, textType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS roster_meta (
		name %[1]s PRIMARY KEY,
		value %[1]s NOT NULL
	)`, textType),
	}
}

const snapshotKey = "snapshot_date"

// Store is a RecordStore backed by three tables: mutations, roster and
// roster_meta. Dates are stored as ISO text so that they sort by date.
type Store struct {
	db *sql.DB
	d  Dialect
	mu sync.Mutex
}

var _ domain.RecordStore = (*Store)(nil)

// New applies the dialect schema and returns the store.
func New(ctx context.Context, db *sql.DB, d Dialect) (*Store, error) {
	for _, stmt := range d.Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("%s: apply schema: %w", d.Name, err)
		}
	}
	return &Store{db: db, d: d}, nil
}

// DB exposes the underlying handle for tests.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) insert(table string, cols []string) string {
	marks := make([]string, len(cols))
	for i := range cols {
		marks[i] = s.d.Placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s(%s) VALUES(%s)", table, strings.Join(cols, ","), strings.Join(marks, ","))
}

func (s *Store) selectAll(table string, cols []string, orderBy ...string) string {
	q := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ","), table)
	if len(orderBy) > 0 {
		q += " ORDER BY " + strings.Join(orderBy, ",")
	}
	return q
}

// withTx runs fn in a transaction and commits when fn succeeds.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin tx: %w", s.d.Name, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", s.d.Name, err)
	}
	committed = true
	return nil
}

// ReplaceMutations swaps the cached mutation register for records.
func (s *Store) ReplaceMutations(ctx context.Context, records []domain.MutationRecord) error {
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	stmt := s.insert("mutations", mutationColumns)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.d.Clear("mutations")); err != nil {
			return fmt.Errorf("%s: clear mutations: %w", s.d.Name, err)
		}
		for _, r := range records {
			_, err := tx.ExecContext(ctx, stmt,
				r.ChangeID,
				r.Old.Canton, r.Old.DistrictNumber, r.Old.MunicipalityNumber, r.Old.Name,
				r.New.Canton, r.New.DistrictNumber, r.New.MunicipalityNumber, r.New.Name,
				domain.FormatISO(r.ChangeDate),
			)
			if err != nil {
				return fmt.Errorf("%s: insert mutation %d: %w", s.d.Name, r.ChangeID, err)
			}
		}
		return nil
	})
}

// ListMutations returns the cached register ordered by date and change number.
func (s *Store) ListMutations(ctx context.Context) ([]domain.MutationRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.selectAll("mutations", mutationColumns, "change_date", "change_nr"))
	if err != nil {
		return nil, fmt.Errorf("%s: select mutations: %w", s.d.Name, err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.MutationRecord
	for rows.Next() {
		var r domain.MutationRecord
		var date string
		if err := rows.Scan(
			&r.ChangeID,
			&r.Old.Canton, &r.Old.DistrictNumber, &r.Old.MunicipalityNumber, &r.Old.Name,
			&r.New.Canton, &r.New.DistrictNumber, &r.New.MunicipalityNumber, &r.New.Name,
			&date,
		); err != nil {
			return nil, fmt.Errorf("%s: scan mutation: %w", s.d.Name, err)
		}
		if r.ChangeDate, err = domain.ParseDate(date); err != nil {
			return nil, fmt.Errorf("%s: mutation %d: %w", s.d.Name, r.ChangeID, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate mutations: %w", s.d.Name, err)
	}
	return out, nil
}

// ReplaceRoster swaps the cached roster and records its snapshot date.
func (s *Store) ReplaceRoster(ctx context.Context, snapshot time.Time, entries []domain.RosterEntry) error {
	for _, e := range entries {
		if err := e.Identity.Validate(); err != nil {
			return fmt.Errorf("roster entry %d: %w", e.HistoryNumber, err)
		}
	}
	stmt := s.insert("roster", rosterColumns)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"roster", "roster_meta"} {
			if _, err := tx.ExecContext(ctx, s.d.Clear(table)); err != nil {
				return fmt.Errorf("%s: clear %s: %w", s.d.Name, table, err)
			}
		}
		if _, err := tx.ExecContext(ctx, s.insert("roster_meta", metaColumns), snapshotKey, domain.FormatISO(snapshot)); err != nil {
			return fmt.Errorf("%s: store snapshot date: %w", s.d.Name, err)
		}
		for _, e := range entries {
			admitted := ""
			if !e.AdmissionDate.IsZero() {
				admitted = domain.FormatISO(e.AdmissionDate)
			}
			_, err := tx.ExecContext(ctx, stmt,
				e.HistoryNumber, e.Identity.Canton, e.Identity.DistrictNumber, e.DistrictName,
				e.Identity.MunicipalityNumber, e.Identity.Name, admitted,
			)
			if err != nil {
				return fmt.Errorf("%s: insert roster entry %d: %w", s.d.Name, e.HistoryNumber, err)
			}
		}
		return nil
	})
}

// ListRoster returns the cached roster ordered by identity. A store that
// never received a roster returns a zero snapshot date and no entries.
func (s *Store) ListRoster(ctx context.Context) (time.Time, []domain.RosterEntry, error) {
	snapshot, err := s.snapshotDate(ctx)
	if err != nil {
		return time.Time{}, nil, err
	}
	rows, err := s.db.QueryContext(ctx, s.selectAll("roster", rosterColumns, rosterOrder...))
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("%s: select roster: %w", s.d.Name, err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.RosterEntry
	for rows.Next() {
		var e domain.RosterEntry
		var admitted string
		if err := rows.Scan(&e.HistoryNumber, &e.Identity.Canton, &e.Identity.DistrictNumber, &e.DistrictName,
			&e.Identity.MunicipalityNumber, &e.Identity.Name, &admitted); err != nil {
			return time.Time{}, nil, fmt.Errorf("%s: scan roster: %w", s.d.Name, err)
		}
		if admitted != "" {
			if e.AdmissionDate, err = domain.ParseDate(admitted); err != nil {
				return time.Time{}, nil, fmt.Errorf("%s: roster entry %d: %w", s.d.Name, e.HistoryNumber, err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return time.Time{}, nil, fmt.Errorf("%s: iterate roster: %w", s.d.Name, err)
	}
	return snapshot, out, nil
}

func (s *Store) snapshotDate(ctx context.Context) (time.Time, error) {
	rows, err := s.db.QueryContext(ctx, s.selectAll("roster_meta", metaColumns))
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: select roster_meta: %w", s.d.Name, err)
	}
	defer func() { _ = rows.Close() }()
	var snapshot time.Time
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return time.Time{}, fmt.Errorf("%s: scan roster_meta: %w", s.d.Name, err)
		}
		if name != snapshotKey {
			continue
		}
		if snapshot, err = domain.ParseDate(value); err != nil {
			return time.Time{}, fmt.Errorf("%s: snapshot date: %w", s.d.Name, err)
		}
	}
	if err := rows.Err(); err != nil {
		return time.Time{}, fmt.Errorf("%s: iterate roster_meta: %w", s.d.Name, err)
	}
	return snapshot, nil
}
