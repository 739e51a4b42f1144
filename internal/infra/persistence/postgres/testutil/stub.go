// Package testutil provides an in-memory database/sql driver that speaks the
// statements the postgres RecordStore issues: the CREATE TABLE schema,
// TRUNCATE TABLE, INSERT and SELECT with an optional ORDER BY. Tables only
// accept the columns their schema declares and a rolled back transaction
// restores the rows it touched.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// Table is a stub relation: the declared columns and the stored rows.
type Table struct {
	Columns []string
	Rows    []map[string]driver.Value
}

func (t *Table) has(col string) bool {
	for _, c := range t.Columns {
		if c == col {
			return true
		}
	}
	return false
}

func (t *Table) clone() *Table {
	rows := make([]map[string]driver.Value, len(t.Rows))
	for i, r := range t.Rows {
		cp := make(map[string]driver.Value, len(r))
		for k, v := range r {
			cp[k] = v
		}
		rows[i] = cp
	}
	return &Table{Columns: append([]string(nil), t.Columns...), Rows: rows}
}

// StubConn records executed statements and keeps one Table per relation.
type StubConn struct {
	mu sync.Mutex

	Execs   []string
	Queries []string
	Tables  map[string]*Table

	FailPing   bool
	FailBegin  bool
	FailCommit bool
	// FailTables makes every statement touching the named tables fail.
	FailTables map[string]bool
	// FailStatement makes any statement containing the substring fail.
	FailStatement string
	RowsErr       error

	saved map[string]*Table
}

// NewStubDB registers a sql.DB backed by an in-memory stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string]*Table)}
	name := fmt.Sprintf("stubpg%d", time.Now().UnixNano())
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

// Seed appends rows to table, creating it from the first row's keys when
// the schema has not been applied.
func (c *StubConn) Seed(table string, rows ...map[string]driver.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.Tables[table]
	if !ok {
		t = &Table{}
		if len(rows) > 0 {
			for col := range rows[0] {
				t.Columns = append(t.Columns, col)
			}
			sort.Strings(t.Columns)
		}
		c.Tables[table] = t
	}
	t.Rows = append(t.Rows, rows...)
}

// Rows returns the rows stored in table.
func (c *StubConn) Rows(table string) []map[string]driver.Value {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.Tables[table]; ok {
		return t.Rows
	}
	return nil
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(_ context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx. The current tables are saved so
// that Rollback can restore them.
func (c *StubConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saved = make(map[string]*Table, len(c.Tables))
	for name, t := range c.Tables {
		c.saved[name] = t.clone()
	}
	return &stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, query)
	if c.FailStatement != "" && strings.Contains(query, c.FailStatement) {
		return nil, fmt.Errorf("exec fail: %s", c.FailStatement)
	}
	fields := strings.Fields(strings.ToUpper(query))
	if len(fields) < 2 {
		return nil, fmt.Errorf("cannot parse statement: %s", query)
	}
	switch {
	case fields[0] == "CREATE" && fields[1] == "TABLE":
		name, cols, err := parseCreate(query)
		if err != nil {
			return nil, err
		}
		if _, ok := c.Tables[name]; !ok {
			c.Tables[name] = &Table{Columns: cols}
		}
		return driver.RowsAffected(0), nil
	case fields[0] == "TRUNCATE":
		t, name, err := c.table(parseTruncate(query))
		if err != nil {
			return nil, err
		}
		n := len(t.Rows)
		t.Rows = nil
		c.Tables[name] = t
		return driver.RowsAffected(n), nil
	case fields[0] == "INSERT":
		name, cols, err := parseInsert(query)
		if err != nil {
			return nil, err
		}
		t, _, err := c.table(name)
		if err != nil {
			return nil, err
		}
		if len(cols) != len(args) {
			return nil, fmt.Errorf("INSERT into %s has %d columns but %d values", name, len(cols), len(args))
		}
		row := make(map[string]driver.Value, len(t.Columns))
		for i, col := range cols {
			if !t.has(col) {
				return nil, fmt.Errorf("column %q of relation %q does not exist", col, name)
			}
			if args[i].Value == nil {
				return nil, fmt.Errorf("null value in column %q of relation %q", col, name)
			}
			row[col] = args[i].Value
		}
		t.Rows = append(t.Rows, row)
		return driver.RowsAffected(1), nil
	}
	return nil, fmt.Errorf("unsupported statement: %s", query)
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Queries = append(c.Queries, query)
	name, cols, order, err := parseSelect(query)
	if err != nil {
		return nil, err
	}
	t, _, err := c.table(name)
	if err != nil {
		return nil, err
	}
	for _, col := range append(append([]string(nil), cols...), order...) {
		if !t.has(col) {
			return nil, fmt.Errorf("column %q of relation %q does not exist", col, name)
		}
	}
	rows := append([]map[string]driver.Value(nil), t.Rows...)
	if len(order) > 0 {
		sort.SliceStable(rows, func(i, j int) bool {
			for _, col := range order {
				if cmp := compareValues(rows[i][col], rows[j][col]); cmp != 0 {
					return cmp < 0
				}
			}
			return false
		})
	}
	values := make([][]driver.Value, 0, len(rows))
	for _, row := range rows {
		vals := make([]driver.Value, len(cols))
		for i, col := range cols {
			vals[i] = row[col]
		}
		values = append(values, vals)
	}
	return &stubRows{cols: cols, rows: values, err: c.RowsErr}, nil
}

func (c *StubConn) table(name string) (*Table, string, error) {
	if c.FailTables[name] {
		return nil, name, fmt.Errorf("exec fail for %s", name)
	}
	t, ok := c.Tables[name]
	if !ok {
		return nil, name, fmt.Errorf("relation %q does not exist", name)
	}
	return t, name, nil
}

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	if t.conn.FailCommit {
		t.conn.Tables, t.conn.saved = t.conn.saved, nil
		return fmt.Errorf("commit fail")
	}
	t.conn.saved = nil
	return nil
}

func (t *stubTx) Rollback() error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	if t.conn.saved != nil {
		t.conn.Tables, t.conn.saved = t.conn.saved, nil
	}
	return nil
}

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
	err  error
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

// compareValues orders integers numerically and everything else as text.
func compareValues(a, b driver.Value) int {
	ai, aok := a.(int64)
	bi, bok := b.(int64)
	if aok && bok {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return 0
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func parseCreate(query string) (string, []string, error) {
	open := strings.Index(query, "(")
	closeIdx := strings.LastIndex(query, ")")
	if open == -1 || closeIdx <= open {
		return "", nil, fmt.Errorf("cannot parse create: %s", query)
	}
	head := strings.Fields(query[:open])
	if len(head) < 3 {
		return "", nil, fmt.Errorf("cannot parse create: %s", query)
	}
	name := strings.ToLower(head[len(head)-1])
	var cols []string
	for _, def := range strings.Split(query[open+1:closeIdx], ",") {
		parts := strings.Fields(def)
		if len(parts) == 0 {
			continue
		}
		cols = append(cols, strings.ToLower(parts[0]))
	}
	return name, cols, nil
}

func parseTruncate(query string) string {
	fields := strings.Fields(query)
	return strings.ToLower(strings.TrimSuffix(fields[len(fields)-1], ";"))
}

func parseInsert(query string) (string, []string, error) {
	up := strings.ToUpper(query)
	intoIdx := strings.Index(up, "INTO ")
	if intoIdx == -1 {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	rest := strings.TrimSpace(query[intoIdx+len("INTO "):])
	open := strings.Index(rest, "(")
	closeIdx := strings.Index(rest, ")")
	if open == -1 || closeIdx == -1 || closeIdx <= open {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	table := strings.ToLower(strings.TrimSpace(rest[:open]))
	return table, splitColumns(rest[open+1 : closeIdx]), nil
}

func parseSelect(query string) (table string, cols, order []string, err error) {
	lower := strings.ToLower(query)
	fromIdx := strings.Index(lower, " from ")
	if !strings.HasPrefix(lower, "select ") || fromIdx == -1 {
		return "", nil, nil, fmt.Errorf("cannot parse select: %s", query)
	}
	cols = splitColumns(query[len("select "):fromIdx])
	rest := strings.TrimSpace(lower[fromIdx+len(" from "):])
	if orderIdx := strings.Index(rest, " order by "); orderIdx != -1 {
		order = splitColumns(rest[orderIdx+len(" order by "):])
		rest = rest[:orderIdx]
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", nil, nil, fmt.Errorf("cannot parse select: %s", query)
	}
	return fields[0], cols, order, nil
}

func splitColumns(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, strings.ToLower(strings.TrimSpace(part)))
	}
	return out
}
