//
// Copyright 2024 the de-id authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package store

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/golang/glog"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mlessly/de-id/checks"
)

// SQLite is a Store backed by a single SQLite table. All columns are TEXT.
type SQLite struct {
	db    *sql.DB
	table string
}

// OpenSQLite opens (creating if needed) the SQLite database at path and
// binds the store to the named table. Use ":memory:" for a throwaway
// database.
func OpenSQLite(path, table string) (*SQLite, error) {
	if err := checks.CheckColumn(table); err != nil {
		return nil, fmt.Errorf("OpenSQLite: %v", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	return &SQLite{db: db, table: table}, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error { return s.db.Close() }

// LoadCSV drops the bound table if it exists and reloads it from the CSV
// file at path. The first record is the header; every column is created as
// TEXT.
func (s *SQLite) LoadCSV(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("LoadCSV: reading header: %v", err)
	}
	if err := checks.CheckColumns(header); err != nil {
		return fmt.Errorf("LoadCSV: %v", err)
	}

	if _, err := s.db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", s.table)); err != nil {
		return err
	}
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = h + " TEXT"
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", s.table, strings.Join(cols, ", "))
	if _, err := s.db.Exec(ddl); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	insert := fmt.Sprintf("INSERT INTO %s VALUES (%s)",
		s.table, strings.TrimRight(strings.Repeat("?,", len(header)), ","))
	stmt, err := tx.Prepare(insert)
	if err != nil {
		tx.Rollback()
		return err
	}
	var n int64
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("LoadCSV: row %d: %v", n+1, err)
		}
		vals := make([]interface{}, len(header))
		for i := range header {
			if i < len(rec) {
				vals[i] = rec[i]
			} else {
				vals[i] = ""
			}
		}
		if _, err := stmt.Exec(vals...); err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("LoadCSV: row %d: %v", n+1, err)
		}
		n++
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		return err
	}
	log.Infof("loaded %d rows into %s from %s", n, s.table, path)
	return nil
}

// Columns returns the table's column names in declaration order.
func (s *SQLite) Columns() ([]string, error) {
	rows, err := s.db.Query(fmt.Sprintf("SELECT * FROM %s LIMIT 0", s.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return rows.Columns()
}

// HasColumn reports whether the named column exists.
func (s *SQLite) HasColumn(name string) (bool, error) {
	cols, err := s.Columns()
	if err != nil {
		return false, err
	}
	for _, c := range cols {
		if c == name {
			return true, nil
		}
	}
	return false, nil
}

// AddColumn adds a TEXT column to the table.
func (s *SQLite) AddColumn(name string) error {
	if err := checks.CheckColumn(name); err != nil {
		return err
	}
	_, err := s.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s TEXT", s.table, name))
	return err
}

// IndexColumn creates an index over the column if one does not exist.
func (s *SQLite) IndexColumn(name string) error {
	if err := checks.CheckColumn(name); err != nil {
		return err
	}
	_, err := s.db.Exec(fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_idx ON %s (%s)", name, s.table, name))
	return err
}

// whereClause renders the predicate as a WHERE fragment with placeholders.
// An empty predicate renders as the empty string.
func whereClause(p Pred) (string, []interface{}, error) {
	if len(p) == 0 {
		return "", nil, nil
	}
	terms := make([]string, 0, len(p))
	var args []interface{}
	for _, c := range p {
		if err := checks.CheckColumn(c.Col); err != nil {
			return "", nil, err
		}
		switch c.Op {
		case OpEq:
			if c.Val == "" {
				terms = append(terms, fmt.Sprintf("(%s = '' OR %s IS NULL)", c.Col, c.Col))
			} else {
				terms = append(terms, fmt.Sprintf("%s = ?", c.Col))
				args = append(args, c.Val)
			}
		case OpNe:
			if c.Val == "" {
				terms = append(terms, fmt.Sprintf("(%s IS NOT NULL AND %s != '')", c.Col, c.Col))
			} else {
				terms = append(terms, fmt.Sprintf("(%s IS NULL OR %s != ?)", c.Col, c.Col))
				args = append(args, c.Val)
			}
		case OpMissing:
			terms = append(terms, fmt.Sprintf("(%s = '' OR %s = 'NA' OR %s IS NULL)", c.Col, c.Col, c.Col))
		default:
			return "", nil, fmt.Errorf("unknown predicate operator %d", c.Op)
		}
	}
	return " WHERE " + strings.Join(terms, " AND "), args, nil
}

// DistinctCounts returns each distinct value with its row count, ordered by
// value ascending.
func (s *SQLite) DistinctCounts(column string) ([]ValueCount, error) {
	return s.DistinctCountsWhere(column, nil)
}

// DistinctCountsWhere is DistinctCounts restricted to rows matching p.
func (s *SQLite) DistinctCountsWhere(column string, p Pred) ([]ValueCount, error) {
	if err := checks.CheckColumn(column); err != nil {
		return nil, err
	}
	where, args, err := whereClause(p)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT IFNULL(%s, ''), COUNT(*) FROM %s%s GROUP BY 1 ORDER BY 1",
		column, s.table, where)
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ValueCount
	for rows.Next() {
		var vc ValueCount
		if err := rows.Scan(&vc.Value, &vc.Count); err != nil {
			return nil, err
		}
		out = append(out, vc)
	}
	return out, rows.Err()
}

// SelectColumn returns the column value of every matching row.
func (s *SQLite) SelectColumn(column string, p Pred) ([]string, error) {
	rows, err := s.SelectRows([]string{column}, p)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r[0]
	}
	return out, nil
}

// SelectRows returns the requested columns of every matching row.
func (s *SQLite) SelectRows(columns []string, p Pred) ([][]string, error) {
	if err := checks.CheckColumns(columns); err != nil {
		return nil, err
	}
	exprs := make([]string, len(columns))
	for i, c := range columns {
		exprs[i] = fmt.Sprintf("IFNULL(%s, '')", c)
	}
	where, args, err := whereClause(p)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT %s FROM %s%s", strings.Join(exprs, ", "), s.table, where)
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out [][]string
	for rows.Next() {
		vals := make([]string, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out = append(out, vals)
	}
	return out, rows.Err()
}

// CountWhere returns the number of rows matching p.
func (s *SQLite) CountWhere(p Pred) (int64, error) {
	where, args, err := whereClause(p)
	if err != nil {
		return 0, err
	}
	var n int64
	err = s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s%s", s.table, where), args...).Scan(&n)
	return n, err
}

// UpdateWhere sets column to value on every row matching p.
func (s *SQLite) UpdateWhere(column, value string, p Pred) error {
	if err := checks.CheckColumn(column); err != nil {
		return err
	}
	where, args, err := whereClause(p)
	if err != nil {
		return err
	}
	q := fmt.Sprintf("UPDATE %s SET %s = ?%s", s.table, column, where)
	_, err = s.db.Exec(q, append([]interface{}{value}, args...)...)
	return err
}

// DeleteWhere removes every row matching p.
func (s *SQLite) DeleteWhere(p Pred) (int64, error) {
	where, args, err := whereClause(p)
	if err != nil {
		return 0, err
	}
	res, err := s.db.Exec(fmt.Sprintf("DELETE FROM %s%s", s.table, where), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
