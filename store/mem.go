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
	"fmt"
	"sort"

	"github.com/mlessly/de-id/checks"
)

// Mem is an in-memory Store for tests. It mirrors the SQLite matching
// semantics exactly: absent cells read as "", and OpMissing matches "",
// "NA", and absent cells alike.
type Mem struct {
	cols []string
	rows []map[string]string
}

// NewMem returns a Mem with the given columns and rows. Each row lists its
// values in column order; short rows are padded with "".
func NewMem(columns []string, rows ...[]string) *Mem {
	m := &Mem{cols: append([]string(nil), columns...)}
	for _, r := range rows {
		row := make(map[string]string, len(columns))
		for i, c := range columns {
			if i < len(r) {
				row[c] = r[i]
			}
		}
		m.rows = append(m.rows, row)
	}
	return m
}

// Len returns the number of rows.
func (m *Mem) Len() int { return len(m.rows) }

// Columns returns the column names in declaration order.
func (m *Mem) Columns() ([]string, error) {
	return append([]string(nil), m.cols...), nil
}

// HasColumn reports whether the named column exists.
func (m *Mem) HasColumn(name string) (bool, error) {
	for _, c := range m.cols {
		if c == name {
			return true, nil
		}
	}
	return false, nil
}

// AddColumn adds a column; every existing row reads "" for it.
func (m *Mem) AddColumn(name string) error {
	if err := checks.CheckColumn(name); err != nil {
		return err
	}
	ok, _ := m.HasColumn(name)
	if ok {
		return fmt.Errorf("column %q already exists", name)
	}
	m.cols = append(m.cols, name)
	return nil
}

// IndexColumn is a no-op; Mem has no indexes.
func (m *Mem) IndexColumn(name string) error {
	return checks.CheckColumn(name)
}

func (m *Mem) checkHas(name string) error {
	ok, _ := m.HasColumn(name)
	if !ok {
		return fmt.Errorf("no such column %q", name)
	}
	return nil
}

func (m *Mem) matches(row map[string]string, p Pred) bool {
	for _, c := range p {
		v := row[c.Col]
		switch c.Op {
		case OpEq:
			if v != c.Val {
				return false
			}
		case OpNe:
			if v == c.Val {
				return false
			}
		case OpMissing:
			if !isMissingValue(v) {
				return false
			}
		}
	}
	return true
}

func (m *Mem) checkPred(p Pred) error {
	for _, c := range p {
		if err := m.checkHas(c.Col); err != nil {
			return err
		}
	}
	return nil
}

// DistinctCounts returns each distinct value with its row count, ordered by
// value ascending.
func (m *Mem) DistinctCounts(column string) ([]ValueCount, error) {
	return m.DistinctCountsWhere(column, nil)
}

// DistinctCountsWhere is DistinctCounts restricted to rows matching p.
func (m *Mem) DistinctCountsWhere(column string, p Pred) ([]ValueCount, error) {
	if err := m.checkHas(column); err != nil {
		return nil, err
	}
	if err := m.checkPred(p); err != nil {
		return nil, err
	}
	counts := map[string]int64{}
	for _, row := range m.rows {
		if m.matches(row, p) {
			counts[row[column]]++
		}
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]ValueCount, len(keys))
	for i, k := range keys {
		out[i] = ValueCount{Value: k, Count: counts[k]}
	}
	return out, nil
}

// SelectColumn returns the column value of every matching row.
func (m *Mem) SelectColumn(column string, p Pred) ([]string, error) {
	rows, err := m.SelectRows([]string{column}, p)
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
func (m *Mem) SelectRows(columns []string, p Pred) ([][]string, error) {
	for _, c := range columns {
		if err := m.checkHas(c); err != nil {
			return nil, err
		}
	}
	if err := m.checkPred(p); err != nil {
		return nil, err
	}
	var out [][]string
	for _, row := range m.rows {
		if !m.matches(row, p) {
			continue
		}
		vals := make([]string, len(columns))
		for i, c := range columns {
			vals[i] = row[c]
		}
		out = append(out, vals)
	}
	return out, nil
}

// CountWhere returns the number of rows matching p.
func (m *Mem) CountWhere(p Pred) (int64, error) {
	if err := m.checkPred(p); err != nil {
		return 0, err
	}
	var n int64
	for _, row := range m.rows {
		if m.matches(row, p) {
			n++
		}
	}
	return n, nil
}

// UpdateWhere sets column to value on every row matching p.
func (m *Mem) UpdateWhere(column, value string, p Pred) error {
	if err := m.checkHas(column); err != nil {
		return err
	}
	if err := m.checkPred(p); err != nil {
		return err
	}
	for _, row := range m.rows {
		if m.matches(row, p) {
			row[column] = value
		}
	}
	return nil
}

// DeleteWhere removes every row matching p.
func (m *Mem) DeleteWhere(p Pred) (int64, error) {
	if err := m.checkPred(p); err != nil {
		return 0, err
	}
	kept := m.rows[:0]
	var n int64
	for _, row := range m.rows {
		if m.matches(row, p) {
			n++
			continue
		}
		kept = append(kept, row)
	}
	m.rows = kept
	return n, nil
}
