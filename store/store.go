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

// Package store defines the tabular store consumed by the de-identification
// engine, together with a SQLite implementation and an in-memory fake.
//
// The engine treats the store as its only mutable state. All values are
// strings; SQL NULL and the empty string are both read back as "". Writes are
// predicate-scoped updates or deletions, and every derived column or flag can
// be rebuilt from source data, so an interrupted run is recovered by simply
// re-running the step that defines it.
package store

import "fmt"

// ValueCount is one distinct value of a column and the number of rows
// holding it.
type ValueCount struct {
	Value string
	Count int64
}

// Op is a predicate comparison operator.
type Op int

const (
	// OpEq matches rows whose value equals Val. An empty Val also matches
	// SQL NULL.
	OpEq Op = iota
	// OpNe matches rows whose value differs from Val, including NULL rows.
	OpNe
	// OpMissing matches rows whose value is NULL, empty, or the literal
	// "NA" marker.
	OpMissing
)

// Cond is a single comparison against one column.
type Cond struct {
	Col string
	Op  Op
	Val string
}

// Pred is a conjunction of conditions. A nil or empty Pred matches every row.
type Pred []Cond

// Eq returns a condition matching rows where col equals val.
func Eq(col, val string) Cond { return Cond{Col: col, Op: OpEq, Val: val} }

// Ne returns a condition matching rows where col differs from val.
func Ne(col, val string) Cond { return Cond{Col: col, Op: OpNe, Val: val} }

// Missing returns a condition matching rows where col is null, empty, or "NA".
func Missing(col string) Cond { return Cond{Col: col, Op: OpMissing} }

// And builds a conjunction from the given conditions.
func And(conds ...Cond) Pred { return Pred(conds) }

// Store is the tabular store contract consumed by the engine.
//
// Implementations are synchronous and single-writer; the engine never issues
// concurrent calls against the same store.
type Store interface {
	// Columns returns the column names of the table in declaration order.
	Columns() ([]string, error)
	// HasColumn reports whether the named column exists.
	HasColumn(name string) (bool, error)
	// AddColumn adds a text column. Adding an existing column is an error.
	AddColumn(name string) error
	// IndexColumn creates an index over the column. It is a performance
	// hint; indexing twice is not an error.
	IndexColumn(name string) error
	// DistinctCounts returns each distinct value of the column with its
	// row count, ordered by value ascending. NULL reads as "".
	DistinctCounts(column string) ([]ValueCount, error)
	// DistinctCountsWhere is DistinctCounts restricted to rows matching p.
	DistinctCountsWhere(column string, p Pred) ([]ValueCount, error)
	// SelectColumn returns the column value of every row matching p, in
	// row order.
	SelectColumn(column string, p Pred) ([]string, error)
	// SelectRows returns the requested columns of every row matching p.
	SelectRows(columns []string, p Pred) ([][]string, error)
	// CountWhere returns the number of rows matching p.
	CountWhere(p Pred) (int64, error)
	// UpdateWhere sets column to value on every row matching p.
	UpdateWhere(column, value string, p Pred) error
	// DeleteWhere removes every row matching p and returns the number of
	// rows removed.
	DeleteWhere(p Pred) (int64, error)
}

// EnsureColumn adds the column if it does not exist yet and indexes it.
// Flag and derived columns are created lazily through this helper.
func EnsureColumn(s Store, name string) error {
	ok, err := s.HasColumn(name)
	if err != nil {
		return err
	}
	if !ok {
		if err := s.AddColumn(name); err != nil {
			return err
		}
	}
	return s.IndexColumn(name)
}

// missingMarkers are the values treated as absent by OpMissing, besides NULL.
var missingMarkers = []string{"", "NA"}

func isMissingValue(v string) bool {
	for _, m := range missingMarkers {
		if v == m {
			return true
		}
	}
	return false
}

func (c Cond) String() string {
	switch c.Op {
	case OpEq:
		return fmt.Sprintf("%s = %q", c.Col, c.Val)
	case OpNe:
		return fmt.Sprintf("%s != %q", c.Col, c.Val)
	case OpMissing:
		return fmt.Sprintf("%s missing", c.Col)
	}
	return fmt.Sprintf("%s ? %q", c.Col, c.Val)
}
