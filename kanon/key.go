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

// Package kanon measures and enforces k-anonymity over a composite
// quasi-identifier key, verifies l-diversity of a sensitive attribute, and
// gates records for export.
package kanon

import (
	"strconv"
	"strings"

	log "github.com/golang/glog"

	"github.com/mlessly/de-id/checks"
	"github.com/mlessly/de-id/store"
)

// Column and flag-value conventions shared across the engine. Flag columns
// hold the literal strings "True"/"False" so they survive round trips
// through text-only stores.
const (
	// KeyColumn is the default composite quasi-identifier key column.
	KeyColumn = "kkey"
	// NullKeyColumn holds the column-restricted key used by IterativeCheck.
	NullKeyColumn = "nullkkey"
	// NullSigColumn holds the per-record null-presence signature.
	NullSigColumn = "nullSum"
	// CheckFlagColumn marks records whose key group reached size k.
	CheckFlagColumn = "kCheckFlag"
	// IncompleteColumn marks records failing an internal-consistency rule.
	IncompleteColumn = "incomplete_flag"
	// ExportFlagColumn marks records approved for export.
	ExportFlagColumn = "export_flag"

	// NullMarkSuffix is appended to a column name to form its
	// null-presence marker column ("1" populated, "0" missing).
	NullMarkSuffix = "_NF"

	FlagTrue  = "True"
	FlagFalse = "False"
)

const (
	keySep       = "\x1f"
	keyNullToken = "NULL"
)

// EncodeKey renders an ordered tuple of quasi-identifier values as a single
// key string. Each populated value is Go-quoted, so separator bytes inside a
// value cannot collide with the boundary, and missing values become an
// unquoted sentinel. Two records get equal keys iff their tuples are equal.
func EncodeKey(values []string) string {
	parts := make([]string, len(values))
	for i, v := range values {
		if v == "" {
			parts[i] = keyNullToken
		} else {
			parts[i] = strconv.Quote(v)
		}
	}
	return strings.Join(parts, keySep)
}

// BuildKey recomputes the composite key of the given columns into the target
// column for every record. The target is created and indexed on first use.
func BuildKey(s store.Store, columns []string, target string) error {
	if err := checks.CheckColumns(columns); err != nil {
		return err
	}
	if err := checks.CheckColumn(target); err != nil {
		return err
	}
	if err := store.EnsureColumn(s, target); err != nil {
		return err
	}
	rows, err := s.SelectRows(columns, nil)
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	var n int
	for _, tuple := range rows {
		key := EncodeKey(tuple)
		if seen[key] {
			continue
		}
		seen[key] = true
		p := make(store.Pred, len(columns))
		for i, c := range columns {
			p[i] = store.Eq(c, tuple[i])
		}
		if err := s.UpdateWhere(target, key, p); err != nil {
			return err
		}
		n++
	}
	log.V(1).Infof("built %s over %v: %d distinct keys", target, columns, n)
	return nil
}
