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

package kanon

import (
	"strings"

	log "github.com/golang/glog"

	"github.com/mlessly/de-id/checks"
	"github.com/mlessly/de-id/store"
)

// MarkNulls writes a null-presence marker column ("1" populated, "0" null,
// empty, or "NA") next to each quasi-identifier column and returns the
// marker column names in input order.
func MarkNulls(s store.Store, columns []string) ([]string, error) {
	if err := checks.CheckColumns(columns); err != nil {
		return nil, err
	}
	marks := make([]string, len(columns))
	for i, col := range columns {
		mark := col + NullMarkSuffix
		if err := store.EnsureColumn(s, mark); err != nil {
			return nil, err
		}
		if err := s.UpdateWhere(mark, "1", nil); err != nil {
			return nil, err
		}
		if err := s.UpdateWhere(mark, "0", store.And(store.Missing(col))); err != nil {
			return nil, err
		}
		marks[i] = mark
	}
	return marks, nil
}

// writeNullSignatures concatenates the marker bits into NullSigColumn for
// every record and returns the distinct signatures observed.
func writeNullSignatures(s store.Store, marks []string) ([]string, error) {
	if err := store.EnsureColumn(s, NullSigColumn); err != nil {
		return nil, err
	}
	rows, err := s.SelectRows(marks, nil)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var sigs []string
	for _, bits := range rows {
		sig := strings.Join(bits, "")
		if seen[sig] {
			continue
		}
		seen[sig] = true
		sigs = append(sigs, sig)
		p := make(store.Pred, len(marks))
		for i, m := range marks {
			p[i] = store.Eq(m, bits[i])
		}
		if err := s.UpdateWhere(NullSigColumn, sig, p); err != nil {
			return nil, err
		}
	}
	return sigs, nil
}

// IterativeResult summarizes an IterativeCheck run.
type IterativeResult struct {
	// Signatures is the number of distinct null signatures processed.
	Signatures int
	// MarkedSafe is the number of records whose key group reached k under
	// some column-restricted check.
	MarkedSafe int64
	// Unsafe is the number of records left unmarked; they are candidates
	// for suppression.
	Unsafe int64
}

// IterativeCheck partitions records by which quasi-identifiers are populated
// and converges the safe flag across those partitions. For every observed
// null signature with at least one populated column, it builds a key over
// just the populated columns and marks groups of size >= k safe, excluding
// records already marked by an earlier, stronger signature. Fully-null
// signatures are never marked: such records carry no key to check and stay
// suppressible.
//
// The whole pass rebuilds markers, signatures, and the safe flag from source
// data, so re-running it after an interruption is safe.
func IterativeCheck(s store.Store, columns []string, k int64) (IterativeResult, error) {
	if err := checks.CheckK(k); err != nil {
		return IterativeResult{}, err
	}
	marks, err := MarkNulls(s, columns)
	if err != nil {
		return IterativeResult{}, err
	}
	sigs, err := writeNullSignatures(s, marks)
	if err != nil {
		return IterativeResult{}, err
	}
	if err := store.EnsureColumn(s, CheckFlagColumn); err != nil {
		return IterativeResult{}, err
	}
	if err := s.UpdateWhere(CheckFlagColumn, FlagFalse, nil); err != nil {
		return IterativeResult{}, err
	}

	res := IterativeResult{}
	for _, sig := range sigs {
		if !strings.Contains(sig, "1") {
			continue
		}
		var present []string
		for i := range columns {
			if sig[i] == '1' {
				present = append(present, columns[i])
			}
		}
		log.Infof("checking null signature %s over %v", sig, present)
		if err := BuildKey(s, present, NullKeyColumn); err != nil {
			return res, err
		}
		groups, err := s.DistinctCountsWhere(NullKeyColumn,
			store.And(store.Eq(CheckFlagColumn, FlagFalse)))
		if err != nil {
			return res, err
		}
		for _, g := range groups {
			if g.Count < k {
				continue
			}
			if err := s.UpdateWhere(CheckFlagColumn, FlagTrue,
				store.And(store.Eq(NullKeyColumn, g.Value), store.Eq(NullSigColumn, sig))); err != nil {
				return res, err
			}
		}
		res.Signatures++
	}
	res.MarkedSafe, err = s.CountWhere(store.And(store.Eq(CheckFlagColumn, FlagTrue)))
	if err != nil {
		return res, err
	}
	res.Unsafe, err = s.CountWhere(store.And(store.Eq(CheckFlagColumn, FlagFalse)))
	if err != nil {
		return res, err
	}
	log.Infof("iterative check done: %d signatures, %d safe, %d unsafe",
		res.Signatures, res.MarkedSafe, res.Unsafe)
	return res, nil
}
