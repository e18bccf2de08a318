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
	"encoding/csv"
	"fmt"
	"io"

	log "github.com/golang/glog"

	"github.com/mlessly/de-id/checks"
	"github.com/mlessly/de-id/store"
)

// IncompleteRule describes one internal-consistency rule; records matching
// the predicate are flagged incomplete.
type IncompleteRule struct {
	Desc string
	Pred store.Pred
}

// MarkIncomplete resets the incomplete flag and applies the rules. Returns
// the number of records flagged.
func MarkIncomplete(s store.Store, rules []IncompleteRule) (int64, error) {
	if err := store.EnsureColumn(s, IncompleteColumn); err != nil {
		return 0, err
	}
	if err := s.UpdateWhere(IncompleteColumn, "0", nil); err != nil {
		return 0, err
	}
	for _, r := range rules {
		n, err := s.CountWhere(r.Pred)
		if err != nil {
			return 0, err
		}
		log.Infof("incomplete rule %q matches %d records", r.Desc, n)
		if err := s.UpdateWhere(IncompleteColumn, "1", r.Pred); err != nil {
			return 0, err
		}
	}
	return s.CountWhere(store.And(store.Eq(IncompleteColumn, "1")))
}

// MarkExportable recomputes the export flag: a record is approved for export
// iff its key group was marked safe and it is not flagged incomplete. The
// incomplete flag is optional; when the column does not exist, safety alone
// decides. Returns the number of exportable records.
func MarkExportable(s store.Store) (int64, error) {
	hasCheck, err := s.HasColumn(CheckFlagColumn)
	if err != nil {
		return 0, err
	}
	if !hasCheck {
		return 0, fmt.Errorf("MarkExportable: %s column missing, run a k-anonymity check first", CheckFlagColumn)
	}
	if err := store.EnsureColumn(s, ExportFlagColumn); err != nil {
		return 0, err
	}
	if err := s.UpdateWhere(ExportFlagColumn, FlagFalse, nil); err != nil {
		return 0, err
	}
	gate := store.And(store.Eq(CheckFlagColumn, FlagTrue))
	hasIncomplete, err := s.HasColumn(IncompleteColumn)
	if err != nil {
		return 0, err
	}
	if hasIncomplete {
		gate = append(gate, store.Ne(IncompleteColumn, "1"))
	}
	if err := s.UpdateWhere(ExportFlagColumn, FlagTrue, gate); err != nil {
		return 0, err
	}
	return s.CountWhere(store.And(store.Eq(ExportFlagColumn, FlagTrue)))
}

// Censor overwrites the column with value on every record not approved for
// export. Run MarkExportable first.
func Censor(s store.Store, column, value string) error {
	if err := checks.CheckColumn(column); err != nil {
		return err
	}
	return s.UpdateWhere(column, value, store.And(store.Eq(ExportFlagColumn, FlagFalse)))
}

// Export writes the chosen columns of every exportable record as CSV.
// Re-identifying columns (raw user ids, IPs, timestamps) must simply be left
// out of the column list; the gate only filters rows. Returns the number of
// rows written.
func Export(s store.Store, w io.Writer, columns []string) (int64, error) {
	if err := checks.CheckColumns(columns); err != nil {
		return 0, err
	}
	hasFlag, err := s.HasColumn(ExportFlagColumn)
	if err != nil {
		return 0, err
	}
	if !hasFlag {
		return 0, fmt.Errorf("Export: %s column missing, run MarkExportable first", ExportFlagColumn)
	}
	rows, err := s.SelectRows(columns, store.And(store.Eq(ExportFlagColumn, FlagTrue)))
	if err != nil {
		return 0, err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return 0, err
	}
	for _, r := range rows {
		if err := cw.Write(r); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, err
	}
	log.Infof("exported %d rows, %d columns", len(rows), len(columns))
	return int64(len(rows)), nil
}
