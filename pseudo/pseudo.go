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

// Package pseudo replaces raw identifiers with sequential pseudonyms.
//
// The assignment order is a cryptographically secure shuffle of the distinct
// identifiers, so the numbering cannot be reproduced by re-sorting the raw
// ids. The pseudonym itself is prefix + zero-padded sequence number, e.g.
// "MITx0000137".
package pseudo

import (
	"fmt"

	log "github.com/golang/glog"

	"github.com/mlessly/de-id/checks"
	"github.com/mlessly/de-id/rand"
	"github.com/mlessly/de-id/store"
)

// AssignIDs writes a pseudonym for every distinct non-missing value of the
// id column into the derived column <column>_DI, and returns the number of
// identifiers assigned. Re-running reassigns pseudonyms in a fresh random
// order.
func AssignIDs(s store.Store, column, prefix string) (int64, error) {
	if err := checks.CheckColumn(column); err != nil {
		return 0, err
	}
	counts, err := s.DistinctCounts(column)
	if err != nil {
		return 0, err
	}
	var ids []string
	for _, vc := range counts {
		if vc.Value == "" {
			continue
		}
		ids = append(ids, vc.Value)
	}
	if len(ids) == 0 {
		return 0, fmt.Errorf("AssignIDs: column %s has no identifiers", column)
	}
	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	// Pad one digit wider than the id count so the width never leaks the
	// exact population size.
	width := len(fmt.Sprintf("%d", len(ids)*10))
	target := column + "_DI"
	if err := store.EnsureColumn(s, target); err != nil {
		return 0, err
	}
	for i, id := range ids {
		pseudonym := fmt.Sprintf("%s%0*d", prefix, width, i+1)
		if err := s.UpdateWhere(target, pseudonym, store.And(store.Eq(column, id))); err != nil {
			return 0, err
		}
	}
	log.Infof("assigned %d pseudonyms to %s", len(ids), target)
	return int64(len(ids)), nil
}
