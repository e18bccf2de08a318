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
	log "github.com/golang/glog"

	"github.com/mlessly/de-id/checks"
	"github.com/mlessly/de-id/store"
)

// CheckResult is the verdict of a k-anonymity check.
type CheckResult struct {
	// Safe is true iff no considered key group has fewer than k records.
	Safe bool
	// SuppressionFraction is the fraction of considered records that sit
	// in groups below k. It is a utility/privacy trade-off signal: the
	// caller decides whether to generalize further or accept the
	// suppression cost.
	SuppressionFraction float64
	// Considered is the number of records the check covered.
	Considered int64
	// BelowK is the number of considered records in groups below k.
	BelowK int64
}

// Check measures k-anonymity of the key column. Records already marked safe
// by an earlier iterative check (CheckFlagColumn = "True") are excluded when
// that flag column exists.
func Check(s store.Store, keyColumn string, k int64) (CheckResult, error) {
	if err := checks.CheckK(k); err != nil {
		return CheckResult{}, err
	}
	if err := checks.CheckColumn(keyColumn); err != nil {
		return CheckResult{}, err
	}
	var p store.Pred
	hasFlag, err := s.HasColumn(CheckFlagColumn)
	if err != nil {
		return CheckResult{}, err
	}
	if hasFlag {
		p = store.And(store.Eq(CheckFlagColumn, FlagFalse))
	}
	groups, err := s.DistinctCountsWhere(keyColumn, p)
	if err != nil {
		return CheckResult{}, err
	}
	var res CheckResult
	for _, g := range groups {
		res.Considered += g.Count
		if g.Count < k {
			res.BelowK += g.Count
		}
	}
	res.Safe = res.BelowK == 0
	if res.Considered > 0 {
		res.SuppressionFraction = float64(res.BelowK) / float64(res.Considered)
	} else {
		res.Safe = true
	}
	log.Infof("k-anonymity check on %s: k=%d considered=%d belowK=%d fraction=%.4f",
		keyColumn, k, res.Considered, res.BelowK, res.SuppressionFraction)
	return res, nil
}
