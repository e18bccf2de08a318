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

// LDiversity scans every key group for homogeneity of the sensitive
// attribute. A k-anonymous group where everyone shares one sensitive value
// discloses that value for all members even though no individual is
// distinguishable, so the sensitive attribute is blanked for the whole
// group. Groups with two or more distinct values are left untouched.
// Returns the number of groups redacted.
func LDiversity(s store.Store, keyColumn, sensitive string) (int, error) {
	if err := checks.CheckColumn(keyColumn); err != nil {
		return 0, err
	}
	if err := checks.CheckColumn(sensitive); err != nil {
		return 0, err
	}
	groups, err := s.DistinctCounts(keyColumn)
	if err != nil {
		return 0, err
	}
	redacted := 0
	for _, g := range groups {
		vals, err := s.DistinctCountsWhere(sensitive, store.And(store.Eq(keyColumn, g.Value)))
		if err != nil {
			return redacted, err
		}
		if len(vals) != 1 {
			continue
		}
		if vals[0].Value == "" {
			// Already blank; nothing left to disclose.
			continue
		}
		if err := s.UpdateWhere(sensitive, "", store.And(store.Eq(keyColumn, g.Value))); err != nil {
			return redacted, err
		}
		redacted++
	}
	log.Infof("l-diversity: redacted %s in %d of %d groups", sensitive, redacted, len(groups))
	return redacted, nil
}
