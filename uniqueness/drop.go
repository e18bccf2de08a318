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

package uniqueness

import (
	"fmt"

	log "github.com/golang/glog"
	"gonum.org/v1/gonum/stat/combin"

	"github.com/mlessly/de-id/checks"
	"github.com/mlessly/de-id/stats"
	"github.com/mlessly/de-id/store"
)

// Candidate is an eligible redaction found by OptimumDrop.
type Candidate struct {
	// Positions are the signature positions to zero, ascending.
	Positions []int
	// Delta is entropyBefore - entropyAfter over the unique groups; always
	// strictly positive for a returned candidate.
	Delta float64
	// ChangeVals are the unique signatures that merge into a k-safe group
	// when the positions are zeroed, ordered by signature.
	ChangeVals []string
}

func zeroed(sig string, positions []int) string {
	b := []byte(sig)
	for _, p := range positions {
		b[p] = '0'
	}
	return string(b)
}

// OptimumDrop searches for the best enrollment fact to redact. For every
// combination of nComb signature positions it simulates zeroing those
// positions across all unique-group signatures and recomputes group sizes. A
// combination is eligible if at least one unique signature merges into a
// group of size >= k, or into a signature already known safe, and the merge
// strictly reduces entropy. Among eligible combinations the one with the
// smallest Delta wins: the least information lost for the anonymity gained.
// Ties break to the earlier combination in lexicographic position order, so
// the result is deterministic.
//
// The second return value is false when no eligible combination exists; the
// caller must stop resolving rather than loop.
func OptimumDrop(unique []store.ValueCount, safe []string, k int64, nComb int) (Candidate, bool, error) {
	if len(unique) == 0 {
		return Candidate{}, false, nil
	}
	width := len(unique[0].Value)
	for _, g := range unique {
		if len(g.Value) != width {
			return Candidate{}, false, fmt.Errorf("OptimumDrop: signature width mismatch: %q vs width %d", g.Value, width)
		}
	}
	if err := checks.CheckNComb(nComb, width); err != nil {
		return Candidate{}, false, err
	}
	safeSet := make(map[string]bool, len(safe))
	for _, s := range safe {
		safeSet[s] = true
	}
	preEntropy, err := stats.Entropy(unique)
	if err != nil {
		return Candidate{}, false, err
	}

	var best Candidate
	found := false
	for _, positions := range combin.Combinations(width, nComb) {
		merged := make(map[string]int64, len(unique))
		for _, g := range unique {
			merged[zeroed(g.Value, positions)] += g.Count
		}
		post := make([]store.ValueCount, 0, len(merged))
		for _, g := range unique {
			z := zeroed(g.Value, positions)
			if n, ok := merged[z]; ok {
				post = append(post, store.ValueCount{Value: z, Count: n})
				delete(merged, z)
			}
		}
		postEntropy, err := stats.Entropy(post)
		if err != nil {
			return Candidate{}, false, err
		}
		delta := preEntropy - postEntropy
		if delta <= 0 {
			continue
		}

		mergedCounts := make(map[string]int64, len(post))
		for _, g := range post {
			mergedCounts[g.Value] = g.Count
		}
		var changeVals []string
		for _, g := range unique {
			z := zeroed(g.Value, positions)
			if z == g.Value {
				// No dropped position was set; this signature does not
				// change and cannot benefit.
				continue
			}
			if mergedCounts[z] >= k || safeSet[z] {
				changeVals = append(changeVals, g.Value)
			}
		}
		if len(changeVals) == 0 {
			continue
		}
		if !found || delta < best.Delta {
			best = Candidate{Positions: positions, Delta: delta, ChangeVals: changeVals}
			found = true
		}
	}
	return best, found, nil
}

// DropCourse deletes every enrollment record of the given course belonging
// to a flagged-unique user whose signature is among changeVals, i.e. the
// signatures known to merge into a k-safe group. The deleted-row count is
// accumulated into the ledger under the course name. FlagUnique must have
// run against the current signatures first.
func DropCourse(s store.Store, courseColumn, course string, changeVals []string, ledger map[string]int64) (int64, error) {
	var deleted int64
	for _, sig := range changeVals {
		n, err := s.DeleteWhere(store.And(
			store.Eq(courseColumn, course),
			store.Eq(UniqueFlagColumn, flagTrue),
			store.Eq(SignatureColumn, sig),
		))
		if err != nil {
			return deleted, err
		}
		deleted += n
	}
	if deleted > 0 {
		ledger[course] += deleted
	}
	log.Infof("dropped %d records of course %s across %d signatures", deleted, course, len(changeVals))
	return deleted, nil
}
