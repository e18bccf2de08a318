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

// Package uniqueness resolves per-user re-identifiability caused by rare
// course-enrollment combinations.
//
// A user's enrollment signature is a bit string with one position per
// distinct course; users sharing a signature form a group, and a group with
// fewer than k users is effectively unique. The resolver repeatedly redacts
// the single enrollment fact whose removal merges unique groups into k-safe
// ones at the least entropy cost, until no unique group remains or no
// eligible redaction exists.
package uniqueness

import (
	"sort"

	log "github.com/golang/glog"

	"github.com/mlessly/de-id/checks"
	"github.com/mlessly/de-id/store"
)

const (
	// SignatureColumn holds each record's user-level enrollment signature.
	SignatureColumn = "course_combo"
	// UniqueFlagColumn marks records of users in below-k signature groups.
	UniqueFlagColumn = "uniqUserFlag"

	flagTrue  = "True"
	flagFalse = "False"
)

// BuildSignatures recomputes every user's enrollment signature over the
// current course domain and returns the course list; position i of a
// signature corresponds to courses[i]. Positions are stable for a given
// build; after any course drop the caller must rebuild.
func BuildSignatures(s store.Store, userColumn, courseColumn string) ([]string, error) {
	if err := checks.CheckColumn(userColumn); err != nil {
		return nil, err
	}
	if err := checks.CheckColumn(courseColumn); err != nil {
		return nil, err
	}
	courseCounts, err := s.DistinctCounts(courseColumn)
	if err != nil {
		return nil, err
	}
	courses := make([]string, len(courseCounts))
	pos := make(map[string]int, len(courseCounts))
	for i, c := range courseCounts {
		courses[i] = c.Value
		pos[c.Value] = i
	}

	rows, err := s.SelectRows([]string{userColumn, courseColumn}, nil)
	if err != nil {
		return nil, err
	}
	enrolled := map[string][]bool{}
	for _, r := range rows {
		user, course := r[0], r[1]
		bits, ok := enrolled[user]
		if !ok {
			bits = make([]bool, len(courses))
			enrolled[user] = bits
		}
		bits[pos[course]] = true
	}

	if err := store.EnsureColumn(s, SignatureColumn); err != nil {
		return nil, err
	}
	users := make([]string, 0, len(enrolled))
	for u := range enrolled {
		users = append(users, u)
	}
	sort.Strings(users)
	for _, u := range users {
		sig := make([]byte, len(courses))
		for i, on := range enrolled[u] {
			if on {
				sig[i] = '1'
			} else {
				sig[i] = '0'
			}
		}
		if err := s.UpdateWhere(SignatureColumn, string(sig), store.And(store.Eq(userColumn, u))); err != nil {
			return nil, err
		}
	}
	log.V(1).Infof("built %s: %d courses, %d users", SignatureColumn, len(courses), len(users))
	return courses, nil
}

// Measure is the uniqueness verdict over the current signatures.
type Measure struct {
	// Unique holds the signatures shared by fewer than k users, with their
	// user counts, ordered by signature.
	Unique []store.ValueCount
	// Safe holds the signatures shared by k or more users, ordered.
	Safe []string
	// Fraction is uniqueUsers / totalUsers; the resolver drives it to 0.
	Fraction float64
	// UniqueUsers and TotalUsers are distinct-user counts.
	UniqueUsers int64
	TotalUsers  int64
}

// MeasureUniqueness groups distinct users by signature and splits the
// signatures at group size k. BuildSignatures must have run first.
func MeasureUniqueness(s store.Store, userColumn string, k int64) (Measure, error) {
	if err := checks.CheckK(k); err != nil {
		return Measure{}, err
	}
	rows, err := s.SelectRows([]string{userColumn, SignatureColumn}, nil)
	if err != nil {
		return Measure{}, err
	}
	userSig := map[string]string{}
	for _, r := range rows {
		userSig[r[0]] = r[1]
	}
	counts := map[string]int64{}
	for _, sig := range userSig {
		counts[sig]++
	}
	sigs := make([]string, 0, len(counts))
	for sig := range counts {
		sigs = append(sigs, sig)
	}
	sort.Strings(sigs)

	var m Measure
	for _, sig := range sigs {
		n := counts[sig]
		m.TotalUsers += n
		if n < k {
			m.UniqueUsers += n
			m.Unique = append(m.Unique, store.ValueCount{Value: sig, Count: n})
		} else {
			m.Safe = append(m.Safe, sig)
		}
	}
	if m.TotalUsers > 0 {
		m.Fraction = float64(m.UniqueUsers) / float64(m.TotalUsers)
	}
	return m, nil
}

// FlagUnique rewrites the unique-user flag from the measure: records whose
// signature is in a below-k group get "True", all others "False".
func FlagUnique(s store.Store, m Measure) error {
	if err := store.EnsureColumn(s, UniqueFlagColumn); err != nil {
		return err
	}
	if err := s.UpdateWhere(UniqueFlagColumn, flagFalse, nil); err != nil {
		return err
	}
	for _, g := range m.Unique {
		if err := s.UpdateWhere(UniqueFlagColumn, flagTrue,
			store.And(store.Eq(SignatureColumn, g.Value))); err != nil {
			return err
		}
	}
	return nil
}
