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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/mlessly/de-id/store"
)

func TestOptimumDropMergesIntoK(t *testing.T) {
	unique := []store.ValueCount{
		{Value: "100", Count: 1},
		{Value: "101", Count: 1},
	}
	cand, ok, err := OptimumDrop(unique, nil, 2, 1)
	if err != nil {
		t.Fatalf("OptimumDrop: %v", err)
	}
	if !ok {
		t.Fatal("OptimumDrop found no candidate, want one")
	}
	want := Candidate{Positions: []int{2}, Delta: 1.0, ChangeVals: []string{"101"}}
	if diff := cmp.Diff(want, cand, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("OptimumDrop returned diff (-want +got):\n%s", diff)
	}
}

// Among several eligible drops the one destroying the least entropy wins,
// even when another drop would rescue more users.
func TestOptimumDropPicksSmallestDelta(t *testing.T) {
	unique := []store.ValueCount{
		{Value: "01", Count: 1},
		{Value: "10", Count: 2},
		{Value: "11", Count: 1},
	}
	cand, ok, err := OptimumDrop(unique, []string{"00"}, 3, 1)
	if err != nil {
		t.Fatalf("OptimumDrop: %v", err)
	}
	if !ok {
		t.Fatal("OptimumDrop found no candidate, want one")
	}
	// Zeroing position 0 costs 0.5 bits; zeroing position 1 would rescue
	// two groups but costs about 0.689 bits.
	want := Candidate{Positions: []int{0}, Delta: 0.5, ChangeVals: []string{"10"}}
	if diff := cmp.Diff(want, cand, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("OptimumDrop returned diff (-want +got):\n%s", diff)
	}
}

// Equal deltas break to the earlier position combination, keeping the search
// deterministic.
func TestOptimumDropTieBreaksToFirstPosition(t *testing.T) {
	unique := []store.ValueCount{
		{Value: "01", Count: 1},
		{Value: "10", Count: 1},
		{Value: "11", Count: 1},
	}
	cand, ok, err := OptimumDrop(unique, nil, 2, 1)
	if err != nil {
		t.Fatalf("OptimumDrop: %v", err)
	}
	if !ok {
		t.Fatal("OptimumDrop found no candidate, want one")
	}
	if diff := cmp.Diff([]int{0}, cand.Positions); diff != "" {
		t.Errorf("OptimumDrop positions diff (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"11"}, cand.ChangeVals); diff != "" {
		t.Errorf("OptimumDrop change values diff (-want +got):\n%s", diff)
	}
}

func TestOptimumDropNoCandidate(t *testing.T) {
	for _, tc := range []struct {
		desc   string
		unique []store.ValueCount
		safe   []string
		k      int64
	}{
		{"no unique groups",
			nil,
			[]string{"10"},
			2},
		{"merges stay below k",
			[]store.ValueCount{{Value: "10", Count: 1}, {Value: "01", Count: 1}},
			nil,
			3},
		{"single group has no entropy to lose",
			[]store.ValueCount{{Value: "10", Count: 1}},
			[]string{"00"},
			2},
	} {
		_, ok, err := OptimumDrop(tc.unique, tc.safe, tc.k, 1)
		if err != nil {
			t.Fatalf("OptimumDrop: when %s got err %v", tc.desc, err)
		}
		if ok {
			t.Errorf("OptimumDrop: when %s found a candidate, want none", tc.desc)
		}
	}
}

func TestOptimumDropPairOfPositions(t *testing.T) {
	unique := []store.ValueCount{
		{Value: "110", Count: 1},
		{Value: "000", Count: 1},
	}
	cand, ok, err := OptimumDrop(unique, nil, 2, 2)
	if err != nil {
		t.Fatalf("OptimumDrop: %v", err)
	}
	if !ok {
		t.Fatal("OptimumDrop found no candidate, want one")
	}
	want := Candidate{Positions: []int{0, 1}, Delta: 1.0, ChangeVals: []string{"110"}}
	if diff := cmp.Diff(want, cand, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("OptimumDrop returned diff (-want +got):\n%s", diff)
	}
}

func TestOptimumDropBadInput(t *testing.T) {
	mixed := []store.ValueCount{
		{Value: "10", Count: 1},
		{Value: "100", Count: 1},
	}
	if _, _, err := OptimumDrop(mixed, nil, 2, 1); err == nil {
		t.Errorf("OptimumDrop with mixed signature widths got nil error, want error")
	}
	unique := []store.ValueCount{{Value: "10", Count: 1}}
	if _, _, err := OptimumDrop(unique, nil, 2, 3); err == nil {
		t.Errorf("OptimumDrop with nComb above the width got nil error, want error")
	}
}

func TestDropCourse(t *testing.T) {
	s := store.NewMem([]string{"user_id", "course_id", SignatureColumn, UniqueFlagColumn},
		[]string{"u1", "c1", "110", flagTrue},
		[]string{"u1", "c2", "110", flagTrue},
		[]string{"u2", "c2", "010", flagFalse},
		[]string{"u3", "c2", "011", flagTrue},
	)
	ledger := map[string]int64{}
	n, err := DropCourse(s, "course_id", "c2", []string{"110"}, ledger)
	if err != nil {
		t.Fatalf("DropCourse: %v", err)
	}
	if n != 1 {
		t.Errorf("DropCourse deleted %d rows, want 1", n)
	}
	if diff := cmp.Diff(map[string]int64{"c2": 1}, ledger); diff != "" {
		t.Errorf("ledger diff (-want +got):\n%s", diff)
	}
	// u2 is not flagged unique and u3 has a different signature; both keep
	// their c2 enrollment.
	left, err := s.SelectColumn("user_id", store.And(store.Eq("course_id", "c2")))
	if err != nil {
		t.Fatalf("SelectColumn: %v", err)
	}
	if diff := cmp.Diff([]string{"u2", "u3"}, left); diff != "" {
		t.Errorf("remaining c2 enrollments diff (-want +got):\n%s", diff)
	}
}

func TestDropCourseNoMatches(t *testing.T) {
	s := store.NewMem([]string{"user_id", "course_id", SignatureColumn, UniqueFlagColumn},
		[]string{"u1", "c1", "10", flagTrue},
	)
	ledger := map[string]int64{}
	n, err := DropCourse(s, "course_id", "c2", []string{"10"}, ledger)
	if err != nil {
		t.Fatalf("DropCourse: %v", err)
	}
	if n != 0 {
		t.Errorf("DropCourse deleted %d rows, want 0", n)
	}
	if len(ledger) != 0 {
		t.Errorf("ledger = %v, want no entries for a no-op drop", ledger)
	}
}
