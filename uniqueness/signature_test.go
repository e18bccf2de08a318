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

// enrollments builds a store with one row per (user, course) enrollment.
func enrollments(pairs ...[2]string) *store.Mem {
	rows := make([][]string, len(pairs))
	for i, p := range pairs {
		rows[i] = []string{p[0], p[1]}
	}
	return store.NewMem([]string{"user_id", "course_id"}, rows...)
}

func TestBuildSignatures(t *testing.T) {
	s := enrollments(
		[2]string{"u1", "c1"},
		[2]string{"u1", "c3"},
		[2]string{"u2", "c2"},
	)
	courses, err := BuildSignatures(s, "user_id", "course_id")
	if err != nil {
		t.Fatalf("BuildSignatures: %v", err)
	}
	if diff := cmp.Diff([]string{"c1", "c2", "c3"}, courses); diff != "" {
		t.Errorf("course positions diff (-want +got):\n%s", diff)
	}
	sigs, err := s.SelectColumn(SignatureColumn, store.And(store.Eq("user_id", "u1")))
	if err != nil {
		t.Fatalf("SelectColumn: %v", err)
	}
	if diff := cmp.Diff([]string{"101", "101"}, sigs); diff != "" {
		t.Errorf("u1 signatures diff (-want +got):\n%s", diff)
	}
	sigs, err = s.SelectColumn(SignatureColumn, store.And(store.Eq("user_id", "u2")))
	if err != nil {
		t.Fatalf("SelectColumn: %v", err)
	}
	if diff := cmp.Diff([]string{"010"}, sigs); diff != "" {
		t.Errorf("u2 signatures diff (-want +got):\n%s", diff)
	}
}

func TestMeasureUniqueness(t *testing.T) {
	s := enrollments(
		[2]string{"u1", "c1"},
		[2]string{"u2", "c1"},
		[2]string{"u3", "c1"},
		[2]string{"u3", "c2"},
	)
	if _, err := BuildSignatures(s, "user_id", "course_id"); err != nil {
		t.Fatalf("BuildSignatures: %v", err)
	}
	m, err := MeasureUniqueness(s, "user_id", 2)
	if err != nil {
		t.Fatalf("MeasureUniqueness: %v", err)
	}
	want := Measure{
		Unique:      []store.ValueCount{{Value: "11", Count: 1}},
		Safe:        []string{"10"},
		Fraction:    1.0 / 3.0,
		UniqueUsers: 1,
		TotalUsers:  3,
	}
	if diff := cmp.Diff(want, m, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("MeasureUniqueness returned diff (-want +got):\n%s", diff)
	}
}

func TestFlagUnique(t *testing.T) {
	s := enrollments(
		[2]string{"u1", "c1"},
		[2]string{"u2", "c1"},
		[2]string{"u3", "c1"},
		[2]string{"u3", "c2"},
	)
	if _, err := BuildSignatures(s, "user_id", "course_id"); err != nil {
		t.Fatalf("BuildSignatures: %v", err)
	}
	m, err := MeasureUniqueness(s, "user_id", 2)
	if err != nil {
		t.Fatalf("MeasureUniqueness: %v", err)
	}
	if err := FlagUnique(s, m); err != nil {
		t.Fatalf("FlagUnique: %v", err)
	}
	got, err := s.SelectRows([]string{"user_id", UniqueFlagColumn}, nil)
	if err != nil {
		t.Fatalf("SelectRows: %v", err)
	}
	want := [][]string{
		{"u1", flagFalse},
		{"u2", flagFalse},
		{"u3", flagTrue},
		{"u3", flagTrue},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unique flags diff (-want +got):\n%s", diff)
	}
}

func TestBuildSignaturesBadColumns(t *testing.T) {
	s := enrollments([2]string{"u1", "c1"})
	if _, err := BuildSignatures(s, "bad name", "course_id"); err == nil {
		t.Errorf("BuildSignatures with an invalid user column got nil error, want error")
	}
	if _, err := BuildSignatures(s, "user_id", "bad name"); err == nil {
		t.Errorf("BuildSignatures with an invalid course column got nil error, want error")
	}
}
