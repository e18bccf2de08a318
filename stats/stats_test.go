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

package stats

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	grdstat "github.com/grd/stat"

	"github.com/mlessly/de-id/store"
)

const tolerance = 1e-12

func TestEntropy(t *testing.T) {
	for _, tc := range []struct {
		desc  string
		pairs []store.ValueCount
		want  float64
	}{
		{"two equal groups",
			[]store.ValueCount{{Value: "A", Count: 1}, {Value: "B", Count: 1}},
			1.0},
		{"single group",
			[]store.ValueCount{{Value: "A", Count: 1}},
			0.0},
		{"single large group",
			[]store.ValueCount{{Value: "A", Count: 100}},
			0.0},
		{"four equal groups",
			[]store.ValueCount{{Value: "A", Count: 5}, {Value: "B", Count: 5}, {Value: "C", Count: 5}, {Value: "D", Count: 5}},
			2.0},
		{"skewed groups",
			[]store.ValueCount{{Value: "A", Count: 1}, {Value: "B", Count: 1}, {Value: "C", Count: 2}},
			1.5},
	} {
		got, err := Entropy(tc.pairs)
		if err != nil {
			t.Fatalf("Entropy: when %s got err %v", tc.desc, err)
		}
		if !cmp.Equal(got, tc.want, cmpopts.EquateApprox(0, tolerance)) {
			t.Errorf("Entropy: when %s got %f, want %f", tc.desc, got, tc.want)
		}
	}
}

// The entropy of a distribution depends only on the group sizes, not on the
// labels or on the order the groups are listed in.
func TestEntropyIgnoresLabelsAndOrder(t *testing.T) {
	base := []store.ValueCount{{Value: "A", Count: 1}, {Value: "B", Count: 3}}
	relabeled := []store.ValueCount{{Value: "X", Count: 1}, {Value: "Y", Count: 3}}
	reordered := []store.ValueCount{{Value: "B", Count: 3}, {Value: "A", Count: 1}}

	h, err := Entropy(base)
	if err != nil {
		t.Fatalf("Entropy(base): %v", err)
	}
	h2, err := Entropy(relabeled)
	if err != nil {
		t.Fatalf("Entropy(relabeled): %v", err)
	}
	h3, err := Entropy(reordered)
	if err != nil {
		t.Fatalf("Entropy(reordered): %v", err)
	}
	if h != h2 {
		t.Errorf("Entropy changed under relabeling: %f vs %f", h, h2)
	}
	if h != h3 {
		t.Errorf("Entropy changed under reordering: %f vs %f", h, h3)
	}
}

func TestEntropyEmptyDistribution(t *testing.T) {
	if _, err := Entropy(nil); err == nil {
		t.Errorf("Entropy(nil) got nil error, want error")
	}
	if _, err := Entropy([]store.ValueCount{}); err == nil {
		t.Errorf("Entropy of an empty slice got nil error, want error")
	}
}

func TestGrainSize(t *testing.T) {
	s := store.NewMem([]string{"v"},
		[]string{"a"}, []string{"b"}, []string{"c"}, []string{"d"},
		[]string{"a"}, []string{"b"}, []string{"c"}, []string{"d"},
	)
	got, err := GrainSize(s, "v")
	if err != nil {
		t.Fatalf("GrainSize: %v", err)
	}
	if got != 0.5 {
		t.Errorf("GrainSize = %f, want 0.5", got)
	}
}

func TestNextToGeneralize(t *testing.T) {
	s := store.NewMem([]string{"fine", "coarse"},
		[]string{"a", "x"}, []string{"b", "x"}, []string{"c", "x"}, []string{"d", "y"},
	)
	got, err := NextToGeneralize(s, []string{"coarse", "fine"})
	if err != nil {
		t.Fatalf("NextToGeneralize: %v", err)
	}
	if got != "fine" {
		t.Errorf("NextToGeneralize = %q, want %q", got, "fine")
	}
	if _, err := NextToGeneralize(s, nil); err == nil {
		t.Errorf("NextToGeneralize with no candidates got nil error, want error")
	}
}

func TestToFloats(t *testing.T) {
	nums, skipped := ToFloats([]string{"3", "4.5", "true", "false", "x", "-2"})
	if diff := cmp.Diff([]float64{3, 4.5, 1, 0, -2}, nums); diff != "" {
		t.Errorf("ToFloats numbers diff (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"x"}, skipped); diff != "" {
		t.Errorf("ToFloats skipped diff (-want +got):\n%s", diff)
	}
}

func TestColumnUtility(t *testing.T) {
	s := store.NewMem([]string{"YoB"},
		[]string{"1"}, []string{"2"}, []string{"3"}, []string{"4"},
	)
	got, err := ColumnUtility(s, "YoB")
	if err != nil {
		t.Fatalf("ColumnUtility: %v", err)
	}
	want := Utility{
		Column:  "YoB",
		Entropy: 2.0,
		Mean:    2.5,
		StdDev:  math.Sqrt(5.0 / 3.0),
		Skipped: 0,
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, tolerance)); diff != "" {
		t.Errorf("ColumnUtility returned diff (-want +got):\n%s", diff)
	}

	// Cross-check the moments against an independent implementation.
	data := grdstat.Float64Slice{1, 2, 3, 4}
	if !cmp.Equal(got.Mean, grdstat.Mean(data), cmpopts.EquateApprox(0, tolerance)) {
		t.Errorf("ColumnUtility mean %f disagrees with reference %f", got.Mean, grdstat.Mean(data))
	}
	refSd := math.Sqrt(grdstat.Variance(data))
	if !cmp.Equal(got.StdDev, refSd, cmpopts.EquateApprox(0, tolerance)) {
		t.Errorf("ColumnUtility stddev %f disagrees with reference %f", got.StdDev, refSd)
	}
}

func TestColumnUtilitySkipsNonNumeric(t *testing.T) {
	s := store.NewMem([]string{"nevents"},
		[]string{"10"}, []string{"20"}, []string{"NA"},
	)
	got, err := ColumnUtility(s, "nevents")
	if err != nil {
		t.Fatalf("ColumnUtility: %v", err)
	}
	if got.Skipped != 1 {
		t.Errorf("ColumnUtility skipped %d values, want 1", got.Skipped)
	}
	if got.Mean != 15 {
		t.Errorf("ColumnUtility mean %f, want 15", got.Mean)
	}
}

func TestColumnUtilityNoNumericValues(t *testing.T) {
	s := store.NewMem([]string{"grade"}, []string{"A"}, []string{"B"})
	if _, err := ColumnUtility(s, "grade"); err == nil {
		t.Errorf("ColumnUtility on a non-numeric column got nil error, want error")
	}
}

func TestUtilityMatrix(t *testing.T) {
	s := store.NewMem([]string{"a", "b"},
		[]string{"1", "10"}, []string{"3", "10"},
	)
	got, err := UtilityMatrix(s, []string{"a", "b"})
	if err != nil {
		t.Fatalf("UtilityMatrix: %v", err)
	}
	if len(got) != 2 || got[0].Column != "a" || got[1].Column != "b" {
		t.Fatalf("UtilityMatrix returned %+v, want summaries for a and b in order", got)
	}
	if got[0].Mean != 2 || got[1].Mean != 10 {
		t.Errorf("UtilityMatrix means = %f, %f, want 2, 10", got[0].Mean, got[1].Mean)
	}
	if !cmp.Equal(got[1].Entropy, 0.0, cmpopts.EquateApprox(0, tolerance)) {
		t.Errorf("UtilityMatrix entropy of constant column = %f, want 0", got[1].Entropy)
	}
}
