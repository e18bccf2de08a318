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

// Package stats provides the information-theoretic and descriptive
// statistics used to steer generalization: Shannon entropy as the
// utility-loss proxy, grain size for picking the next column to
// generalize, and per-column utility summaries for before/after audits.
package stats

import (
	"fmt"
	"math"
	"strconv"

	log "github.com/golang/glog"
	"gonum.org/v1/gonum/stat"

	"github.com/mlessly/de-id/store"
)

// Entropy returns the Shannon entropy, in bits, of the categorical
// distribution given as (value, count) pairs. Counts must be positive and
// values distinct; the caller guarantees distinctness, which holds for any
// store.DistinctCounts result.
func Entropy(pairs []store.ValueCount) (float64, error) {
	var total int64
	for _, p := range pairs {
		total += p.Count
	}
	if total <= 0 {
		return 0, fmt.Errorf("Entropy: distribution is empty")
	}
	var h float64
	for _, p := range pairs {
		pi := float64(p.Count) / float64(total)
		h += -pi * math.Log2(pi)
	}
	return h, nil
}

// GrainSize returns the number of distinct values of the column divided by
// the number of rows. Smaller values mean coarser grain; the column with the
// largest grain size is the natural next candidate for generalization.
func GrainSize(s store.Store, column string) (float64, error) {
	counts, err := s.DistinctCounts(column)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, c := range counts {
		total += c.Count
	}
	if total == 0 {
		return 0, fmt.Errorf("GrainSize: column %s has no rows", column)
	}
	return float64(len(counts)) / float64(total), nil
}

// NextToGeneralize returns the column among candidates with the largest
// grain size.
func NextToGeneralize(s store.Store, candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", fmt.Errorf("NextToGeneralize: no candidate columns")
	}
	best := ""
	bestGrain := -1.0
	for _, c := range candidates {
		g, err := GrainSize(s, c)
		if err != nil {
			return "", err
		}
		if g > bestGrain {
			best, bestGrain = c, g
		}
	}
	return best, nil
}

// ToFloats converts textual values to float64 best-effort. The literals
// "true" and "false" convert to 1 and 0. The second return value lists the
// values that could not be converted, in input order.
func ToFloats(values []string) ([]float64, []string) {
	var nums []float64
	var skipped []string
	for _, v := range values {
		switch v {
		case "true":
			nums = append(nums, 1)
		case "false":
			nums = append(nums, 0)
		default:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				skipped = append(skipped, v)
				continue
			}
			nums = append(nums, f)
		}
	}
	return nums, skipped
}

// Utility is the per-column summary used to audit how much statistical
// signal a generalization step kept.
type Utility struct {
	Column  string
	Entropy float64
	Mean    float64
	StdDev  float64
	// Skipped is the number of values that could not be coerced to a
	// number; Mean and StdDev cover the remainder.
	Skipped int
}

// ColumnUtility computes the utility summary of one column. It fails if the
// column holds no numerically convertible values at all.
func ColumnUtility(s store.Store, column string) (Utility, error) {
	counts, err := s.DistinctCounts(column)
	if err != nil {
		return Utility{}, err
	}
	h, err := Entropy(counts)
	if err != nil {
		return Utility{}, fmt.Errorf("ColumnUtility: column %s: %v", column, err)
	}
	values, err := s.SelectColumn(column, nil)
	if err != nil {
		return Utility{}, err
	}
	nums, skipped := ToFloats(values)
	if len(nums) == 0 {
		return Utility{}, fmt.Errorf("ColumnUtility: column %s has no numeric values", column)
	}
	if len(skipped) > 0 {
		log.Infof("column %s: skipped %d non-numeric values", column, len(skipped))
	}
	return Utility{
		Column:  column,
		Entropy: h,
		Mean:    stat.Mean(nums, nil),
		StdDev:  stat.StdDev(nums, nil),
		Skipped: len(skipped),
	}, nil
}

// UtilityMatrix computes the utility summary of several columns at once.
func UtilityMatrix(s store.Store, columns []string) ([]Utility, error) {
	out := make([]Utility, 0, len(columns))
	for _, c := range columns {
		u, err := ColumnUtility(s, c)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}
