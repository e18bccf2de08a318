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

// Package generalize rewrites a column's domain into coarser categories.
//
// Every primitive writes into a derived column named <source>_DI and leaves
// the source column untouched, so original values stay available for utility
// auditing. Values a primitive does not know how to map pass through to the
// derived column unchanged. All primitives recompute the derived column in
// full on every call and are safe to re-run.
package generalize

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	log "github.com/golang/glog"

	"github.com/mlessly/de-id/checks"
	"github.com/mlessly/de-id/store"
)

// ErrEmptyDomain is returned when a numeric primitive finds no convertible
// values in the column. The store is left unchanged.
var ErrEmptyDomain = errors.New("generalize: no convertible values in column domain")

// Suffix is appended to a source column name to form its derived column.
const Suffix = "_DI"

// Report describes what a primitive did.
type Report struct {
	// Target is the derived column that was written.
	Target string
	// Mapped counts distinct source values rewritten to a coarser category.
	Mapped int
	// PassedThrough counts distinct source values copied unchanged.
	PassedThrough int
	// Skipped lists distinct values that could not be converted for a
	// numeric primitive, in domain order.
	Skipped []string
}

// applyMap writes m(v) (or v itself when unmapped) into the derived column
// for every distinct value v of the source column.
func applyMap(s store.Store, src string, m map[string]string) (Report, error) {
	target := src + Suffix
	if err := store.EnsureColumn(s, target); err != nil {
		return Report{}, err
	}
	counts, err := s.DistinctCounts(src)
	if err != nil {
		return Report{}, err
	}
	rep := Report{Target: target}
	for _, vc := range counts {
		nv, ok := m[vc.Value]
		if !ok {
			nv = vc.Value
			rep.PassedThrough++
		} else if nv == vc.Value {
			rep.PassedThrough++
		} else {
			rep.Mapped++
		}
		if err := s.UpdateWhere(target, nv, store.And(store.Eq(src, vc.Value))); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

// BinOptions configures BinNumeric.
type BinOptions struct {
	// Width is the bin width. Required, must be positive.
	Width int64
}

// BinNumeric partitions the integer values of the column into half-open bins
// of the given width, aligned to the observed minimum, and writes category
// labels of the form "lo-hi" into the derived column. Non-numeric values
// (including labels from an earlier run) pass through unchanged. Returns
// ErrEmptyDomain, without touching the store, when no value converts.
func BinNumeric(s store.Store, column string, opts BinOptions) (Report, error) {
	if err := checks.CheckColumn(column); err != nil {
		return Report{}, err
	}
	if err := checks.CheckBinWidth(opts.Width); err != nil {
		return Report{}, err
	}
	counts, err := s.DistinctCounts(column)
	if err != nil {
		return Report{}, err
	}
	var ints []int64
	var skipped []string
	byText := map[string]int64{}
	for _, vc := range counts {
		n, err := strconv.ParseInt(vc.Value, 10, 64)
		if err != nil {
			skipped = append(skipped, vc.Value)
			continue
		}
		ints = append(ints, n)
		byText[vc.Value] = n
	}
	if len(ints) == 0 {
		return Report{Skipped: skipped}, ErrEmptyDomain
	}
	sort.Slice(ints, func(i, j int) bool { return ints[i] < ints[j] })
	min := ints[0]
	w := opts.Width
	m := make(map[string]string, len(byText))
	for text, n := range byText {
		lo := min + (n-min)/w*w
		m[text] = fmt.Sprintf("%d-%d", lo, lo+w-1)
	}
	rep, err := applyMap(s, column, m)
	rep.Skipped = skipped
	if err != nil {
		return rep, err
	}
	log.Infof("binned %s: %d values into width-%d bins, %d passed through",
		column, rep.Mapped, w, rep.PassedThrough)
	return rep, nil
}

// TailOptions configures CollapseTails. At least one bound must be set, and
// each set bound must be present among the observed integer values.
type TailOptions struct {
	Low  *int64
	High *int64
}

// Bound returns a pointer to v, for use in TailOptions literals.
func Bound(v int64) *int64 { return &v }

// CollapseTails maps every integer value at or below Low to a single
// "<= Low" category and every value at or above High to ">= High", leaving
// interior values as individual categories in the derived column.
func CollapseTails(s store.Store, column string, opts TailOptions) (Report, error) {
	if err := checks.CheckColumn(column); err != nil {
		return Report{}, err
	}
	if opts.Low == nil && opts.High == nil {
		return Report{}, fmt.Errorf("CollapseTails: no tail bound configured")
	}
	if opts.Low != nil && opts.High != nil && *opts.Low >= *opts.High {
		return Report{}, fmt.Errorf("CollapseTails: Low %d must be below High %d", *opts.Low, *opts.High)
	}
	counts, err := s.DistinctCounts(column)
	if err != nil {
		return Report{}, err
	}
	var domain []int64
	var skipped []string
	byText := map[string]int64{}
	for _, vc := range counts {
		n, err := strconv.ParseInt(vc.Value, 10, 64)
		if err != nil {
			skipped = append(skipped, vc.Value)
			continue
		}
		domain = append(domain, n)
		byText[vc.Value] = n
	}
	if len(domain) == 0 {
		return Report{Skipped: skipped}, ErrEmptyDomain
	}
	if opts.Low != nil {
		if err := checks.CheckTailBound(domain, *opts.Low, "Low"); err != nil {
			return Report{}, fmt.Errorf("CollapseTails: %v", err)
		}
	}
	if opts.High != nil {
		if err := checks.CheckTailBound(domain, *opts.High, "High"); err != nil {
			return Report{}, fmt.Errorf("CollapseTails: %v", err)
		}
	}
	m := make(map[string]string, len(byText))
	for text, n := range byText {
		switch {
		case opts.Low != nil && n <= *opts.Low:
			m[text] = fmt.Sprintf("<= %d", *opts.Low)
		case opts.High != nil && n >= *opts.High:
			m[text] = fmt.Sprintf(">= %d", *opts.High)
		default:
			m[text] = text
		}
	}
	rep, err := applyMap(s, column, m)
	rep.Skipped = skipped
	if err != nil {
		return rep, err
	}
	log.Infof("collapsed tails of %s: %d values mapped, %d passed through",
		column, rep.Mapped, rep.PassedThrough)
	return rep, nil
}

// RollupOptions configures Rollup.
type RollupOptions struct {
	// MinSupport is the minimum occurrence count a value needs to stay
	// unchanged. Required, must be positive.
	MinSupport int64
	// Always lists values that roll up regardless of their count.
	Always []string
}

// Rollup replaces each value whose occurrence count is below MinSupport, or
// which is listed in Always, with its coarser category from the coarse map.
// Values without a coarse mapping stay unchanged and are logged.
func Rollup(s store.Store, column string, coarse map[string]string, opts RollupOptions) (Report, error) {
	if err := checks.CheckColumn(column); err != nil {
		return Report{}, err
	}
	if err := checks.CheckMinSupport(opts.MinSupport); err != nil {
		return Report{}, err
	}
	always := make(map[string]bool, len(opts.Always))
	for _, v := range opts.Always {
		always[v] = true
	}
	counts, err := s.DistinctCounts(column)
	if err != nil {
		return Report{}, err
	}
	m := map[string]string{}
	for _, vc := range counts {
		if vc.Count >= opts.MinSupport && !always[vc.Value] {
			continue
		}
		c, ok := coarse[vc.Value]
		if !ok {
			log.Warningf("no coarse category for %q, leaving it unchanged", vc.Value)
			continue
		}
		m[vc.Value] = c
	}
	rep, err := applyMap(s, column, m)
	if err != nil {
		return rep, err
	}
	log.Infof("rolled up %s: %d values below support %d, %d passed through",
		column, rep.Mapped, opts.MinSupport, rep.PassedThrough)
	return rep, nil
}

// CoarseFromColumns builds a coarse map for Rollup from two existing
// columns, e.g. country -> continent. The first pairing observed for each
// value wins.
func CoarseFromColumns(s store.Store, valueColumn, coarseColumn string) (map[string]string, error) {
	rows, err := s.SelectRows([]string{valueColumn, coarseColumn}, nil)
	if err != nil {
		return nil, err
	}
	m := map[string]string{}
	for _, r := range rows {
		if _, ok := m[r[0]]; !ok && r[1] != "" {
			m[r[0]] = r[1]
		}
	}
	return m, nil
}

// SplitDate strips the time part from timestamps of the form
// "<date>T<time>", writing the date into the derived column. Values without
// a "T" pass through unchanged.
func SplitDate(s store.Store, column string) (Report, error) {
	if err := checks.CheckColumn(column); err != nil {
		return Report{}, err
	}
	counts, err := s.DistinctCounts(column)
	if err != nil {
		return Report{}, err
	}
	m := map[string]string{}
	for _, vc := range counts {
		if i := strings.Index(vc.Value, "T"); i >= 0 {
			m[vc.Value] = vc.Value[:i]
		}
	}
	return applyMap(s, column, m)
}
