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

// Package checks contains parameter checks for the de-identification
// functions. Every check runs before any store mutation so that an invalid
// configuration never leaves a table partially rewritten.
package checks

import (
	"fmt"
	"regexp"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// CheckK returns an error if the minimum group size k is not positive.
func CheckK(k int64) error {
	if k < 1 {
		return fmt.Errorf("K is %d, must be at least 1", k)
	}
	return nil
}

// CheckBinWidth returns an error if the bin width is not positive.
func CheckBinWidth(w int64) error {
	if w < 1 {
		return fmt.Errorf("BinWidth is %d, must be at least 1", w)
	}
	return nil
}

// CheckMinSupport returns an error if the rollup support threshold is not
// positive.
func CheckMinSupport(s int64) error {
	if s < 1 {
		return fmt.Errorf("MinSupport is %d, must be at least 1", s)
	}
	return nil
}

// CheckColumn returns an error if name is not a plain SQL identifier. Column
// names are interpolated into statements, so anything else is rejected
// outright rather than quoted.
func CheckColumn(name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("column name %q is not a valid identifier", name)
	}
	return nil
}

// CheckColumns returns an error if the column list is empty or contains an
// invalid or duplicated name.
func CheckColumns(names []string) error {
	if len(names) == 0 {
		return fmt.Errorf("column list is empty, need at least 1 quasi-identifier")
	}
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if err := CheckColumn(n); err != nil {
			return err
		}
		if seen[n] {
			return fmt.Errorf("column %q appears more than once", n)
		}
		seen[n] = true
	}
	return nil
}

// CheckTailBound returns an error if bound is not among the integer values
// observed in the column domain. Bounds outside the domain are a
// configuration mistake and are never silently clamped.
func CheckTailBound(domain []int64, bound int64, name string) error {
	for _, v := range domain {
		if v == bound {
			return nil
		}
	}
	return fmt.Errorf("%s is %d, must be one of the observed integer values", name, bound)
}

// CheckNComb returns an error if the number of signature positions to drop
// per candidate is out of range for the given signature width.
func CheckNComb(nComb, width int) error {
	if nComb < 1 {
		return fmt.Errorf("NComb is %d, must be at least 1", nComb)
	}
	if nComb > width {
		return fmt.Errorf("NComb is %d, must not exceed the signature width %d", nComb, width)
	}
	return nil
}

// CheckMaxRounds returns an error if the resolver round cap is not positive.
func CheckMaxRounds(n int) error {
	if n < 1 {
		return fmt.Errorf("MaxRounds is %d, must be at least 1", n)
	}
	return nil
}
