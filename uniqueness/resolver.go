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
	"errors"

	log "github.com/golang/glog"

	"github.com/mlessly/de-id/checks"
	"github.com/mlessly/de-id/store"
)

// ErrExhausted is returned by Resolve when the round cap is reached before
// the unique-user fraction drops to zero. The accompanying Result still
// carries the best-effort ledger and the residual counts; the caller decides
// whether to suppress the remaining records outright.
var ErrExhausted = errors.New("uniqueness: round cap reached before convergence")

// Options configures Resolve.
type Options struct {
	// UserColumn and CourseColumn name the user id and course id columns.
	// Required.
	UserColumn   string
	CourseColumn string
	// K is the minimum group size. Required.
	K int64
	// NComb is the number of signature positions zeroed per candidate.
	// Defaults to 1.
	NComb int
	// MaxRounds bounds the resolution loop. Defaults to the number of
	// distinct courses at the first build, which bounds the search since
	// each round deletes records of at least one course.
	MaxRounds int
}

// Result is the outcome of a resolution run.
type Result struct {
	// Ledger maps each course to the number of enrollment records deleted
	// because that course was chosen for redaction.
	Ledger map[string]int64
	// Rounds is the number of applied drops.
	Rounds int
	// Converged is true iff the unique-user fraction reached 0.0.
	Converged bool
	// ResidualFraction and ResidualUsers describe the unique users left
	// when the run stopped.
	ResidualFraction float64
	ResidualUsers    int64
}

// Resolve runs the fixed-point uniqueness resolution: build signatures,
// measure, search for the cheapest eligible drop, apply it, and repeat until
// the unique-user fraction reaches zero, no eligible drop exists, or the
// round cap is hit. Signatures and flags are rebuilt from the table on every
// round, so the loop always works against a consistent snapshot.
func Resolve(s store.Store, opts Options) (Result, error) {
	res := Result{Ledger: map[string]int64{}}
	if err := checks.CheckK(opts.K); err != nil {
		return res, err
	}
	nComb := opts.NComb
	if nComb == 0 {
		nComb = 1
	}

	courses, err := BuildSignatures(s, opts.UserColumn, opts.CourseColumn)
	if err != nil {
		return res, err
	}
	if err := checks.CheckNComb(nComb, len(courses)); err != nil {
		return res, err
	}
	maxRounds := opts.MaxRounds
	if maxRounds == 0 {
		maxRounds = len(courses)
	}
	if err := checks.CheckMaxRounds(maxRounds); err != nil {
		return res, err
	}

	m, err := MeasureUniqueness(s, opts.UserColumn, opts.K)
	if err != nil {
		return res, err
	}
	if err := FlagUnique(s, m); err != nil {
		return res, err
	}

	for m.Fraction != 0.0 {
		if res.Rounds >= maxRounds {
			res.ResidualFraction = m.Fraction
			res.ResidualUsers = m.UniqueUsers
			return res, ErrExhausted
		}
		log.Infof("round %d: unique-user fraction %.4f (%d of %d users)",
			res.Rounds+1, m.Fraction, m.UniqueUsers, m.TotalUsers)

		cand, ok, err := OptimumDrop(m.Unique, m.Safe, opts.K, nComb)
		if err != nil {
			return res, err
		}
		if !ok {
			// No eligible drop this round; stop and report the residue
			// rather than loop on a no-op.
			res.ResidualFraction = m.Fraction
			res.ResidualUsers = m.UniqueUsers
			log.Infof("no eligible drop, stopping with %d unresolved users", m.UniqueUsers)
			return res, nil
		}
		for _, pos := range cand.Positions {
			if _, err := DropCourse(s, opts.CourseColumn, courses[pos], cand.ChangeVals, res.Ledger); err != nil {
				return res, err
			}
		}
		res.Rounds++

		courses, err = BuildSignatures(s, opts.UserColumn, opts.CourseColumn)
		if err != nil {
			return res, err
		}
		m, err = MeasureUniqueness(s, opts.UserColumn, opts.K)
		if err != nil {
			return res, err
		}
		if err := FlagUnique(s, m); err != nil {
			return res, err
		}
	}
	res.Converged = true
	log.Infof("resolved in %d rounds, %d courses touched", res.Rounds, len(res.Ledger))
	return res, nil
}
