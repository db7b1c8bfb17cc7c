// Package aggregation decides whether a completed set of participant results forms an
// acceptable aggregate. Everything here is pure: no I/O, no shared state.
package aggregation

import (
	"bytes"
	"sort"

	"github.com/pkg/errors"
)

var (
	ErrNoValues        = errors.New("no participant values")
	ErrIncompleteSet   = errors.New("result set does not match expected participant count")
	ErrEmptyAggregate  = errors.New("combiner produced an empty value")
	ErrCombinerMissing = errors.New("signing policy has no combiner")
)

// Verdict is the result of applying a policy. Exactly one of Value, Distinct or Err is set.
type Verdict struct {
	Value    []byte
	Distinct [][]byte
	Err      error
}

// Agreed reports whether the verdict carries an aggregated value.
func (v Verdict) Agreed() bool {
	return v.Err == nil && len(v.Distinct) == 0 && v.Value != nil
}

// Mismatched reports whether participants disagreed.
func (v Verdict) Mismatched() bool {
	return len(v.Distinct) > 0
}

// Policy aggregates the values of a completed round.
type Policy interface {
	Aggregate(values [][]byte, expected int) Verdict
}

// MismatchError is returned by a Combiner when contributions are mutually inconsistent.
type MismatchError struct {
	Distinct [][]byte
	Reason   string
}

func (e *MismatchError) Error() string {
	if e.Reason == "" {
		return "participant values mismatch"
	}
	return "participant values mismatch: " + e.Reason
}

// Distinct returns the unique values in bytes order.
func Distinct(values [][]byte) [][]byte {
	out := make([][]byte, 0, len(values))
	for _, v := range values {
		dup := false
		for _, seen := range out {
			if bytes.Equal(seen, v) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, clone(v))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i], out[j]) < 0
	})
	return out
}

func checkCount(values [][]byte, expected int) error {
	if len(values) == 0 {
		return ErrNoValues
	}
	if len(values) != expected {
		return errors.Wrapf(ErrIncompleteSet, "got %d, expected %d", len(values), expected)
	}
	return nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
