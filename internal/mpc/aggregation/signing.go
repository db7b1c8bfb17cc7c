package aggregation

import (
	"github.com/pkg/errors"
)

// Combiner merges the partial signature contributions of one round into a single
// signature. The combination rule belongs to the threshold scheme in use.
type Combiner interface {
	Combine(values [][]byte) ([]byte, error)
}

// CombinerFunc adapts a plain function to Combiner.
type CombinerFunc func(values [][]byte) ([]byte, error)

func (f CombinerFunc) Combine(values [][]byte) ([]byte, error) {
	return f(values)
}

// SigningPolicy calls its Combiner exactly once per completed round.
type SigningPolicy struct {
	Combiner Combiner
}

// NewSigningPolicy 创建签名聚合策略
func NewSigningPolicy(c Combiner) SigningPolicy {
	return SigningPolicy{Combiner: c}
}

// Aggregate 聚合签名结果
func (p SigningPolicy) Aggregate(values [][]byte, expected int) Verdict {
	if p.Combiner == nil {
		return Verdict{Err: ErrCombinerMissing}
	}
	if err := checkCount(values, expected); err != nil {
		return Verdict{Err: err}
	}

	// combiners get their own copies so they may scribble on them
	in := make([][]byte, len(values))
	for i, v := range values {
		in[i] = clone(v)
	}

	combined, err := p.Combiner.Combine(in)
	if err != nil {
		var mismatch *MismatchError
		if errors.As(err, &mismatch) {
			distinct := mismatch.Distinct
			if len(distinct) == 0 {
				distinct = Distinct(values)
			}
			return Verdict{Distinct: distinct}
		}
		return Verdict{Err: errors.Wrap(err, "failed to combine partial signatures")}
	}
	if len(combined) == 0 {
		return Verdict{Err: ErrEmptyAggregate}
	}

	return Verdict{Value: combined}
}

// IdenticalCombiner accepts a set only if every node returned the same final signature,
// which is what signer nodes do when they finish the signing protocol among themselves.
type IdenticalCombiner struct{}

func (IdenticalCombiner) Combine(values [][]byte) ([]byte, error) {
	distinct := Distinct(values)
	switch len(distinct) {
	case 0:
		return nil, ErrNoValues
	case 1:
		return distinct[0], nil
	default:
		return nil, &MismatchError{Distinct: distinct, Reason: "nodes returned different signatures"}
	}
}
