package aggregation

// KeyGenerationPolicy requires every participant to report the byte-identical group
// public key. Any divergence is a mismatch carrying every distinct value observed.
type KeyGenerationPolicy struct{}

// Aggregate 要求所有参与方返回相同公钥
func (KeyGenerationPolicy) Aggregate(values [][]byte, expected int) Verdict {
	return KeyGeneration(values, expected)
}

// KeyGeneration applies the key-generation consensus rule.
func KeyGeneration(values [][]byte, expected int) Verdict {
	if err := checkCount(values, expected); err != nil {
		return Verdict{Err: err}
	}

	distinct := Distinct(values)
	if len(distinct) != 1 {
		return Verdict{Distinct: distinct}
	}

	return Verdict{Value: distinct[0]}
}
