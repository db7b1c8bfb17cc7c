package aggregation

import (
	"crypto/ed25519"
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/akash-R-A-J/idmap-gateway/internal/mpc/encoding"
	"github.com/decred/dcrd/dcrec/edwards/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// splitSignature turns a valid signature R||S into n additive shares R||s_i.
func splitSignature(t *testing.T, sig []byte, n int) [][]byte {
	t.Helper()

	order := edwards.Edwards().N
	s := leBytesToInt(sig[32:])
	shares := make([][]byte, n)
	acc := new(big.Int)

	for i := 0; i < n-1; i++ {
		si, err := rand.Int(rand.Reader, order)
		require.NoError(t, err)
		acc.Add(acc, si)
		shares[i] = append(append([]byte{}, sig[:32]...), intToLEBytes(si, 32)...)
	}

	last := new(big.Int).Sub(s, acc)
	last.Mod(last, order)
	shares[n-1] = append(append([]byte{}, sig[:32]...), intToLEBytes(last, 32)...)

	return shares
}

func TestEdDSAShareCombiner_ReassemblesValidSignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	msg := []byte("hello threshold world, good luck")
	sig := ed25519.Sign(priv, msg)

	for _, codec := range []encoding.Codec{encoding.Base58, encoding.Hex} {
		shares := splitSignature(t, sig, 3)
		values := make([][]byte, len(shares))
		for i, s := range shares {
			values[i] = []byte(codec.Encode(s))
		}

		out, err := NewEdDSAShareCombiner(codec).Combine(values)
		require.NoError(t, err)

		combined, err := codec.Decode(string(out))
		require.NoError(t, err)
		assert.Equal(t, sig, combined)
		assert.True(t, ed25519.Verify(pub, msg, combined))
	}
}

func TestEdDSAShareCombiner_CommitmentMismatch(t *testing.T) {
	a := make([]byte, 64)
	b := make([]byte, 64)
	b[0] = 1

	_, err := NewEdDSAShareCombiner(encoding.Hex).Combine([][]byte{
		[]byte(encoding.Hex.Encode(a)),
		[]byte(encoding.Hex.Encode(b)),
	})

	var mismatch *MismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Len(t, mismatch.Distinct, 2)
}

func TestEdDSAShareCombiner_RejectsMalformedShares(t *testing.T) {
	c := NewEdDSAShareCombiner(encoding.Hex)

	_, err := c.Combine([][]byte{[]byte("abcd")})
	assert.Error(t, err)

	_, err = c.Combine([][]byte{[]byte("not-hex")})
	assert.Error(t, err)

	unreduced := make([]byte, 64)
	for i := 32; i < 64; i++ {
		unreduced[i] = 0xff
	}
	_, err = c.Combine([][]byte{[]byte(encoding.Hex.Encode(unreduced))})
	assert.Error(t, err)

	_, err = c.Combine(nil)
	assert.ErrorIs(t, err, ErrNoValues)
}
