package aggregation

import (
	"bytes"
	"math/big"

	"github.com/akash-R-A-J/idmap-gateway/internal/mpc/encoding"
	"github.com/decred/dcrd/dcrec/edwards/v2"
	"github.com/pkg/errors"
)

const (
	eddsaPointSize     = 32
	eddsaScalarSize    = 32
	eddsaSignatureSize = eddsaPointSize + eddsaScalarSize
)

// EdDSAShareCombiner combines Schnorr-style Ed25519 signature shares. Each contribution
// is R || s_i, where R is the group nonce commitment every signer agreed on and s_i is the
// signer's little-endian response share. The result is R || (sum s_i mod L).
type EdDSAShareCombiner struct {
	Codec encoding.Codec
}

// NewEdDSAShareCombiner 创建 EdDSA 分片合并器
func NewEdDSAShareCombiner(codec encoding.Codec) *EdDSAShareCombiner {
	if codec == nil {
		codec = encoding.Base58
	}
	return &EdDSAShareCombiner{Codec: codec}
}

// Combine 合并 EdDSA 签名分片
func (c *EdDSAShareCombiner) Combine(values [][]byte) ([]byte, error) {
	if len(values) == 0 {
		return nil, ErrNoValues
	}

	order := edwards.Edwards().N
	var commitment []byte
	sum := new(big.Int)

	for i, v := range values {
		raw, err := c.Codec.Decode(string(v))
		if err != nil {
			return nil, errors.Wrapf(err, "share %d", i)
		}
		if len(raw) != eddsaSignatureSize {
			return nil, errors.Errorf("share %d has %d bytes, expected %d", i, len(raw), eddsaSignatureSize)
		}

		r := raw[:eddsaPointSize]
		if commitment == nil {
			commitment = r
		} else if !bytes.Equal(commitment, r) {
			return nil, &MismatchError{Distinct: Distinct(values), Reason: "shares carry different nonce commitments"}
		}

		s := leBytesToInt(raw[eddsaPointSize:])
		if s.Cmp(order) >= 0 {
			return nil, errors.Errorf("share %d scalar is not reduced", i)
		}
		sum.Add(sum, s)
	}
	sum.Mod(sum, order)

	sig := make([]byte, 0, eddsaSignatureSize)
	sig = append(sig, commitment...)
	sig = append(sig, intToLEBytes(sum, eddsaScalarSize)...)

	return []byte(c.Codec.Encode(sig)), nil
}

func leBytesToInt(le []byte) *big.Int {
	be := make([]byte, len(le))
	for i := range le {
		be[len(le)-1-i] = le[i]
	}
	return new(big.Int).SetBytes(be)
}

func intToLEBytes(n *big.Int, size int) []byte {
	be := n.FillBytes(make([]byte, size))
	le := make([]byte, size)
	for i := range be {
		le[size-1-i] = be[i]
	}
	return le
}
