package encoding

import (
	"encoding/hex"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

// Codec converts between the textual values signer nodes put on the wire and raw bytes.
type Codec interface {
	Name() string
	Encode(raw []byte) string
	Decode(text string) ([]byte, error)
}

type base58Codec struct{}

// Base58 is the Bitcoin alphabet encoding used for Solana keys and signatures.
var Base58 Codec = base58Codec{}

func (base58Codec) Name() string { return "base58" }

func (base58Codec) Encode(raw []byte) string {
	return base58.Encode(raw)
}

func (base58Codec) Decode(text string) ([]byte, error) {
	raw, err := base58.Decode(strings.TrimSpace(text))
	if err != nil {
		return nil, errors.Wrap(err, "invalid base58 value")
	}
	return raw, nil
}

type hexCodec struct{}

// Hex accepts values with or without a 0x prefix and always encodes without one.
var Hex Codec = hexCodec{}

func (hexCodec) Name() string { return "hex" }

func (hexCodec) Encode(raw []byte) string {
	return hex.EncodeToString(raw)
}

func (hexCodec) Decode(text string) ([]byte, error) {
	text = strings.TrimPrefix(strings.TrimSpace(text), "0x")
	raw, err := hex.DecodeString(text)
	if err != nil {
		return nil, errors.Wrap(err, "invalid hex value")
	}
	return raw, nil
}

// ByName returns the codec registered under name.
func ByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "base58", "":
		return Base58, nil
	case "hex":
		return Hex, nil
	default:
		return nil, errors.Errorf("unknown value encoding: %s", name)
	}
}
