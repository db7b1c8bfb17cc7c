package chain

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
)

const transferGasLimit = uint64(21000)

// EthereumAdapter 实现 EVM 链基础能力
type EthereumAdapter struct {
	chainID *big.Int
}

// NewEthereumAdapter 创建以太坊适配器
func NewEthereumAdapter(chainID *big.Int) *EthereumAdapter {
	if chainID == nil {
		chainID = big.NewInt(1) // mainnet
	}
	return &EthereumAdapter{chainID: chainID}
}

// Name 返回链类型
func (a *EthereumAdapter) Name() string {
	return TypeEthereum
}

// GenerateAddress 通过 Keccak256(pubKey[1:]) 生成地址
func (a *EthereumAdapter) GenerateAddress(pubKey []byte) (string, error) {
	uncompressed, err := uncompressedSecp256k1(pubKey)
	if err != nil {
		return "", err
	}
	hash := crypto.Keccak256(uncompressed[1:])
	return common.BytesToAddress(hash[12:]).Hex(), nil
}

// VerifySignature checks a [R || S] or [R || S || V] secp256k1 signature over keccak256(message).
func (a *EthereumAdapter) VerifySignature(pubKey []byte, message []byte, signature []byte) error {
	uncompressed, err := uncompressedSecp256k1(pubKey)
	if err != nil {
		return err
	}

	switch len(signature) {
	case 64:
	case 65:
		signature = signature[:64]
	default:
		return errors.Wrapf(ErrInvalidSignature, "unexpected signature length %d", len(signature))
	}

	if !crypto.VerifySignature(uncompressed, crypto.Keccak256(message), signature) {
		return ErrInvalidSignature
	}
	return nil
}

// BuildTransaction 构建 EIP-155 签名负载
func (a *EthereumAdapter) BuildTransaction(_ context.Context, req *BuildTxRequest) (*Transaction, error) {
	if req == nil {
		return nil, errors.New("build request is nil")
	}
	if req.Amount == nil || req.Amount.Sign() < 0 {
		return nil, errors.New("amount is required")
	}
	if !common.IsHexAddress(req.To) {
		return nil, errors.Errorf("invalid recipient address %q", req.To)
	}
	gasPrice := req.FeeRate
	if gasPrice == nil {
		gasPrice = big.NewInt(0)
	}

	txPayload := []interface{}{
		req.Nonce,
		gasPrice,
		transferGasLimit,
		common.HexToAddress(req.To),
		req.Amount,
		req.Data,
		a.chainID,
		uint(0),
		uint(0),
	}

	raw, err := rlp.EncodeToBytes(txPayload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to RLP encode tx payload")
	}

	hash := crypto.Keccak256Hash(raw)
	return &Transaction{
		Raw:     fmt.Sprintf("0x%s", hex.EncodeToString(raw)),
		Hash:    hash.Hex(),
		Payload: raw,
	}, nil
}

func uncompressedSecp256k1(pubKey []byte) ([]byte, error) {
	switch {
	case len(pubKey) == 0:
		return nil, errors.New("public key is required")
	case len(pubKey) == 65 && pubKey[0] == 0x04:
		return pubKey, nil
	case len(pubKey) == 33 && (pubKey[0] == 0x02 || pubKey[0] == 0x03):
		key, err := btcec.ParsePubKey(pubKey)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse compressed secp256k1 pubkey")
		}
		return key.SerializeUncompressed(), nil // 65 bytes, 0x04 | X | Y
	default:
		return nil, errors.Errorf("unsupported public key format: len=%d", len(pubKey))
	}
}
