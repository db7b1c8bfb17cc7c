package chain

import (
	"context"
	"encoding/base64"

	"github.com/decred/dcrd/dcrec/edwards/v2"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

const (
	ed25519PublicKeySize = 32
	ed25519SignatureSize = 64
)

// SolanaRPC is the part of the Solana JSON-RPC API used by transfers.
type SolanaRPC interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

type solanaRPCClient struct {
	client *rpc.Client
}

// NewSolanaRPC 创建 Solana RPC 客户端
func NewSolanaRPC(endpoint string) SolanaRPC {
	return &solanaRPCClient{client: rpc.New(endpoint)}
}

func (c *solanaRPCClient) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	out, err := c.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Hash{}, err
	}
	if out == nil || out.Value == nil {
		return solana.Hash{}, errors.New("empty blockhash response")
	}
	return out.Value.Blockhash, nil
}

func (c *solanaRPCClient) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	return c.client.SendTransaction(ctx, tx)
}

// SolanaAdapter handles ed25519 accounts; the address is the base58 public key.
type SolanaAdapter struct {
	rpc SolanaRPC
}

// NewSolanaAdapter 创建 Solana 适配器. Transfers need an explicit blockhash and cannot be broadcast.
func NewSolanaAdapter() *SolanaAdapter {
	return &SolanaAdapter{}
}

// NewSolanaAdapterWithRPC 创建带 RPC 的 Solana 适配器
func NewSolanaAdapterWithRPC(client SolanaRPC) *SolanaAdapter {
	return &SolanaAdapter{rpc: client}
}

// Name 返回链类型
func (a *SolanaAdapter) Name() string {
	return TypeSolana
}

// GenerateAddress 地址即 base58 公钥
func (a *SolanaAdapter) GenerateAddress(pubKey []byte) (string, error) {
	if _, err := parseEd25519PubKey(pubKey); err != nil {
		return "", err
	}
	return base58.Encode(pubKey), nil
}

// VerifySignature 校验 ed25519 签名
func (a *SolanaAdapter) VerifySignature(pubKey []byte, message []byte, signature []byte) error {
	pk, err := parseEd25519PubKey(pubKey)
	if err != nil {
		return err
	}
	if len(signature) != ed25519SignatureSize {
		return errors.Wrapf(ErrInvalidSignature, "unexpected signature length %d", len(signature))
	}

	sig, err := edwards.ParseSignature(signature)
	if err != nil {
		return errors.Wrap(ErrInvalidSignature, err.Error())
	}
	if !edwards.Verify(pk, message, sig.R, sig.S) {
		return ErrInvalidSignature
	}
	return nil
}

// BuildTransaction 构建 SystemProgram 转账. The sender pays the fee; Payload is the serialized
// message the signer nodes sign. Amount is in lamports.
func (a *SolanaAdapter) BuildTransaction(ctx context.Context, req *BuildTxRequest) (*Transaction, error) {
	if req == nil {
		return nil, errors.New("build request is nil")
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 || !req.Amount.IsUint64() {
		return nil, errors.New("amount must be a positive number of lamports")
	}
	from, err := solana.PublicKeyFromBase58(req.From)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid sender address %q", req.From)
	}
	to, err := solana.PublicKeyFromBase58(req.To)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid recipient address %q", req.To)
	}

	blockhash, err := a.blockhash(ctx, req.Blockhash)
	if err != nil {
		return nil, err
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(req.Amount.Uint64(), from, to).Build(),
		},
		blockhash,
		solana.TransactionPayer(from),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build transfer")
	}

	payload, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, errors.Wrap(err, "failed to serialize transfer message")
	}

	return &Transaction{Payload: payload, native: tx}, nil
}

func (a *SolanaAdapter) blockhash(ctx context.Context, pinned string) (solana.Hash, error) {
	if pinned != "" {
		h, err := solana.HashFromBase58(pinned)
		if err != nil {
			return solana.Hash{}, errors.Wrapf(err, "invalid blockhash %q", pinned)
		}
		return h, nil
	}
	if a.rpc == nil {
		return solana.Hash{}, ErrBlockhashRequired
	}

	h, err := a.rpc.LatestBlockhash(ctx)
	if err != nil {
		return solana.Hash{}, errors.Wrapf(ErrRPC, "latest blockhash: %v", err)
	}
	return h, nil
}

// AttachSignature 附加聚合签名. Raw becomes the base64 wire transaction and Hash its id, which on
// Solana is the fee payer signature.
func (a *SolanaAdapter) AttachSignature(tx *Transaction, signature []byte) error {
	native, ok := tx.native.(*solana.Transaction)
	if !ok {
		return errors.New("transaction was not built by the solana adapter")
	}
	if len(signature) != ed25519SignatureSize {
		return errors.Wrapf(ErrInvalidSignature, "unexpected signature length %d", len(signature))
	}

	var sig solana.Signature
	copy(sig[:], signature)
	native.Signatures = []solana.Signature{sig}

	raw, err := native.MarshalBinary()
	if err != nil {
		return errors.Wrap(err, "failed to serialize signed transaction")
	}
	tx.Raw = base64.StdEncoding.EncodeToString(raw)
	tx.Hash = sig.String()
	return nil
}

// Broadcast 广播交易
func (a *SolanaAdapter) Broadcast(ctx context.Context, tx *Transaction) (string, error) {
	if a.rpc == nil {
		return "", ErrBroadcastDisabled
	}
	native, ok := tx.native.(*solana.Transaction)
	if !ok || len(native.Signatures) == 0 {
		return "", ErrTransactionUnsigned
	}

	id, err := a.rpc.SendTransaction(ctx, native)
	if err != nil {
		return "", errors.Wrapf(ErrRPC, "send transaction: %v", err)
	}
	return id.String(), nil
}

func parseEd25519PubKey(pubKey []byte) (*edwards.PublicKey, error) {
	if len(pubKey) != ed25519PublicKeySize {
		return nil, errors.Errorf("ed25519 public key must be %d bytes, got %d", ed25519PublicKeySize, len(pubKey))
	}
	pk, err := edwards.ParsePubKey(pubKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse ed25519 public key")
	}
	return pk, nil
}
