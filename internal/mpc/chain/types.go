package chain

import (
	"context"
	"math/big"

	"github.com/pkg/errors"
)

const (
	TypeSolana   = "solana"
	TypeEthereum = "ethereum"
)

var (
	ErrInvalidSignature    = errors.New("signature does not verify against public key")
	ErrUnsupportedChain    = errors.New("unsupported chain type")
	ErrBlockhashRequired   = errors.New("recent blockhash is required when no rpc endpoint is configured")
	ErrRPC                 = errors.New("chain rpc request failed")
	ErrBroadcastDisabled   = errors.New("no rpc endpoint configured for broadcasting")
	ErrTransactionUnsigned = errors.New("transaction has no signature attached")
)

// Adapter 链适配器. Public keys and signatures are raw bytes, already decoded from the
// value encoding used on the bus.
type Adapter interface {
	Name() string
	GenerateAddress(pubKey []byte) (string, error)
	VerifySignature(pubKey []byte, message []byte, signature []byte) error
}

// TxBuilder is implemented by adapters that can assemble a transfer for signing.
type TxBuilder interface {
	BuildTransaction(ctx context.Context, req *BuildTxRequest) (*Transaction, error)
}

// SignatureAttacher 附加聚合签名, completing Raw and Hash of a built transaction.
type SignatureAttacher interface {
	AttachSignature(tx *Transaction, signature []byte) error
}

// Broadcaster 广播已签名交易, returning the network transaction id.
type Broadcaster interface {
	Broadcast(ctx context.Context, tx *Transaction) (string, error)
}

// BuildTxRequest 转账请求
type BuildTxRequest struct {
	// From is the sending address; chains with a fee payer in the message need it.
	From    string
	To      string
	Amount  *big.Int
	Nonce   uint64
	FeeRate *big.Int
	Data    []byte
	// Blockhash pins the recent blockhash of a Solana transfer instead of asking the rpc node.
	Blockhash string
}

// Transaction is a transaction built for signing. Payload is handed to the signer nodes.
type Transaction struct {
	Raw     string
	Hash    string
	Payload []byte

	native interface{}
}

// Config 链配置
type Config struct {
	Type    string
	ChainID *big.Int
	// SolanaRPCURL enables blockhash lookup and broadcasting for Solana transfers.
	SolanaRPCURL string
}

// New returns the adapter for a configured chain type.
func New(cfg Config) (Adapter, error) {
	switch cfg.Type {
	case TypeSolana, "":
		if cfg.SolanaRPCURL != "" {
			return NewSolanaAdapterWithRPC(NewSolanaRPC(cfg.SolanaRPCURL)), nil
		}
		return NewSolanaAdapter(), nil
	case TypeEthereum:
		return NewEthereumAdapter(cfg.ChainID), nil
	default:
		return nil, errors.Wrap(ErrUnsupportedChain, cfg.Type)
	}
}
