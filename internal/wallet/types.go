package wallet

import (
	"context"
	"math/big"
	"time"

	"github.com/akash-R-A-J/idmap-gateway/internal/mpc/round"
	"github.com/akash-R-A-J/idmap-gateway/internal/mpc/storage"
	"github.com/pkg/errors"
)

var (
	ErrWalletExists      = errors.New("wallet already exists")
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrWalletBusy        = errors.New("wallet operation already in progress")
	ErrInvalidRequest    = errors.New("invalid wallet request")
	ErrSignatureMismatch = errors.New("combined signature does not verify")
	ErrUnsupported       = errors.New("operation not supported by chain")
	ErrChainUnavailable  = errors.New("chain node unavailable")
)

// RoundRunner runs one coordination round. *round.Coordinator implements it.
type RoundRunner interface {
	RunRound(ctx context.Context, kind round.Kind, payload []byte, expected int, timeout time.Duration, opts ...round.RoundOption) *round.Outcome
}

// Wallet 钱包信息
type Wallet struct {
	Key        *storage.KeyRecord
	Signatures []*storage.SignatureRecord
}

// SignRequest 签名请求
type SignRequest struct {
	UserID  string
	Message []byte
}

// TransferRequest 转账请求
type TransferRequest struct {
	UserID    string
	To        string
	Amount    *big.Int
	Nonce     uint64
	FeeRate   *big.Int
	Data      []byte
	Blockhash string
}

// SignResponse 签名响应
type SignResponse struct {
	Signature     string
	SessionID     string
	CorrelationID string
	Address       string
	RawTx         string
	TxHash        string
	Verified      bool
	Broadcasted   bool
	Duration      time.Duration
}
