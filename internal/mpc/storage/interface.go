package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrKeyNotFound = errors.New("key record not found")
	ErrKeyExists   = errors.New("key record already exists")
)

// KeyRecord 钱包密钥记录, the aggregated public key produced by a key-generation round.
type KeyRecord struct {
	UserID        string    `json:"userId"`
	SessionID     string    `json:"sessionId"`
	CorrelationID string    `json:"correlationId"`
	Chain         string    `json:"chain"`
	PublicKey     string    `json:"publicKey"`
	Address       string    `json:"address"`
	CreatedAt     time.Time `json:"createdAt"`
}

// SignatureRecord 签名记录
type SignatureRecord struct {
	CorrelationID string    `json:"correlationId"`
	SessionID     string    `json:"sessionId"`
	Message       string    `json:"message"`
	Signature     string    `json:"signature"`
	TxHash        string    `json:"txHash,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// KeyStore persists key records and the signing history of each wallet.
type KeyStore interface {
	// SaveKey stores a new record and fails with ErrKeyExists if the user already has one.
	SaveKey(ctx context.Context, record *KeyRecord) error
	GetKey(ctx context.Context, userID string) (*KeyRecord, error)
	DeleteKey(ctx context.Context, userID string) error

	AppendSignature(ctx context.Context, userID string, record *SignatureRecord) error
	// ListSignatures returns the newest records first.
	ListSignatures(ctx context.Context, userID string, limit int) ([]*SignatureRecord, error)

	// AcquireLock 获取分布式锁
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}
