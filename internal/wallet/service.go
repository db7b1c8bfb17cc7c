// Package wallet implements the registration and send-transaction flows on top of the
// round coordinator.
package wallet

import (
	"context"
	"encoding/json"
	"time"

	"github.com/akash-R-A-J/idmap-gateway/internal/mpc/chain"
	"github.com/akash-R-A-J/idmap-gateway/internal/mpc/encoding"
	"github.com/akash-R-A-J/idmap-gateway/internal/mpc/round"
	"github.com/akash-R-A-J/idmap-gateway/internal/mpc/storage"
	"github.com/dropbox/godropbox/time2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	lockPrefix      = "wallet:"
	historyLimit    = 20
	sessionIDPrefix = "session-"
)

// Options 钱包服务配置
type Options struct {
	// ExpectedParticipants and RoundTimeout are passed to every round; zero selects the
	// coordinator defaults.
	ExpectedParticipants int
	RoundTimeout         time.Duration
	VerifySignatures     bool
	LockTTL              time.Duration
	// Broadcast submits signed transfers through chains that implement chain.Broadcaster.
	Broadcast bool
}

// Service 钱包服务
type Service struct {
	rounds RoundRunner
	store  storage.KeyStore
	chain  chain.Adapter
	codec  encoding.Codec
	opts   Options
	clock  time2.Clock
}

// NewService 创建钱包服务
func NewService(rounds RoundRunner, store storage.KeyStore, adapter chain.Adapter, codec encoding.Codec, clock time2.Clock, opts Options) *Service {
	if codec == nil {
		codec = encoding.Base58
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = time.Minute
	}
	if clock == nil {
		clock = time2.DefaultClock
	}

	return &Service{
		rounds: rounds,
		store:  store,
		chain:  adapter,
		codec:  codec,
		opts:   opts,
		clock:  clock,
	}
}

type keygenPayload struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
	Chain     string `json:"chain"`
}

// CreateWallet runs a key-generation round for the user and stores the aggregated key.
func (s *Service) CreateWallet(ctx context.Context, userID string) (*storage.KeyRecord, error) {
	if userID == "" {
		return nil, errors.Wrap(ErrInvalidRequest, "user id is required")
	}

	if _, err := s.store.GetKey(ctx, userID); err == nil {
		return nil, ErrWalletExists
	} else if !errors.Is(err, storage.ErrKeyNotFound) {
		return nil, errors.Wrap(err, "failed to look up existing wallet")
	}

	release, err := s.lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	sessionID := sessionIDPrefix + uuid.New().String()
	payload, err := json.Marshal(keygenPayload{UserID: userID, SessionID: sessionID, Chain: s.chain.Name()})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal keygen payload")
	}

	log.Info().Str("user_id", userID).Str("session", sessionID).Msg("CreateWallet: starting key generation")

	outcome := s.rounds.RunRound(ctx, round.KindKeyGeneration, payload, s.opts.ExpectedParticipants, s.opts.RoundTimeout, round.WithSession(sessionID))
	if !outcome.Aggregated() {
		return nil, errors.Wrap(outcome.Err(), "key generation failed")
	}

	publicKey := string(outcome.Value)
	raw, err := s.codec.Decode(publicKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode aggregated public key")
	}
	address, err := s.chain.GenerateAddress(raw)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive address")
	}

	record := &storage.KeyRecord{
		UserID:        userID,
		SessionID:     sessionID,
		CorrelationID: outcome.CorrelationID,
		Chain:         s.chain.Name(),
		PublicKey:     publicKey,
		Address:       address,
		CreatedAt:     s.clock.Now().UTC(),
	}
	if err := s.store.SaveKey(ctx, record); err != nil {
		if errors.Is(err, storage.ErrKeyExists) {
			return nil, ErrWalletExists
		}
		return nil, errors.Wrap(err, "failed to save key record")
	}

	log.Info().
		Str("user_id", userID).
		Str("session", sessionID).
		Str("address", address).
		Dur("duration", outcome.Duration).
		Msg("CreateWallet: wallet created")

	return record, nil
}

// GetWallet returns the key record and the most recent signatures of the user.
func (s *Service) GetWallet(ctx context.Context, userID string) (*Wallet, error) {
	record, err := s.getKey(ctx, userID)
	if err != nil {
		return nil, err
	}

	signatures, err := s.store.ListSignatures(ctx, userID, historyLimit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load signing history")
	}

	return &Wallet{Key: record, Signatures: signatures}, nil
}

// SignTransaction runs a signing round over an already serialised transaction message.
func (s *Service) SignTransaction(ctx context.Context, req *SignRequest) (*SignResponse, error) {
	if req == nil || req.UserID == "" || len(req.Message) == 0 {
		return nil, errors.Wrap(ErrInvalidRequest, "user id and message are required")
	}

	record, err := s.getKey(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	return s.sign(ctx, record, req.Message, nil)
}

// SignTransfer builds a transfer on chains that support it and signs it.
func (s *Service) SignTransfer(ctx context.Context, req *TransferRequest) (*SignResponse, error) {
	if req == nil || req.UserID == "" {
		return nil, errors.Wrap(ErrInvalidRequest, "user id is required")
	}

	builder, ok := s.chain.(chain.TxBuilder)
	if !ok {
		return nil, errors.Wrapf(ErrUnsupported, "%s transfers", s.chain.Name())
	}

	record, err := s.getKey(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	tx, err := builder.BuildTransaction(ctx, &chain.BuildTxRequest{
		From:      record.Address,
		To:        req.To,
		Amount:    req.Amount,
		Nonce:     req.Nonce,
		FeeRate:   req.FeeRate,
		Data:      req.Data,
		Blockhash: req.Blockhash,
	})
	if err != nil {
		if errors.Is(err, chain.ErrRPC) {
			return nil, errors.Wrap(ErrChainUnavailable, err.Error())
		}
		return nil, errors.Wrap(ErrInvalidRequest, err.Error())
	}

	return s.sign(ctx, record, tx.Payload, tx)
}

func (s *Service) sign(ctx context.Context, record *storage.KeyRecord, message []byte, tx *chain.Transaction) (*SignResponse, error) {
	release, err := s.lock(ctx, record.UserID)
	if err != nil {
		return nil, err
	}
	defer release()

	log.Info().
		Str("user_id", record.UserID).
		Str("session", record.SessionID).
		Int("message_len", len(message)).
		Msg("SignTransaction: starting signing round")

	outcome := s.rounds.RunRound(ctx, round.KindSigning, message, s.opts.ExpectedParticipants, s.opts.RoundTimeout, round.WithSession(record.SessionID))
	if !outcome.Aggregated() {
		return nil, errors.Wrap(outcome.Err(), "signing failed")
	}

	signature := string(outcome.Value)
	resp := &SignResponse{
		Signature:     signature,
		SessionID:     record.SessionID,
		CorrelationID: outcome.CorrelationID,
		Address:       record.Address,
		Duration:      outcome.Duration,
	}
	if s.opts.VerifySignatures {
		if err := s.verify(record, message, signature); err != nil {
			log.Error().Err(err).
				Str("user_id", record.UserID).
				Str("correlation_id", outcome.CorrelationID).
				Msg("SignTransaction: combined signature rejected")
			return nil, err
		}
		resp.Verified = true
	}

	if tx != nil {
		if err := s.complete(ctx, tx, signature, resp); err != nil {
			log.Error().Err(err).
				Str("user_id", record.UserID).
				Str("correlation_id", outcome.CorrelationID).
				Msg("SignTransfer: failed to complete transaction")
			return nil, err
		}
	}

	history := &storage.SignatureRecord{
		CorrelationID: outcome.CorrelationID,
		SessionID:     record.SessionID,
		Message:       s.codec.Encode(message),
		Signature:     signature,
		TxHash:        resp.TxHash,
		CreatedAt:     s.clock.Now().UTC(),
	}
	if err := s.store.AppendSignature(ctx, record.UserID, history); err != nil {
		// history is best effort
		log.Warn().Err(err).Str("user_id", record.UserID).Msg("SignTransaction: failed to record signature")
	}

	return resp, nil
}

// complete attaches the signature to a built transaction and broadcasts it when configured.
func (s *Service) complete(ctx context.Context, tx *chain.Transaction, signature string, resp *SignResponse) error {
	if attacher, ok := s.chain.(chain.SignatureAttacher); ok {
		sig, err := s.codec.Decode(signature)
		if err != nil {
			return errors.Wrap(ErrSignatureMismatch, err.Error())
		}
		if err := attacher.AttachSignature(tx, sig); err != nil {
			return errors.Wrap(ErrSignatureMismatch, err.Error())
		}
	}
	resp.RawTx = tx.Raw
	resp.TxHash = tx.Hash

	if !s.opts.Broadcast {
		return nil
	}
	broadcaster, ok := s.chain.(chain.Broadcaster)
	if !ok {
		return nil
	}

	id, err := broadcaster.Broadcast(ctx, tx)
	if err != nil {
		return errors.Wrap(ErrChainUnavailable, err.Error())
	}
	log.Info().Str("tx_hash", id).Str("address", resp.Address).Msg("SignTransfer: transaction broadcast")
	resp.TxHash = id
	resp.Broadcasted = true
	return nil
}

func (s *Service) verify(record *storage.KeyRecord, message []byte, signature string) error {
	pub, err := s.codec.Decode(record.PublicKey)
	if err != nil {
		return errors.Wrap(err, "failed to decode stored public key")
	}
	sig, err := s.codec.Decode(signature)
	if err != nil {
		return errors.Wrap(ErrSignatureMismatch, err.Error())
	}
	if err := s.chain.VerifySignature(pub, message, sig); err != nil {
		return errors.Wrap(ErrSignatureMismatch, err.Error())
	}
	return nil
}

func (s *Service) getKey(ctx context.Context, userID string) (*storage.KeyRecord, error) {
	record, err := s.store.GetKey(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, errors.Wrap(err, "failed to load wallet")
	}
	return record, nil
}

// lock serialises wallet operations of one user across gateway instances.
func (s *Service) lock(ctx context.Context, userID string) (func(), error) {
	key := lockPrefix + userID
	ok, err := s.store.AcquireLock(ctx, key, s.opts.LockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrWalletBusy
	}

	return func() {
		if err := s.store.ReleaseLock(context.Background(), key); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("Failed to release wallet lock")
		}
	}, nil
}
