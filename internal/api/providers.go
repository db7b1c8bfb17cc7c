package api

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/akash-R-A-J/idmap-gateway/internal/auth"
	"github.com/akash-R-A-J/idmap-gateway/internal/config"
	"github.com/akash-R-A-J/idmap-gateway/internal/metrics"
	"github.com/akash-R-A-J/idmap-gateway/internal/mpc/aggregation"
	"github.com/akash-R-A-J/idmap-gateway/internal/mpc/bus"
	"github.com/akash-R-A-J/idmap-gateway/internal/mpc/chain"
	"github.com/akash-R-A-J/idmap-gateway/internal/mpc/encoding"
	"github.com/akash-R-A-J/idmap-gateway/internal/mpc/round"
	"github.com/akash-R-A-J/idmap-gateway/internal/mpc/storage"
	"github.com/akash-R-A-J/idmap-gateway/internal/util/cert"
	"github.com/akash-R-A-J/idmap-gateway/internal/wallet"
	"github.com/dropbox/godropbox/time2"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// PROVIDERS - define here only providers that for various reasons (e.g. cyclic dependency) can't live in their corresponding packages
// or for wrapping providers that only accept sub-configs to prevent the requirements for defining providers for sub-configs.
// https://github.com/google/wire/blob/main/docs/guide.md#defining-providers

// NewRedisClient connects to the Redis instance carrying the message bus and the key store.
func NewRedisClient(cfg config.Server) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid redis url")
	}

	if cfg.Redis.TLSCACert != "" {
		tlsConfig, err := cert.LoadClientTLSConfig(cfg.Redis.TLSCACert, cfg.Redis.TLSCert, cfg.Redis.TLSKey)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load redis tls config")
		}
		if opts.TLSConfig != nil && opts.TLSConfig.ServerName != "" {
			tlsConfig.ServerName = opts.TLSConfig.ServerName
		}
		opts.TLSConfig = tlsConfig
		log.Info().Bool("client_cert", cfg.Redis.TLSEnabled()).Msg("Redis TLS enabled")
	}

	client := redis.NewClient(opts)
	if err := bus.Ping(context.Background(), client, cfg.Redis.ConnectRetries, cfg.Redis.ConnectBackoff); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "failed to connect to redis")
	}

	log.Info().Str("addr", opts.Addr).Int("db", opts.DB).Msg("Connected to redis")
	return client, nil
}

func NewBus(client *redis.Client) bus.Bus {
	return bus.NewRedisBus(client)
}

// NewClock returns the wall clock, or a mock clock frozen at the current time in tests.
func NewClock(t ...*testing.T) time2.Clock {
	var clock time2.Clock

	useMock := len(t) > 0 && t[0] != nil

	if useMock {
		clock = time2.NewMockClock(time.Now())
	} else {
		clock = time2.DefaultClock
	}

	return clock
}

func NewLedger(clock time2.Clock) *round.Ledger {
	return round.NewLedger(round.WithClock(clock))
}

// NewValueCodec returns the codec used for aggregated values and stored keys.
func NewValueCodec(cfg config.Server) (encoding.Codec, error) {
	return encoding.ByName(cfg.Rounds.ValueEncoding)
}

// NewPrometheusRegisterer returns the default registerer, or a fresh registry in tests so that
// several servers can coexist in one process.
func NewPrometheusRegisterer(t ...*testing.T) prometheus.Registerer {
	if len(t) > 0 {
		return prometheus.NewRegistry()
	}
	return prometheus.DefaultRegisterer
}

// NewCoordinator builds the round coordinator with the aggregation policies selected by config.
func NewCoordinator(cfg config.Server, b bus.Bus, ledger *round.Ledger, codec encoding.Codec, metricsService *metrics.Service) (*round.Coordinator, error) {
	var combiner aggregation.Combiner
	switch cfg.Rounds.SigningCombiner {
	case config.SigningCombinerIdentical, "":
		combiner = aggregation.IdenticalCombiner{}
	case config.SigningCombinerEdDSA:
		combiner = aggregation.NewEdDSAShareCombiner(codec)
	default:
		return nil, errors.Errorf("unknown signing combiner: %s", cfg.Rounds.SigningCombiner)
	}

	var m round.Metrics
	if cfg.Management.MetricsEnabled {
		m = metricsService
	}

	return round.NewCoordinator(b, ledger, m, round.Config{
		ExpectedParticipants: cfg.Rounds.ExpectedParticipants,
		RoundTimeout:         cfg.Rounds.RoundTimeout,
		Topics: round.Topics{
			DKGStart:   cfg.Rounds.Topics.DKGStart,
			DKGResult:  cfg.Rounds.Topics.DKGResult,
			SignStart:  cfg.Rounds.Topics.SignStart,
			SignResult: cfg.Rounds.Topics.SignResult,
		},
		KeyGeneration: aggregation.KeyGenerationPolicy{},
		Signing:       aggregation.NewSigningPolicy(combiner),
	}), nil
}

func NewChainAdapter(cfg config.Server) (chain.Adapter, error) {
	return chain.New(chain.Config{
		Type:         cfg.Wallet.ChainType,
		ChainID:      big.NewInt(cfg.Wallet.ChainID),
		SolanaRPCURL: cfg.Wallet.SolanaRPCURL,
	})
}

func NewKeyStore(client *redis.Client) storage.KeyStore {
	return storage.NewRedisStore(client)
}

func NewWalletService(cfg config.Server, coordinator *round.Coordinator, store storage.KeyStore, adapter chain.Adapter, codec encoding.Codec, clock time2.Clock) *wallet.Service {
	return wallet.NewService(coordinator, store, adapter, codec, clock, wallet.Options{
		VerifySignatures: cfg.Wallet.VerifySignatures,
		LockTTL:          cfg.Wallet.LockTTL,
		Broadcast:        cfg.Wallet.Broadcast,
	})
}

func NewJWTManager(cfg config.Server, clock time2.Clock) (*auth.JWTManager, error) {
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("AUTH_JWT_SECRET is required")
	}
	return auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.TokenDuration, clock), nil
}

func NoTest() []*testing.T {
	return nil
}
