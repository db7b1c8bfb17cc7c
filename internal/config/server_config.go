package config

import (
	"fmt"
	"time"

	"github.com/akash-R-A-J/idmap-gateway/internal/util"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type LoggerServer struct {
	Level              zerolog.Level
	PrettyPrintConsole bool
}

type EchoServer struct {
	ListenAddress string
	Debug         bool
}

type RedisServer struct {
	URL            string
	TLSCACert      string
	TLSCert        string
	TLSKey         string
	ConnectRetries int
	ConnectBackoff time.Duration
}

// TLSEnabled reports whether a client certificate was configured for the bus connection.
func (r RedisServer) TLSEnabled() bool {
	return r.TLSCert != "" && r.TLSKey != ""
}

type Topics struct {
	DKGStart   string
	DKGResult  string
	SignStart  string
	SignResult string
}

type RoundsServer struct {
	ExpectedParticipants int
	RoundTimeout         time.Duration
	// MaxExpectedParticipants and MaxRoundTimeout bound rounds requested over HTTP.
	MaxExpectedParticipants int
	MaxRoundTimeout         time.Duration
	Topics                  Topics
	SigningCombiner         string
	ValueEncoding           string
}

type WalletServer struct {
	ChainType        string
	ChainID          int64
	VerifySignatures bool
	LockTTL          time.Duration
	// SolanaRPCURL enables blockhash lookup and broadcasting on Solana.
	SolanaRPCURL string
	Broadcast    bool
}

type AuthServer struct {
	JWTSecret     string
	JWTIssuer     string
	TokenDuration time.Duration
}

type ManagementServer struct {
	MetricsEnabled bool
}

const (
	SigningCombinerIdentical = "identical"
	SigningCombinerEdDSA     = "eddsa"

	ValueEncodingBase58 = "base58"
	ValueEncodingHex    = "hex"

	ChainTypeSolana   = "solana"
	ChainTypeEthereum = "ethereum"
)

// Server 网关全部配置, read from the environment
type Server struct {
	Logger     LoggerServer
	Echo       EchoServer
	Redis      RedisServer
	Rounds     RoundsServer
	Wallet     WalletServer
	Auth       AuthServer
	Management ManagementServer
}

// DefaultServiceConfigFromEnv returns the server config as parsed from environment variables
// and their respective defaults defined below.
func DefaultServiceConfigFromEnv() Server {
	level, err := zerolog.ParseLevel(util.GetEnv("SERVER_LOGGER_LEVEL", zerolog.DebugLevel.String()))
	if err != nil {
		level = zerolog.DebugLevel
	}

	return Server{
		Logger: LoggerServer{
			Level:              level,
			PrettyPrintConsole: util.GetEnvAsBool("SERVER_LOGGER_PRETTY_PRINT_CONSOLE", false),
		},
		Echo: EchoServer{
			ListenAddress: util.GetEnv("SERVER_ECHO_LISTEN_ADDRESS", ":5000"),
			Debug:         util.GetEnvAsBool("SERVER_ECHO_DEBUG", false),
		},
		Redis: RedisServer{
			URL:            util.GetEnv("REDIS_URL", "redis://localhost:6379"),
			TLSCACert:      util.GetEnv("REDIS_TLS_CA_CERT", ""),
			TLSCert:        util.GetEnv("REDIS_TLS_CERT", ""),
			TLSKey:         util.GetEnv("REDIS_TLS_KEY", ""),
			ConnectRetries: util.GetEnvAsInt("REDIS_CONNECT_RETRIES", 5),
			ConnectBackoff: util.GetEnvAsDuration("REDIS_CONNECT_BACKOFF", 500*time.Millisecond),
		},
		Rounds: RoundsServer{
			ExpectedParticipants:    util.GetEnvAsInt("EXPECTED_PARTICIPANTS", 2),
			RoundTimeout:            util.GetEnvAsDuration("ROUND_TIMEOUT", 5*time.Second),
			MaxExpectedParticipants: util.GetEnvAsInt("ROUND_MAX_EXPECTED_PARTICIPANTS", 16),
			MaxRoundTimeout:         util.GetEnvAsDuration("ROUND_MAX_TIMEOUT", time.Minute),
			Topics: Topics{
				DKGStart:   util.GetEnv("DKG_START_TOPIC", "dkg-start"),
				DKGResult:  util.GetEnv("DKG_RESULT_TOPIC", "dkg-result"),
				SignStart:  util.GetEnv("SIGN_START_TOPIC", "sign-start"),
				SignResult: util.GetEnv("SIGN_RESULT_TOPIC", "sign-result"),
			},
			SigningCombiner: util.GetEnvEnum("SIGNING_COMBINER", SigningCombinerIdentical, []string{SigningCombinerIdentical, SigningCombinerEdDSA}),
			ValueEncoding:   util.GetEnvEnum("VALUE_ENCODING", ValueEncodingBase58, []string{ValueEncodingBase58, ValueEncodingHex}),
		},
		Wallet: WalletServer{
			ChainType:        util.GetEnvEnum("CHAIN_TYPE", ChainTypeSolana, []string{ChainTypeSolana, ChainTypeEthereum}),
			ChainID:          int64(util.GetEnvAsInt("CHAIN_ID", 1)),
			VerifySignatures: util.GetEnvAsBool("VERIFY_SIGNATURES", true),
			LockTTL:          util.GetEnvAsDuration("WALLET_LOCK_TTL", time.Minute),
			SolanaRPCURL:     util.GetEnv("SOLANA_RPC_URL", ""),
			Broadcast:        util.GetEnvAsBool("BROADCAST_TRANSACTIONS", false),
		},
		Auth: AuthServer{
			JWTSecret:     util.GetEnv("AUTH_JWT_SECRET", ""),
			JWTIssuer:     util.GetEnv("AUTH_JWT_ISSUER", "idmap-gateway"),
			TokenDuration: util.GetEnvAsDuration("AUTH_TOKEN_DURATION", time.Hour),
		},
		Management: ManagementServer{
			MetricsEnabled: util.GetEnvAsBool("METRICS_ENABLED", true),
		},
	}
}

// Validate checks the values that cannot be defaulted safely.
func (s Server) Validate() error {
	if s.Rounds.ExpectedParticipants <= 0 {
		return errors.Errorf("expected participants must be positive, got %d", s.Rounds.ExpectedParticipants)
	}
	if s.Rounds.RoundTimeout <= 0 {
		return errors.Errorf("round timeout must be positive, got %s", s.Rounds.RoundTimeout)
	}
	if s.Rounds.MaxExpectedParticipants < s.Rounds.ExpectedParticipants {
		return errors.Errorf("max expected participants %d is below the default %d", s.Rounds.MaxExpectedParticipants, s.Rounds.ExpectedParticipants)
	}
	if s.Rounds.MaxRoundTimeout < s.Rounds.RoundTimeout {
		return errors.Errorf("max round timeout %s is below the default %s", s.Rounds.MaxRoundTimeout, s.Rounds.RoundTimeout)
	}
	if s.Redis.URL == "" {
		return errors.New("redis url is required")
	}

	topics := []string{s.Rounds.Topics.DKGStart, s.Rounds.Topics.DKGResult, s.Rounds.Topics.SignStart, s.Rounds.Topics.SignResult}
	seen := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		if t == "" {
			return errors.New("bus topics must not be empty")
		}
		if _, ok := seen[t]; ok {
			return fmt.Errorf("bus topic %q is used twice", t)
		}
		seen[t] = struct{}{}
	}

	if (s.Redis.TLSCert == "") != (s.Redis.TLSKey == "") {
		return errors.New("redis tls cert and key must be set together")
	}

	return nil
}
