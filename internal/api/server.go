package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/akash-R-A-J/idmap-gateway/internal/auth"
	"github.com/akash-R-A-J/idmap-gateway/internal/config"
	"github.com/akash-R-A-J/idmap-gateway/internal/metrics"
	"github.com/akash-R-A-J/idmap-gateway/internal/mpc/bus"
	"github.com/akash-R-A-J/idmap-gateway/internal/mpc/round"
	"github.com/akash-R-A-J/idmap-gateway/internal/wallet"
	"github.com/dropbox/godropbox/time2"
	"github.com/hashicorp/go-multierror"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type Router struct {
	Routes       []*echo.Route
	Root         *echo.Group
	Management   *echo.Group
	APIV1Rounds  *echo.Group
	APIV1Wallets *echo.Group
}

// Server is a central struct keeping all the dependencies.
// It is initialized with wire, which handles making the new instances of the components
// in the right order. To add a new component, 3 steps are required:
// - declaring it in this struct
// - adding a provider function in providers.go
// - adding the provider's function name to the arguments of wire.Build() in wire.go
//
// Components labeled as `wire:"-"` will be skipped and have to be initialized after the InitNewServer* call.
// For more information about wire refer to https://pkg.go.dev/github.com/google/wire
type Server struct {
	// skip wire:
	// -> initialized with router.Init(s) function
	Echo   *echo.Echo `wire:"-"`
	Router *Router    `wire:"-"`

	Config      config.Server
	Clock       time2.Clock
	Redis       *redis.Client
	Bus         bus.Bus
	Coordinator *round.Coordinator
	Wallet      *wallet.Service
	Auth        *auth.JWTManager
	Metrics     *metrics.Service
}

// newServerWithComponents is used by wire to initialize the server components.
// Components not listed here won't be handled by wire and should be initialized separately.
// Components which shouldn't be handled must be labeled `wire:"-"` in Server struct.
func newServerWithComponents(
	cfg config.Server,
	clock time2.Clock,
	redisClient *redis.Client,
	b bus.Bus,
	coordinator *round.Coordinator,
	walletService *wallet.Service,
	jwtManager *auth.JWTManager,
	metricsService *metrics.Service,
) *Server {
	return &Server{
		Config:      cfg,
		Clock:       clock,
		Redis:       redisClient,
		Bus:         b,
		Coordinator: coordinator,
		Wallet:      walletService,
		Auth:        jwtManager,
		Metrics:     metricsService,
	}
}

func NewServer(config config.Server) *Server {
	s := &Server{
		Config: config,
	}

	return s
}

// Ready reports whether every component required to serve requests is set.
func (s *Server) Ready() bool {
	missing := s.missingComponents()
	if len(missing) > 0 {
		log.Debug().Strs("missing", missing).Msg("Server is not fully initialized")
		return false
	}

	return true
}

func (s *Server) missingComponents() []string {
	var missing []string
	if s.Echo == nil {
		missing = append(missing, "echo")
	}
	if s.Router == nil {
		missing = append(missing, "router")
	}
	if s.Bus == nil {
		missing = append(missing, "bus")
	}
	if s.Coordinator == nil {
		missing = append(missing, "coordinator")
	}
	if s.Wallet == nil {
		missing = append(missing, "wallet")
	}
	if s.Auth == nil {
		missing = append(missing, "auth")
	}
	return missing
}

func (s *Server) Start() error {
	if !s.Ready() {
		return errors.New("server is not ready")
	}

	log.Info().
		Str("listen_address", s.Config.Echo.ListenAddress).
		Int("expected_participants", s.Config.Rounds.ExpectedParticipants).
		Dur("round_timeout", s.Config.Rounds.RoundTimeout).
		Str("chain", s.Config.Wallet.ChainType).
		Msg("Starting gateway")

	if err := s.Echo.Start(s.Config.Echo.ListenAddress); err != nil {
		return fmt.Errorf("failed to start echo server: %w", err)
	}

	return nil
}

// Shutdown stops accepting requests, ends in-flight rounds and releases the bus connection.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Warn().Msg("Shutting down server")

	var result *multierror.Error

	if s.Echo != nil {
		log.Debug().Msg("Shutting down echo server")
		if err := s.Echo.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Failed to shutdown echo server")
			result = multierror.Append(result, err)
		}
	}

	if s.Coordinator != nil {
		log.Debug().Msg("Closing round coordinator")
		if err := s.Coordinator.Close(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to close round coordinator")
			result = multierror.Append(result, err)
		}
	}

	if s.Bus != nil {
		log.Debug().Msg("Closing message bus")
		if err := s.Bus.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close message bus")
			result = multierror.Append(result, err)
		}
	}

	if s.Redis != nil {
		log.Debug().Msg("Closing redis client")
		if err := s.Redis.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			log.Error().Err(err).Msg("Failed to close redis client")
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}
