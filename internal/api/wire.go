//go:build wireinject

//go:generate wire

package api

import (
	"testing"

	"github.com/akash-R-A-J/idmap-gateway/internal/config"
	"github.com/akash-R-A-J/idmap-gateway/internal/metrics"
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
)

// INJECTORS - https://github.com/google/wire/blob/main/docs/guide.md#injectors

// serviceSet groups the default set of providers that are required for initing a server
var serviceSet = wire.NewSet(
	newServerWithComponents,
	NewClock,
	NewJWTManager,
	NewPrometheusRegisterer,
	metrics.New,
	roundServiceSet,
)

var roundServiceSet = wire.NewSet(
	NewBus,
	NewLedger,
	NewValueCodec,
	NewCoordinator,
	NewChainAdapter,
	NewKeyStore,
	NewWalletService,
)

// InitNewServer returns a new Server instance.
func InitNewServer(
	_ config.Server,
) (*Server, error) {
	wire.Build(serviceSet, NewRedisClient, NoTest)
	return new(Server), nil
}

// InitNewServerWithRedis returns a new Server instance on the given Redis client.
// All the other components are initialized via go wire according to the configuration.
func InitNewServerWithRedis(
	_ config.Server,
	_ *redis.Client,
	t ...*testing.T,
) (*Server, error) {
	wire.Build(serviceSet)
	return new(Server), nil
}
