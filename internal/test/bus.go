package test

import (
	"testing"

	"github.com/akash-R-A-J/idmap-gateway/internal/mpc/bus"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// NewTestBus returns an in-process bus closed at the end of the test.
func NewTestBus(t *testing.T) *bus.MemoryBus {
	t.Helper()

	b := bus.NewMemoryBus()
	t.Cleanup(func() {
		_ = b.Close()
	})

	return b
}

// NewTestRedis starts a miniredis server and returns a client connected to it.
func NewTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})

	return mr, client
}
