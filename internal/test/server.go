package test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/akash-R-A-J/idmap-gateway/internal/api"
	"github.com/akash-R-A-J/idmap-gateway/internal/api/router"
	"github.com/akash-R-A-J/idmap-gateway/internal/config"
	"github.com/akash-R-A-J/idmap-gateway/internal/mpc/round"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

const TestJWTSecret = "test-secret"

// DefaultTestConfig is the env config with a fixed JWT secret and short rounds.
func DefaultTestConfig() config.Server {
	cfg := config.DefaultServiceConfigFromEnv()
	cfg.Auth.JWTSecret = TestJWTSecret
	cfg.Rounds.RoundTimeout = 2 * time.Second
	return cfg
}

// WithTestServer runs closure against a fully wired server backed by miniredis.
func WithTestServer(t *testing.T, closure func(s *api.Server, mr *miniredis.Miniredis)) {
	t.Helper()

	WithTestServerConfigurable(t, DefaultTestConfig(), closure)
}

func WithTestServerConfigurable(t *testing.T, cfg config.Server, closure func(s *api.Server, mr *miniredis.Miniredis)) {
	t.Helper()

	mr, client := NewTestRedis(t)

	s, err := api.InitNewServerWithRedis(cfg, client, t)
	require.NoError(t, err, "failed to init test server")
	router.Init(s)

	closure(s, mr)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx), "failed to shutdown test server")
}

// Topics returns the bus topics of the server's configuration.
func Topics(s *api.Server) round.Topics {
	return s.Coordinator.Config().Topics
}

// AuthHeader returns a bearer authorization header for userID.
func AuthHeader(t *testing.T, s *api.Server, userID string) http.Header {
	t.Helper()

	res, err := s.Auth.Generate(userID)
	require.NoError(t, err)

	h := http.Header{}
	h.Set("Authorization", "Bearer "+res.Token)
	return h
}

// PerformRequest sends a JSON request through the server's echo instance.
func PerformRequest(t *testing.T, s *api.Server, method string, path string, body interface{}, headers http.Header) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res := httptest.NewRecorder()
	s.Echo.ServeHTTP(res, req)
	return res
}

// ParseResponseBody decodes a JSON response into v.
func ParseResponseBody(t *testing.T, res *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	require.NoError(t, json.NewDecoder(res.Body).Decode(v), "failed to parse response body: %s", res.Body.String())
}
