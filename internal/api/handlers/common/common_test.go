package common_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/akash-R-A-J/idmap-gateway/internal/api"
	"github.com/akash-R-A-J/idmap-gateway/internal/test"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHealthy(t *testing.T) {
	test.WithTestServer(t, func(s *api.Server, mr *miniredis.Miniredis) {
		res := test.PerformRequest(t, s, http.MethodGet, "/-/healthy", nil, nil)
		require.Equal(t, http.StatusOK, res.Code)

		var body map[string]interface{}
		test.ParseResponseBody(t, res, &body)
		assert.Equal(t, "ok", body["status"])
		assert.EqualValues(t, 0, body["inFlightRounds"])

		mr.SetError("LOADING")
		defer mr.SetError("")

		res = test.PerformRequest(t, s, http.MethodGet, "/-/healthy", nil, nil)
		assert.Equal(t, http.StatusServiceUnavailable, res.Code)
	})
}

func TestGetMetrics(t *testing.T) {
	test.WithTestServer(t, func(s *api.Server, _ *miniredis.Miniredis) {
		test.StartSignerFleet(t, s.Bus, test.Topics(s), []string{"1", "2"}, test.Agree("sig"))

		res := test.PerformRequest(t, s, http.MethodPost, "/api/v1/rounds", map[string]interface{}{
			"kind":    "sign",
			"payload": "hello",
		}, test.AuthHeader(t, s, "operator"))
		require.Equal(t, http.StatusOK, res.Code, res.Body.String())

		res = test.PerformRequest(t, s, http.MethodGet, "/metrics", nil, nil)
		require.Equal(t, http.StatusOK, res.Code)

		body := res.Body.String()
		assert.True(t, strings.Contains(body, `mpc_round_rounds_completed_total{kind="signing",outcome="aggregated"} 1`), body)
		assert.True(t, strings.Contains(body, `mpc_round_participant_messages_total{kind="signing",result_type="result"} 2`), body)
	})
}

func TestGetMetricsDisabled(t *testing.T) {
	cfg := test.DefaultTestConfig()
	cfg.Management.MetricsEnabled = false

	test.WithTestServerConfigurable(t, cfg, func(s *api.Server, _ *miniredis.Miniredis) {
		res := test.PerformRequest(t, s, http.MethodGet, "/metrics", nil, nil)
		assert.Equal(t, http.StatusNotFound, res.Code)
	})
}
