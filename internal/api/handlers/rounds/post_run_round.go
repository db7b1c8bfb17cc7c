package rounds

import (
	"fmt"
	"net/http"
	"time"

	"github.com/akash-R-A-J/idmap-gateway/internal/api"
	"github.com/akash-R-A-J/idmap-gateway/internal/api/httperrors"
	"github.com/akash-R-A-J/idmap-gateway/internal/mpc/round"
	"github.com/akash-R-A-J/idmap-gateway/internal/util"
	"github.com/labstack/echo/v4"
)

type postRunRoundPayload struct {
	// Kind is dkg or sign.
	Kind    string `json:"kind"`
	Payload string `json:"payload"`
	Session string `json:"session,omitempty"`
	// ExpectedParticipants and TimeoutMs fall back to the configured defaults when zero.
	ExpectedParticipants int   `json:"expectedParticipants,omitempty"`
	TimeoutMs            int64 `json:"timeoutMs,omitempty"`
}

func PostRunRoundRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Rounds.POST("", postRunRoundHandler(s))
}

// postRunRoundHandler runs one raw round and returns its outcome. The status code follows the
// outcome type; the body always carries the full outcome.
func postRunRoundHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		var body postRunRoundPayload
		if err := c.Bind(&body); err != nil {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeBadRequest, "Invalid request body")
		}

		kind, ok := round.ParseKind(body.Kind)
		if !ok {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeBadRequest, "kind must be dkg or sign")
		}
		if body.ExpectedParticipants < 0 || body.TimeoutMs < 0 {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeBadRequest, "expectedParticipants and timeoutMs must not be negative")
		}
		limits := s.Config.Rounds
		if body.ExpectedParticipants > limits.MaxExpectedParticipants {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeBadRequest, fmt.Sprintf("expectedParticipants must not exceed %d", limits.MaxExpectedParticipants))
		}
		timeout := time.Duration(body.TimeoutMs) * time.Millisecond
		if body.TimeoutMs > limits.MaxRoundTimeout.Milliseconds() {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeBadRequest, fmt.Sprintf("timeoutMs must not exceed %d", limits.MaxRoundTimeout.Milliseconds()))
		}

		var opts []round.RoundOption
		if body.Session != "" {
			opts = append(opts, round.WithSession(body.Session))
		}

		outcome := s.Coordinator.RunRound(ctx, kind, []byte(body.Payload), body.ExpectedParticipants, timeout, opts...)

		status := http.StatusOK
		if !outcome.Aggregated() {
			status = httperrors.FromError(outcome.Err()).Code
			log.Warn().Str("correlation_id", outcome.CorrelationID).Str("outcome", outcome.Type.String()).Msg("Raw round did not aggregate")
		}

		return c.JSON(status, outcome.View())
	}
}
