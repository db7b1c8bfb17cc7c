package common

import (
	"context"
	"net/http"
	"time"

	"github.com/akash-R-A-J/idmap-gateway/internal/api"
	"github.com/akash-R-A-J/idmap-gateway/internal/util"
	"github.com/labstack/echo/v4"
)

const healthTimeout = 2 * time.Second

type healthResponse struct {
	Status         string `json:"status"`
	Redis          string `json:"redis"`
	InFlightRounds int    `json:"inFlightRounds"`
}

func GetHealthyRoute(s *api.Server) *echo.Route {
	return s.Router.Management.GET("/healthy", getHealthyHandler(s))
}

// getHealthyHandler reports whether the bus connection is usable.
func getHealthyHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		defer cancel()
		log := util.LogFromContext(ctx)

		res := healthResponse{Status: "ok", Redis: "ok"}
		if s.Coordinator != nil {
			res.InFlightRounds = s.Coordinator.Ledger().Len()
		}

		if s.Redis != nil {
			if err := s.Redis.Ping(ctx).Err(); err != nil {
				log.Warn().Err(err).Msg("Health check failed to ping redis")
				res.Status = "unhealthy"
				res.Redis = err.Error()
				return c.JSON(http.StatusServiceUnavailable, res)
			}
		}

		return c.JSON(http.StatusOK, res)
	}
}
