package common

import (
	"github.com/akash-R-A-J/idmap-gateway/internal/api"
	"github.com/labstack/echo/v4"
)

func GetMetricsRoute(s *api.Server) *echo.Route {
	return s.Router.Root.GET("/metrics", getMetricsHandler(s))
}

func getMetricsHandler(s *api.Server) echo.HandlerFunc {
	h := echo.WrapHandler(s.Metrics.Handler())
	return func(c echo.Context) error {
		if !s.Config.Management.MetricsEnabled {
			return echo.ErrNotFound
		}
		return h(c)
	}
}
