package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/akash-R-A-J/idmap-gateway/internal/util"
	"github.com/labstack/echo/v4"
)

const (
	// legacyTokenHeader is the header used by the first frontend.
	legacyTokenHeader = "token"
	bearerPrefix      = "Bearer "
)

// Middleware rejects requests without a valid token and stores the user id on the request
// context (util.CTXKeyUserID).
func Middleware(m *JWTManager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			log := util.LogFromContext(req.Context())

			token := tokenFromRequest(req)
			if token == "" {
				log.Debug().Msg("Missing authentication token")
				return echo.NewHTTPError(http.StatusUnauthorized, "missing token")
			}

			claims, err := m.Validate(token)
			if err != nil {
				log.Debug().Err(err).Msg("Rejected authentication token")
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			ctx := context.WithValue(req.Context(), util.CTXKeyUserID, claims.Subject())
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}

func tokenFromRequest(req *http.Request) string {
	if h := req.Header.Get(echo.HeaderAuthorization); strings.HasPrefix(h, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(h, bearerPrefix))
	}
	return strings.TrimSpace(req.Header.Get(legacyTokenHeader))
}
