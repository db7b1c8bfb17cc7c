package middleware

import (
	"context"
	"time"

	"github.com/akash-R-A-J/idmap-gateway/internal/util"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger attaches a request scoped logger carrying the request id to the request context
// and logs every finished request.
func Logger() echo.MiddlewareFunc {
	return LoggerWithLogger(log.Logger)
}

func LoggerWithLogger(base zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			start := time.Now()

			reqID := res.Header().Get(echo.HeaderXRequestID)
			if reqID == "" {
				reqID = req.Header.Get(echo.HeaderXRequestID)
			}

			l := base.With().
				Str("req_id", reqID).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Logger()

			ctx := l.WithContext(req.Context())
			ctx = context.WithValue(ctx, util.CTXKeyRequestID, reqID)
			c.SetRequest(req.WithContext(ctx))

			err := next(c)
			if err != nil {
				// lets the error handler write the final status before we log it
				c.Error(err)
			}

			lvl := zerolog.InfoLevel
			if res.Status >= 500 {
				lvl = zerolog.ErrorLevel
			} else if res.Status >= 400 {
				lvl = zerolog.WarnLevel
			}

			l.WithLevel(lvl).
				Int("status", res.Status).
				Int64("bytes_out", res.Size).
				Dur("duration", time.Since(start)).
				Msg("http_request")

			return nil
		}
	}
}
