package util

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type contextKey string

const (
	CTXKeyUserID    contextKey = "user_id"
	CTXKeyRequestID contextKey = "request_id"
)

// LogFromContext returns the request-scoped logger, or the global logger if none was attached.
func LogFromContext(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		return &log.Logger
	}

	return l
}

// UserIDFromContext returns the authenticated user id stored by the auth middleware.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(CTXKeyUserID).(string)
	if !ok || userID == "" {
		return "", false
	}

	return userID, true
}
