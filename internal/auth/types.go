package auth

import (
	"time"
)

// Result is an issued access token.
type Result struct {
	Token      string
	UserID     string
	ValidUntil time.Time
}
