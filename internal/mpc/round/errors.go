package round

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrRoundNotFound     = errors.New("round not found")
	ErrRoundClosed       = errors.New("round is no longer collecting")
	ErrDuplicateResult   = errors.New("participant already reported")
	ErrRoundFull         = errors.New("round already has all expected results")
	ErrInvalidRound      = errors.New("invalid round parameters")
	ErrIDExhausted       = errors.New("could not allocate a unique correlation id")
	ErrCoordinatorClosed = errors.New("coordinator closed")
	ErrDeadlineExceeded  = errors.New("round deadline exceeded")
)

// ErrorType classifies a round failure.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeMismatch
	ErrTypeParticipant
	ErrTypeTimeout
	ErrTypeTransport
	ErrTypeAggregation
	ErrTypeRejected
)

func (t ErrorType) String() string {
	switch t {
	case ErrTypeMismatch:
		return "MISMATCH"
	case ErrTypeParticipant:
		return "PARTICIPANT"
	case ErrTypeTimeout:
		return "TIMEOUT"
	case ErrTypeTransport:
		return "TRANSPORT"
	case ErrTypeAggregation:
		return "AGGREGATION"
	case ErrTypeRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// Error is the error form of a non-aggregated Outcome.
type Error struct {
	Type          ErrorType
	Message       string
	CorrelationID string
	Culprits      []string // participants that reported an error
	Original      error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Type.String(), e.Message))
	if len(e.Culprits) > 0 {
		sb.WriteString(fmt.Sprintf(" (culprits: %v)", e.Culprits))
	}
	if e.CorrelationID != "" {
		sb.WriteString(fmt.Sprintf(" [round: %s]", e.CorrelationID))
	}
	if e.Original != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Original))
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Original
}

// IsErrorType reports whether err wraps a round *Error of type t.
func IsErrorType(err error, t ErrorType) bool {
	var roundErr *Error
	if errors.As(err, &roundErr) {
		return roundErr.Type == t
	}
	return false
}
