// Package httperrors maps service errors onto the JSON error responses of the gateway.
package httperrors

import (
	"fmt"
	"net/http"

	"github.com/akash-R-A-J/idmap-gateway/internal/mpc/round"
	"github.com/akash-R-A-J/idmap-gateway/internal/util"
	"github.com/akash-R-A-J/idmap-gateway/internal/wallet"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

const (
	TypeGeneric            = "generic"
	TypeBadRequest         = "bad_request"
	TypeUnauthorized       = "unauthorized"
	TypeNotFound           = "not_found"
	TypeConflict           = "conflict"
	TypeRoundTimeout       = "round_timeout"
	TypeRoundMismatch      = "round_mismatch"
	TypeParticipantError   = "participant_error"
	TypeAggregationFailed  = "aggregation_failed"
	TypeTransportError     = "transport_error"
	TypeRoundRejected      = "round_rejected"
	TypeSignatureMismatch  = "signature_mismatch"
	TypeUnsupportedOnChain = "unsupported"
	TypeChainUnavailable   = "chain_unavailable"
)

// HTTPError is the body of every non-2xx response.
type HTTPError struct {
	Code          int    `json:"status"`
	Type          string `json:"type"`
	Title         string `json:"title"`
	CorrelationID string `json:"correlationId,omitempty"`
	Internal      error  `json:"-"`
}

func NewHTTPError(code int, errorType string, title string) *HTTPError {
	return &HTTPError{
		Code:  code,
		Type:  errorType,
		Title: title,
	}
}

func NewFromEcho(e *echo.HTTPError) *HTTPError {
	title := http.StatusText(e.Code)
	if msg, ok := e.Message.(string); ok && msg != "" {
		title = msg
	}

	errorType := TypeGeneric
	switch e.Code {
	case http.StatusUnauthorized:
		errorType = TypeUnauthorized
	case http.StatusNotFound:
		errorType = TypeNotFound
	case http.StatusBadRequest:
		errorType = TypeBadRequest
	}

	return &HTTPError{Code: e.Code, Type: errorType, Title: title, Internal: e.Internal}
}

func (e *HTTPError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("HTTPError %d (%s): %s - %v", e.Code, e.Type, e.Title, e.Internal)
	}
	return fmt.Sprintf("HTTPError %d (%s): %s", e.Code, e.Type, e.Title)
}

func (e *HTTPError) Unwrap() error {
	return e.Internal
}

// FromError translates wallet and round errors into their HTTP representation.
// Errors it does not know become a 500 without leaking details.
func FromError(err error) *HTTPError {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}

	var roundErr *round.Error
	if errors.As(err, &roundErr) {
		e := fromRoundError(roundErr)
		e.Internal = err
		return e
	}

	var e *HTTPError
	switch {
	case errors.Is(err, wallet.ErrInvalidRequest):
		e = NewHTTPError(http.StatusBadRequest, TypeBadRequest, "Invalid request")
	case errors.Is(err, wallet.ErrWalletNotFound):
		e = NewHTTPError(http.StatusNotFound, TypeNotFound, "Wallet not found")
	case errors.Is(err, wallet.ErrWalletExists):
		e = NewHTTPError(http.StatusConflict, TypeConflict, "Wallet already exists")
	case errors.Is(err, wallet.ErrWalletBusy):
		e = NewHTTPError(http.StatusConflict, TypeConflict, "Another wallet operation is in progress")
	case errors.Is(err, wallet.ErrUnsupported):
		e = NewHTTPError(http.StatusNotImplemented, TypeUnsupportedOnChain, "Operation not supported by the configured chain")
	case errors.Is(err, wallet.ErrChainUnavailable):
		e = NewHTTPError(http.StatusBadGateway, TypeChainUnavailable, "Chain node unavailable")
	case errors.Is(err, wallet.ErrSignatureMismatch):
		e = NewHTTPError(http.StatusBadGateway, TypeSignatureMismatch, "Combined signature does not verify")
	default:
		e = NewHTTPError(http.StatusInternalServerError, TypeGeneric, http.StatusText(http.StatusInternalServerError))
	}
	e.Internal = err
	return e
}

func fromRoundError(err *round.Error) *HTTPError {
	var e *HTTPError
	switch err.Type {
	case round.ErrTypeTimeout:
		e = NewHTTPError(http.StatusGatewayTimeout, TypeRoundTimeout, "Signer nodes did not respond in time")
	case round.ErrTypeMismatch:
		e = NewHTTPError(http.StatusBadGateway, TypeRoundMismatch, "Signer nodes disagree on the result")
	case round.ErrTypeParticipant:
		e = NewHTTPError(http.StatusBadGateway, TypeParticipantError, "A signer node reported an error")
	case round.ErrTypeAggregation:
		e = NewHTTPError(http.StatusBadGateway, TypeAggregationFailed, "Could not combine signer results")
	case round.ErrTypeTransport:
		e = NewHTTPError(http.StatusServiceUnavailable, TypeTransportError, "Message bus unavailable")
	case round.ErrTypeRejected:
		if errors.Is(err, round.ErrInvalidRound) {
			e = NewHTTPError(http.StatusBadRequest, TypeRoundRejected, "Round parameters rejected")
		} else {
			e = NewHTTPError(http.StatusServiceUnavailable, TypeRoundRejected, "Round could not be started")
		}
	default:
		e = NewHTTPError(http.StatusInternalServerError, TypeGeneric, http.StatusText(http.StatusInternalServerError))
	}
	e.CorrelationID = err.CorrelationID
	return e
}

// HTTPErrorHandler is installed as echo's error handler.
func HTTPErrorHandler(err error, c echo.Context) {
	var httpErr *HTTPError
	var echoErr *echo.HTTPError
	switch {
	case errors.As(err, &httpErr):
	case errors.As(err, &echoErr):
		httpErr = NewFromEcho(echoErr)
	default:
		httpErr = FromError(err)
	}

	log := util.LogFromContext(c.Request().Context())
	if httpErr.Code >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", httpErr.Code).Str("type", httpErr.Type).Msg("Request failed")
	} else {
		log.Debug().Err(err).Int("status", httpErr.Code).Str("type", httpErr.Type).Msg("Request rejected")
	}

	if c.Response().Committed {
		return
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(httpErr.Code)
	} else {
		err = c.JSON(httpErr.Code, httpErr)
	}
	if err != nil {
		log.Warn().Err(err).Msg("Failed to write error response")
	}
}
