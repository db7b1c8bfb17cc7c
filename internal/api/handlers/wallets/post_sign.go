package wallets

import (
	"net/http"
	"strings"

	"github.com/akash-R-A-J/idmap-gateway/internal/api"
	"github.com/akash-R-A-J/idmap-gateway/internal/api/httperrors"
	"github.com/akash-R-A-J/idmap-gateway/internal/mpc/encoding"
	"github.com/akash-R-A-J/idmap-gateway/internal/util"
	"github.com/akash-R-A-J/idmap-gateway/internal/wallet"
	"github.com/labstack/echo/v4"
)

const encodingUTF8 = "utf8"

type postSignPayload struct {
	// Message is the serialised transaction message.
	Message string `json:"message"`
	// Encoding of Message: utf8, hex or base58. Defaults to the configured value encoding.
	Encoding string `json:"encoding,omitempty"`
}

func PostSignRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Wallets.POST("/sign", postSignHandler(s))
}

// postSignHandler runs a signing round over a client supplied message.
func postSignHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		uid, err := userID(c)
		if err != nil {
			return err
		}

		var body postSignPayload
		if err := c.Bind(&body); err != nil {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeBadRequest, "Invalid request body")
		}
		if body.Message == "" {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeBadRequest, "message is required")
		}

		message, err := decodeMessage(body.Message, body.Encoding, s.Config.Rounds.ValueEncoding)
		if err != nil {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeBadRequest, err.Error())
		}

		resp, err := s.Wallet.SignTransaction(ctx, &wallet.SignRequest{UserID: uid, Message: message})
		if err != nil {
			log.Error().Err(err).Str("user_id", uid).Msg("Failed to sign message")
			return httperrors.FromError(err)
		}

		return c.JSON(http.StatusOK, newSignResponse(resp))
	}
}

func decodeMessage(message string, enc string, fallback string) ([]byte, error) {
	if enc == "" {
		enc = fallback
	}
	if strings.EqualFold(enc, encodingUTF8) {
		return []byte(message), nil
	}

	codec, err := encoding.ByName(enc)
	if err != nil {
		return nil, err
	}
	return codec.Decode(message)
}
