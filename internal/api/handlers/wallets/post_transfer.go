package wallets

import (
	"encoding/hex"
	"math/big"
	"net/http"
	"strings"

	"github.com/akash-R-A-J/idmap-gateway/internal/api"
	"github.com/akash-R-A-J/idmap-gateway/internal/api/httperrors"
	"github.com/akash-R-A-J/idmap-gateway/internal/util"
	"github.com/akash-R-A-J/idmap-gateway/internal/wallet"
	"github.com/labstack/echo/v4"
)

type postTransferPayload struct {
	To string `json:"to"`
	// Amount and FeeRate are decimal strings in the smallest unit of the chain.
	Amount  string `json:"amount"`
	Nonce   uint64 `json:"nonce"`
	FeeRate string `json:"feeRate,omitempty"`
	// Data is optional hex encoded call data.
	Data string `json:"data,omitempty"`
	// RecentBlockhash pins the Solana blockhash; without it the gateway asks its rpc node.
	RecentBlockhash string `json:"recentBlockhash,omitempty"`
}

func PostTransferRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Wallets.POST("/transfer", postTransferHandler(s))
}

// postTransferHandler builds a transfer on the configured chain and signs it.
func postTransferHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		uid, err := userID(c)
		if err != nil {
			return err
		}

		var body postTransferPayload
		if err := c.Bind(&body); err != nil {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeBadRequest, "Invalid request body")
		}

		req, herr := body.toRequest(uid)
		if herr != nil {
			return herr
		}

		resp, err := s.Wallet.SignTransfer(ctx, req)
		if err != nil {
			log.Error().Err(err).Str("user_id", uid).Str("to", body.To).Msg("Failed to sign transfer")
			return httperrors.FromError(err)
		}

		return c.JSON(http.StatusOK, newSignResponse(resp))
	}
}

func (p postTransferPayload) toRequest(uid string) (*wallet.TransferRequest, *httperrors.HTTPError) {
	if p.To == "" {
		return nil, httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeBadRequest, "to is required")
	}

	amount, ok := new(big.Int).SetString(p.Amount, 10)
	if !ok || amount.Sign() < 0 {
		return nil, httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeBadRequest, "amount must be a non-negative decimal")
	}

	feeRate := new(big.Int)
	if p.FeeRate != "" {
		if _, ok := feeRate.SetString(p.FeeRate, 10); !ok || feeRate.Sign() < 0 {
			return nil, httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeBadRequest, "feeRate must be a non-negative decimal")
		}
	}

	var data []byte
	if p.Data != "" {
		var err error
		data, err = hex.DecodeString(strings.TrimPrefix(p.Data, "0x"))
		if err != nil {
			return nil, httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeBadRequest, "data must be hex encoded")
		}
	}

	return &wallet.TransferRequest{
		UserID:    uid,
		To:        p.To,
		Amount:    amount,
		Nonce:     p.Nonce,
		FeeRate:   feeRate,
		Data:      data,
		Blockhash: p.RecentBlockhash,
	}, nil
}
