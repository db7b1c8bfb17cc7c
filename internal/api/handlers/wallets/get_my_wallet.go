package wallets

import (
	"net/http"

	"github.com/akash-R-A-J/idmap-gateway/internal/api"
	"github.com/akash-R-A-J/idmap-gateway/internal/api/httperrors"
	"github.com/labstack/echo/v4"
)

func GetMyWalletRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Wallets.GET("/me", getMyWalletHandler(s))
}

func getMyWalletHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		uid, err := userID(c)
		if err != nil {
			return err
		}

		w, err := s.Wallet.GetWallet(ctx, uid)
		if err != nil {
			return httperrors.FromError(err)
		}

		res := walletWithHistoryResponse{
			walletResponse: newWalletResponse(w.Key),
			Signatures:     make([]signatureResponse, 0, len(w.Signatures)),
		}
		for _, sig := range w.Signatures {
			res.Signatures = append(res.Signatures, signatureResponse{
				CorrelationID: sig.CorrelationID,
				Signature:     sig.Signature,
				TxHash:        sig.TxHash,
				CreatedAt:     sig.CreatedAt,
			})
		}

		return c.JSON(http.StatusOK, res)
	}
}
