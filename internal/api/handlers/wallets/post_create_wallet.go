package wallets

import (
	"net/http"

	"github.com/akash-R-A-J/idmap-gateway/internal/api"
	"github.com/akash-R-A-J/idmap-gateway/internal/api/httperrors"
	"github.com/akash-R-A-J/idmap-gateway/internal/util"
	"github.com/labstack/echo/v4"
)

func PostCreateWalletRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Wallets.POST("", postCreateWalletHandler(s))
}

// postCreateWalletHandler runs a key generation round for the authenticated user.
func postCreateWalletHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		uid, err := userID(c)
		if err != nil {
			return err
		}

		record, err := s.Wallet.CreateWallet(ctx, uid)
		if err != nil {
			log.Error().Err(err).Str("user_id", uid).Msg("Failed to create wallet")
			return httperrors.FromError(err)
		}

		return c.JSON(http.StatusCreated, newWalletResponse(record))
	}
}
