package handlers

import (
	"github.com/akash-R-A-J/idmap-gateway/internal/api"
	"github.com/akash-R-A-J/idmap-gateway/internal/api/handlers/common"
	"github.com/akash-R-A-J/idmap-gateway/internal/api/handlers/rounds"
	"github.com/akash-R-A-J/idmap-gateway/internal/api/handlers/wallets"
	"github.com/labstack/echo/v4"
)

func AttachAllRoutes(s *api.Server) {
	s.Router.Routes = []*echo.Route{
		common.GetHealthyRoute(s),
		common.GetMetricsRoute(s),
		rounds.PostRunRoundRoute(s),
		wallets.GetMyWalletRoute(s),
		wallets.PostCreateWalletRoute(s),
		wallets.PostSignRoute(s),
		wallets.PostTransferRoute(s),
	}
}
