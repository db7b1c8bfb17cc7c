package token

import (
	"fmt"

	"github.com/akash-R-A-J/idmap-gateway/internal/api"
	"github.com/akash-R-A-J/idmap-gateway/internal/config"
	"github.com/akash-R-A-J/idmap-gateway/internal/util/command"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func New() *cobra.Command {
	return &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issues an access token for a user (development only)",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			cfg := config.DefaultServiceConfigFromEnv()
			command.ConfigureLogger(cfg)

			m, err := api.NewJWTManager(cfg, api.NewClock())
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to create token manager")
			}

			res, err := m.Generate(args[0])
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to generate token")
			}

			log.Info().Str("user_id", res.UserID).Time("valid_until", res.ValidUntil).Msg("Token issued")
			fmt.Println(res.Token)
		},
	}
}
