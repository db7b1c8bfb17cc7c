package bus

import (
	"context"
	"time"

	"github.com/akash-R-A-J/idmap-gateway/internal/api"
	"github.com/akash-R-A-J/idmap-gateway/internal/config"
	"github.com/akash-R-A-J/idmap-gateway/internal/util/command"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newCheck() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Checks the Redis connection and lists signer nodes listening on the start topics",
		Run: func(_ *cobra.Command, _ []string) {
			check()
		},
	}
}

func check() {
	cfg := config.DefaultServiceConfigFromEnv()
	command.ConfigureLogger(cfg)

	client, err := api.NewRedisClient(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Redis not reachable")
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	topics := cfg.Rounds.Topics
	counts, err := client.PubSubNumSub(ctx, topics.DKGStart, topics.SignStart, topics.DKGResult, topics.SignResult).Result()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to query topic subscribers")
	}

	for _, topic := range []string{topics.DKGStart, topics.SignStart, topics.DKGResult, topics.SignResult} {
		log.Info().Str("topic", topic).Int64("subscribers", counts[topic]).Msg("Topic")
	}

	for _, topic := range []string{topics.DKGStart, topics.SignStart} {
		if n := counts[topic]; n < int64(cfg.Rounds.ExpectedParticipants) {
			log.Warn().
				Str("topic", topic).
				Int64("subscribers", n).
				Int("expected_participants", cfg.Rounds.ExpectedParticipants).
				Msg("Fewer signer nodes listening than a round expects")
		}
	}
}
