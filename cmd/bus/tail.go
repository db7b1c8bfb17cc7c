package bus

import (
	"context"

	"github.com/akash-R-A-J/idmap-gateway/internal/api"
	"github.com/akash-R-A-J/idmap-gateway/internal/config"
	mpcbus "github.com/akash-R-A-J/idmap-gateway/internal/mpc/bus"
	"github.com/akash-R-A-J/idmap-gateway/internal/mpc/round"
	"github.com/akash-R-A-J/idmap-gateway/internal/util/command"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newTail() *cobra.Command {
	return &cobra.Command{
		Use:   "tail",
		Short: "Prints every start and result message on the round topics until interrupted",
		Run: func(_ *cobra.Command, _ []string) {
			tail()
		},
	}
}

func tail() {
	cfg := config.DefaultServiceConfigFromEnv()
	command.ConfigureLogger(cfg)

	client, err := api.NewRedisClient(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Redis not reachable")
	}
	defer client.Close()

	b := api.NewBus(client)
	defer b.Close()

	ctx, stop := command.SignalContext(context.Background())
	defer stop()

	topics := cfg.Rounds.Topics
	handlers := map[string]mpcbus.Handler{
		topics.DKGStart:   logStart,
		topics.SignStart:  logStart,
		topics.DKGResult:  logResult,
		topics.SignResult: logResult,
	}
	for topic, h := range handlers {
		if _, err := b.Subscribe(ctx, topic, h); err != nil {
			log.Fatal().Err(err).Str("topic", topic).Msg("Failed to subscribe")
		}
	}

	log.Info().Msg("Tailing round topics, press Ctrl+C to stop")
	<-ctx.Done()
}

func logStart(_ context.Context, topic string, payload []byte) {
	msg, err := round.DecodeStartMessage(payload)
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Bytes("raw", payload).Msg("Undecodable start message")
		return
	}
	log.Info().
		Str("topic", topic).
		Str("correlation_id", msg.CorrelationID).
		Str("action", msg.Action).
		Str("session", msg.Session).
		Int("payload_len", len(msg.Payload)).
		Msg("Start")
}

func logResult(_ context.Context, topic string, payload []byte) {
	msg, err := round.DecodeResultMessage(payload)
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Bytes("raw", payload).Msg("Undecodable result message")
		return
	}
	log.Info().
		Str("topic", topic).
		Str("correlation_id", msg.CorrelationID).
		Str("participant_id", string(msg.ParticipantID)).
		Str("result_type", msg.ResultType.String()).
		Str("detail", msg.ErrorDetail).
		Msg("Result")
}
