package round

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/akash-R-A-J/idmap-gateway/internal/api"
	"github.com/akash-R-A-J/idmap-gateway/internal/config"
	"github.com/akash-R-A-J/idmap-gateway/internal/mpc/round"
	"github.com/akash-R-A-J/idmap-gateway/internal/util/command"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type runFlags struct {
	payload  string
	session  string
	expected int
	timeout  time.Duration
}

func New() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:       "round <dkg|sign>",
		Short:     "Runs a single round against the live signer nodes and prints the outcome",
		Args:      cobra.ExactValidArgs(1),
		ValidArgs: []string{"dkg", "sign"},
		Run: func(_ *cobra.Command, args []string) {
			os.Exit(runRound(args[0], flags))
		},
	}

	cmd.Flags().StringVarP(&flags.payload, "payload", "p", "", "Round payload (message to sign or keygen request)")
	cmd.Flags().StringVar(&flags.session, "session", "", "Key generation session the signer nodes should use")
	cmd.Flags().IntVarP(&flags.expected, "expected", "n", 0, "Expected participants (default from EXPECTED_PARTICIPANTS)")
	cmd.Flags().DurationVarP(&flags.timeout, "timeout", "t", 0, "Round timeout (default from ROUND_TIMEOUT)")

	return cmd
}

// runRound returns the process exit code: 0 when the round aggregated, 1 otherwise.
func runRound(kindArg string, flags runFlags) int {
	cfg := config.DefaultServiceConfigFromEnv()
	command.ConfigureLogger(cfg)

	kind, ok := round.ParseKind(kindArg)
	if !ok {
		log.Error().Str("kind", kindArg).Msg("Unknown round kind")
		return 1
	}
	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("Invalid config")
		return 1
	}

	client, err := api.NewRedisClient(cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to redis")
		return 1
	}
	defer client.Close()

	b := api.NewBus(client)
	defer b.Close()

	codec, err := api.NewValueCodec(cfg)
	if err != nil {
		log.Error().Err(err).Msg("Invalid value encoding")
		return 1
	}
	coordinator, err := api.NewCoordinator(cfg, b, api.NewLedger(api.NewClock()), codec, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create coordinator")
		return 1
	}

	ctx, stop := command.SignalContext(context.Background())
	defer stop()

	var opts []round.RoundOption
	if flags.session != "" {
		opts = append(opts, round.WithSession(flags.session))
	}

	outcome := coordinator.RunRound(ctx, kind, []byte(flags.payload), flags.expected, flags.timeout, opts...)

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := coordinator.Close(closeCtx); err != nil {
		log.Warn().Err(err).Msg("Failed to close coordinator")
	}

	out, err := json.MarshalIndent(outcome.View(), "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal outcome")
		return 1
	}
	fmt.Println(string(out))

	if !outcome.Aggregated() {
		return 1
	}
	return 0
}
