package cert

import (
	"fmt"
	"time"

	"github.com/akash-R-A-J/idmap-gateway/internal/util/cert"
	"github.com/akash-R-A-J/idmap-gateway/internal/util/command"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	caValidity   = 10 * 365 * 24 * time.Hour
	leafValidity = 365 * 24 * time.Hour
)

func New() *cobra.Command {
	return command.NewSubcommandGroup("cert",
		newGenCmd(),
	)
}

func newGenCmd() *cobra.Command {
	var outDir string
	var redisHosts []string
	var signers int

	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate development certificates for TLS on the message bus (CA, Redis, coordinator, signer nodes)",
		Run: func(_ *cobra.Command, _ []string) {
			if err := generateCerts(outDir, redisHosts, signers); err != nil {
				log.Fatal().Err(err).Msg("Failed to generate certificates")
			}
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "certs", "Output directory for certificates")
	cmd.Flags().StringSliceVar(&redisHosts, "redis-host", []string{"localhost", "127.0.0.1", "redis"}, "Hostnames/IPs for the Redis server certificate")
	cmd.Flags().IntVar(&signers, "signers", 2, "Number of signer node client certificates")

	return cmd
}

func generateCerts(outDir string, redisHosts []string, signers int) error {
	log.Info().Msg("Generating CA certificate...")
	ca, err := cert.GenerateCA("Round Coordinator Root CA", caValidity)
	if err != nil {
		return err
	}
	if err := cert.WriteFiles(outDir, "ca", ca.CertPEM, ca.KeyPEM); err != nil {
		return err
	}

	log.Info().Strs("hosts", redisHosts).Msg("Generating Redis server certificate...")
	if err := issue(ca, outDir, "redis", redisHosts, true); err != nil {
		return err
	}

	log.Info().Msg("Generating coordinator client certificate...")
	if err := issue(ca, outDir, "coordinator", nil, false); err != nil {
		return err
	}

	for i := 1; i <= signers; i++ {
		name := fmt.Sprintf("signer-%d", i)
		log.Info().Str("name", name).Msg("Generating signer node client certificate...")
		if err := issue(ca, outDir, name, nil, false); err != nil {
			return err
		}
	}

	log.Info().Str("dir", outDir).Msg("Certificates generated successfully")
	return nil
}

func issue(ca *cert.Authority, outDir string, name string, hosts []string, server bool) error {
	leaf, err := ca.Issue(name, hosts, server, leafValidity)
	if err != nil {
		return err
	}
	return cert.WriteFiles(outDir, name, leaf.CertPEM, leaf.KeyPEM)
}
