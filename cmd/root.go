package cmd

import (
	"fmt"
	"os"

	"github.com/akash-R-A-J/idmap-gateway/cmd/bus"
	"github.com/akash-R-A-J/idmap-gateway/cmd/cert"
	"github.com/akash-R-A-J/idmap-gateway/cmd/round"
	"github.com/akash-R-A-J/idmap-gateway/cmd/server"
	"github.com/akash-R-A-J/idmap-gateway/cmd/token"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "app",
	Short: "idmap-gateway",
	Long: `idmap-gateway coordinates key generation and signing rounds
between the wallet API and the external signer nodes over Redis pub/sub.`,
}

func init() {
	rootCmd.AddCommand(
		server.New(),
		round.New(),
		bus.New(),
		cert.New(),
		token.New(),
	)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
