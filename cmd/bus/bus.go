package bus

import (
	"github.com/akash-R-A-J/idmap-gateway/internal/util/command"
	"github.com/spf13/cobra"
)

func New() *cobra.Command {
	return command.NewSubcommandGroup("bus",
		newCheck(),
		newTail(),
	)
}
