package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seregega/sonic-stp/internal/ipc"
)

// logLevels maps the CLI names onto slog numeric levels.
var logLevels = map[string]int{
	"debug": -4,
	"info":  0,
	"warn":  4,
	"error": 8,
}

func logLevelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "loglevel <debug|info|warn|error>",
		Short: "Set the daemon log level",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			level, ok := logLevels[args[0]]
			if !ok {
				return fmt.Errorf("unknown log level %q", args[0])
			}
			return call(&ipc.CtlMsg{CmdType: ipc.CtlSetLogLevel, VlanID: -1, Level: level})
		},
	}
}
