// Package commands implements the stpctl command tree.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/seregega/sonic-stp/internal/ipc"
)

var (
	// client talks to the daemon's IPC socket, initialized in
	// PersistentPreRun.
	client *ipc.Client

	// socketPath is the daemon IPC socket path.
	socketPath string
)

// rootCmd is the top-level cobra command for stpctl.
var rootCmd = &cobra.Command{
	Use:   "stpctl",
	Short: "CLI client for the stpd spanning tree daemon",
	Long:  "stpctl communicates with stpd over its unix control socket to inspect and manage per-VLAN spanning tree state.",
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		client = ipc.NewClient(socketPath)
	},
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", ipc.DefaultSocketPath,
		"stpd control socket path")

	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(clearCmd())
	rootCmd.AddCommand(debugCmd())
	rootCmd.AddCommand(logLevelCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(shellCmd())
}

// call sends a control request and prints the reply output.
func call(msg *ipc.CtlMsg) error {
	env, err := ipc.NewMessage(ipc.MsgCtl, msg)
	if err != nil {
		return err
	}
	reply, err := client.Call(env)
	if err != nil {
		return err
	}
	if reply.Status != ipc.StatusOK {
		return fmt.Errorf("daemon error: %s", reply.Output)
	}
	if reply.Output != "" {
		fmt.Println(reply.Output)
	}
	return nil
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
