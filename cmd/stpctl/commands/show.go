package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/seregega/sonic-stp/internal/ipc"
)

func showCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Dump spanning tree state",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "all",
			Short: "Dump global state and every VLAN instance",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				return call(&ipc.CtlMsg{CmdType: ipc.CtlDumpAll, VlanID: -1})
			},
		},
		&cobra.Command{
			Use:   "global",
			Short: "Dump engine-wide state",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				return call(&ipc.CtlMsg{CmdType: ipc.CtlDumpGlobal, VlanID: -1})
			},
		},
		&cobra.Command{
			Use:   "vlan <vlan-id>",
			Short: "Dump one VLAN instance",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				vlan, err := strconv.Atoi(args[0])
				if err != nil {
					return err
				}
				return call(&ipc.CtlMsg{CmdType: ipc.CtlDumpVlan, VlanID: vlan})
			},
		},
		&cobra.Command{
			Use:   "interface <name>",
			Short: "Dump one interface across all instances",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				return call(&ipc.CtlMsg{CmdType: ipc.CtlDumpIntf, VlanID: -1, IntfName: args[0]})
			},
		},
		&cobra.Command{
			Use:   "netlink",
			Short: "Dump the interface database",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				return call(&ipc.CtlMsg{CmdType: ipc.CtlDumpNlDB, VlanID: -1})
			},
		},
		&cobra.Command{
			Use:   "loopstats",
			Short: "Dump dispatch loop statistics",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				return call(&ipc.CtlMsg{CmdType: ipc.CtlDumpLoopStats, VlanID: -1})
			},
		},
	)

	return cmd
}
