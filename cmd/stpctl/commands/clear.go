package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/seregega/sonic-stp/internal/ipc"
)

func clearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear BPDU statistics",
	}

	var intfName string

	all := &cobra.Command{
		Use:   "all",
		Short: "Clear statistics on every VLAN and interface",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return call(&ipc.CtlMsg{CmdType: ipc.CtlClearAll, VlanID: -1})
		},
	}

	vlan := &cobra.Command{
		Use:   "vlan <vlan-id>",
		Short: "Clear statistics on one VLAN (optionally one interface)",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return err
			}
			if intfName != "" {
				return call(&ipc.CtlMsg{CmdType: ipc.CtlClearVlanIntf, VlanID: id, IntfName: intfName})
			}
			return call(&ipc.CtlMsg{CmdType: ipc.CtlClearVlan, VlanID: id})
		},
	}
	vlan.Flags().StringVar(&intfName, "interface", "", "restrict to one interface")

	intf := &cobra.Command{
		Use:   "interface <name>",
		Short: "Clear statistics on one interface across all VLANs",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return call(&ipc.CtlMsg{CmdType: ipc.CtlClearIntf, VlanID: -1, IntfName: args[0]})
		},
	}

	cmd.AddCommand(all, vlan, intf)
	return cmd
}
