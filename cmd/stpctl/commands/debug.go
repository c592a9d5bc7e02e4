package commands

import (
	"github.com/spf13/cobra"

	"github.com/seregega/sonic-stp/internal/ipc"
)

func debugCmd() *cobra.Command {
	var (
		enable   bool
		disable  bool
		verbose  bool
		bpduRx   bool
		bpduTx   bool
		event    bool
		ports    []string
		vlans    []uint
		allPorts bool
		allVlans bool
	)

	cmd := &cobra.Command{
		Use:   "debug",
		Short: "Adjust the daemon debug vector",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opt := ipc.DebugOpt{Ports: ports}
			for _, v := range vlans {
				opt.Vlans = append(opt.Vlans, uint16(v))
			}

			set := func(name string, val bool) *bool {
				if !cmd.Flags().Changed(name) {
					return nil
				}
				v := val
				return &v
			}

			switch {
			case enable:
				v := true
				opt.Enabled = &v
			case disable:
				v := false
				opt.Enabled = &v
			}
			opt.Verbose = set("verbose", verbose)
			opt.BpduRx = set("bpdu-rx", bpduRx)
			opt.BpduTx = set("bpdu-tx", bpduTx)
			opt.Event = set("event", event)
			opt.AllPorts = set("all-ports", allPorts)
			opt.AllVlans = set("all-vlans", allVlans)

			return call(&ipc.CtlMsg{CmdType: ipc.CtlSetDebug, VlanID: -1, Dbg: opt})
		},
	}

	cmd.Flags().BoolVar(&enable, "enable", false, "enable debug logging")
	cmd.Flags().BoolVar(&disable, "disable", false, "disable debug logging")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "verbose output")
	cmd.Flags().BoolVar(&bpduRx, "bpdu-rx", false, "log received BPDUs")
	cmd.Flags().BoolVar(&bpduTx, "bpdu-tx", false, "log transmitted BPDUs")
	cmd.Flags().BoolVar(&event, "event", false, "log protocol events")
	cmd.Flags().StringSliceVar(&ports, "port", nil, "restrict to interface (repeatable)")
	cmd.Flags().UintSliceVar(&vlans, "vlan", nil, "restrict to VLAN (repeatable)")
	cmd.Flags().BoolVar(&allPorts, "all-ports", false, "match all interfaces")
	cmd.Flags().BoolVar(&allVlans, "all-vlans", false, "match all VLANs")

	return cmd
}
