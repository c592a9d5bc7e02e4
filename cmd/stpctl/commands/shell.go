package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// shellCommands lists the available commands for the shell help output.
var shellCommands = []struct {
	name string
	desc string
}{
	{"show all", "Dump global state and every VLAN"},
	{"show vlan <id>", "Dump one VLAN instance"},
	{"show interface <name>", "Dump one interface"},
	{"clear all", "Clear all BPDU statistics"},
	{"debug --enable", "Turn on debug logging"},
	{"version", "Print build information"},
	{"help", "Show this help message"},
	{"exit / quit", "Leave the interactive shell"},
}

func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive stpctl shell",
		Long:  "Launches a simple REPL that accepts stpctl subcommands. Type 'help', 'exit', or 'quit'.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			printShellBanner()
			scanner := bufio.NewScanner(os.Stdin)
			fmt.Print("stpctl> ")

			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())

				switch {
				case line == "exit" || line == "quit":
					return nil
				case line == "help" || line == "?":
					printShellHelp()
				case line != "":
					args := strings.Fields(line)
					rootCmd.SetArgs(args)

					if err := rootCmd.Execute(); err != nil {
						fmt.Fprintln(os.Stderr, "Error:", err)
					}
				}

				fmt.Print("stpctl> ")
			}

			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			return nil
		},
	}
}

func printShellBanner() {
	fmt.Println("stpctl interactive shell. Type 'help' for commands, 'exit' to leave.")
}

func printShellHelp() {
	for _, c := range shellCommands {
		fmt.Printf("  %-24s %s\n", c.name, c.desc)
	}
}
