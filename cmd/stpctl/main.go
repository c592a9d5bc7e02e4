// stpctl -- operator CLI for the stpd spanning tree daemon.
package main

import (
	"github.com/seregega/sonic-stp/cmd/stpctl/commands"
)

func main() {
	commands.Execute()
}
