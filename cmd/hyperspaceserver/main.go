// Command hyperspaceserver runs a Hyperspace master: the coarse-grained
// lock and small-file namespace service.
package main

import (
	"fmt"
	"os"

	"github.com/hypertable/hyperspace/cmd/hyperspaceserver/commands"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
