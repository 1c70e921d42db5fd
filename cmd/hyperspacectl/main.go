// Command hyperspacectl is the operator CLI for a Hyperspace master.
package main

import (
	"fmt"
	"os"

	"github.com/hypertable/hyperspace/cmd/hyperspacectl/commands"
)

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
