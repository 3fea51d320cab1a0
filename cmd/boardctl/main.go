package main

import (
	"os"

	"github.com/gosuda/boardsync/cmd/boardctl/commands"
)

var version = "dev"

func main() {
	commands.SetVersion(version)
	// errors are printed by the commands with color formatting
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
