package main

import (
	"os"

	"github.com/ZanzyTHEbar/blueteam-leaderboard/cmd/leaderboard/commands"
)

// Version information - set during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	root := commands.NewRootCmd()
	commands.SetVersionInfo(root, version, commit, date)

	// Errors are printed by the printer package
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
