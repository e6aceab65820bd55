// Package main is the entry point for the decksmith CLI.
// The CLI is the developer terminal tool for interacting with the decksmith API.
package main

import (
	"decksmith/cmd/cli/cmd"
	"os"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
