// Package main is the entry point for the swarmcog CLI.
package main

import (
	"os"

	"github.com/cogpy/swarmcog/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
