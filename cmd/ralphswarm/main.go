// Package main provides the CLI entry point for ralphswarm.
package main

import (
	"fmt"
	"os"

	"github.com/ralphswarm/swarm/internal/cmd"
)

func main() {
	rootCmd := cmd.NewRootCommand()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
