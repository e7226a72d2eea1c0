// Package main is the entry point for the swcore switch daemon.
package main

import (
	"fmt"
	"os"

	"github.com/helioslabs/swcore/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
