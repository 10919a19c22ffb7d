// Package main is the entry point for the sovits CLI.
//
// Usage:
//
//	sovits [flags] <command> [subcommand] [args]
//
// Commands:
//
//	dataset     - Inspect prepared feature bundles (verify, stats)
//	checkpoint  - Checkpoint maintenance (clean, latest, show)
//	pretrained  - Pretrained asset provisioning (download)
//	version     - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/34j/so-vits-svc-go/cmd/sovits/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
