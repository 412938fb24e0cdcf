// Package main is the entry point for the mcpcored command-line daemon.
package main

import (
	"fmt"
	"os"

	"github.com/deechat/mcp-core/cmd/mcpcored/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "there was an error: %v\n", err)
		os.Exit(1)
	}
}
