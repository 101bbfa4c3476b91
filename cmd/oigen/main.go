// Package main is the entry point for the oigen CLI.
package main

import (
	"os"

	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
