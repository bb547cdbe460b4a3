// Package main is the entry point for the crashpull application
package main

import (
	"github.com/ethpandaops/crashpull/cmd"
)

func main() {
	cmd.Execute()
}
