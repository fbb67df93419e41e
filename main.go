// Package main is the entry point for the fpt application
package main

import (
	"github.com/ethpandaops/fpt/cmd"
)

func main() {
	cmd.Execute()
}
