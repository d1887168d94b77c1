// Package main is the entry point for summarize.
package main

import (
	"os"

	"github.com/jmylchreest/summarize/cmd/summarize/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
