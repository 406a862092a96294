// Package main provides the entry point for the pagerag CLI.
package main

import (
	"os"

	"github.com/doclens/pagerag/cmd/pagerag/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
