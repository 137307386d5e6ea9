// Package main provides the entry point for the mixsearch CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/mixsearch/cmd/mixsearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
