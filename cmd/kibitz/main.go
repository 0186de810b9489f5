// Package main provides the kibitz CLI: the analysis server, one-shot
// analysis and opening book management.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
