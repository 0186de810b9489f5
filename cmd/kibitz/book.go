package main

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var bookCmd = &cobra.Command{
	Use:   "book",
	Short: "Build and inspect the sharded opening book",
}

// Shared by the book subcommands.
var bookDataDir string

func init() {
	bookCmd.PersistentFlags().StringVarP(&bookDataDir, "data-dir", "d", "./data", "directory containing the book")
	rootCmd.AddCommand(bookCmd)
}

// parseBucketURL splits "scheme://bucket/prefix".
func parseBucketURL(raw, scheme string) (bucket, prefix string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parsing %q: %w", raw, err)
	}
	if u.Scheme != scheme || u.Host == "" {
		return "", "", fmt.Errorf("%q is not a %s://bucket/prefix URL", raw, scheme)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

func requireDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("data directory %q does not exist; run 'kibitz book build' first", dir)
	}
	return nil
}
