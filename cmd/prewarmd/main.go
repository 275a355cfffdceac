// prewarmd is the conversation warm-pool server and CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var serverURL string

var rootCmd = &cobra.Command{
	Use:   "prewarmd",
	Short: "prewarmd manages a pool of pre-initialized agent conversations",
	Long: `prewarmd keeps a per-repository pool of pre-initialized agent
conversations warm so a new session can claim one instead of paying
the clone-and-boot cost on the request path.

  prewarmd serve                                Start the server
  prewarmd status <owner>/<repo>                Check a repo's pool status
  prewarmd prewarm <owner>/<repo>                Save and prewarm a repo`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("PREWARM_SERVER", "http://localhost:8070"), "prewarmd server URL")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
