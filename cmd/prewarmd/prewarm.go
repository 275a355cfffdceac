package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

var (
	prewarmBranch   string
	prewarmPoolSize int
)

var prewarmCmd = &cobra.Command{
	Use:   "prewarm <owner>/<repo>",
	Short: "Save a repo and top its warm pool up to size",
	Args:  cobra.ExactArgs(1),
	RunE:  runPrewarm,
}

func init() {
	prewarmCmd.Flags().StringVar(&prewarmBranch, "branch", "main", "branch to track")
	prewarmCmd.Flags().IntVar(&prewarmPoolSize, "pool-size", 2, "number of conversations to keep warm")
	rootCmd.AddCommand(prewarmCmd)
}

func runPrewarm(cmd *cobra.Command, args []string) error {
	owner, name, err := splitRepo(args[0])
	if err != nil {
		return err
	}

	body, err := json.Marshal(map[string]any{
		"branch":    prewarmBranch,
		"pool_size": prewarmPoolSize,
	})
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	url := fmt.Sprintf("%s/api/pool/%s/%s/prewarm", serverURL, owner, name)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("connecting to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, string(respBody))
	}

	fmt.Printf("prewarming %s/%s (branch=%s, pool_size=%d)\n", owner, name, prewarmBranch, prewarmPoolSize)
	return nil
}
