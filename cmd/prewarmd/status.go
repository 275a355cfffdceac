package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <owner>/<repo>",
	Short: "Get the warm-pool status of a repo",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	owner, name, err := splitRepo(args[0])
	if err != nil {
		return err
	}

	resp, err := http.Get(fmt.Sprintf("%s/api/pool/%s/%s/status", serverURL, owner, name))
	if err != nil {
		return fmt.Errorf("connecting to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, string(body))
	}

	var repo struct {
		RepoFullName           string `json:"repo_full_name"`
		Branch                 string `json:"branch"`
		PoolSize               int    `json:"pool_size"`
		PrewarmedConversations []struct {
			ConversationID string  `json:"conversation_id"`
			Status         string  `json:"status"`
			WarmingStep    string  `json:"warming_step"`
			ErrorMessage   *string `json:"error_message"`
		} `json:"prewarmed_conversations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&repo); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}

	fmt.Printf("Repo:      %s\n", repo.RepoFullName)
	fmt.Printf("Branch:    %s\n", repo.Branch)
	fmt.Printf("Pool size: %d\n", repo.PoolSize)
	fmt.Println()
	for _, c := range repo.PrewarmedConversations {
		fmt.Printf("  %s  %-8s %-18s", c.ConversationID, c.Status, c.WarmingStep)
		if c.ErrorMessage != nil {
			fmt.Printf(" %s", *c.ErrorMessage)
		}
		fmt.Println()
	}

	return nil
}

func splitRepo(s string) (owner, name string, err error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repo must be in owner/repo format, got %q", s)
	}
	return parts[0], parts[1], nil
}
