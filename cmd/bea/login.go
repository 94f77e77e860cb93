package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/RalfNiem/business-epic-analyzer/internal/config"
)

var flagLoginURL string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store the tracker URL and API token in the workspace",
	Long: `Prompts for an API token (input is hidden) and writes it together
with the tracker URL into the workspace's config.yaml. The token can
alternatively be supplied via the BEA_JIRA_TOKEN environment variable.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := workspaceRoot(cmd)
		if err != nil {
			return err
		}

		url := flagLoginURL
		if url == "" {
			url = config.JiraURL()
		}
		if url == "" {
			fmt.Print("Tracker URL: ")
			if _, err := fmt.Scanln(&url); err != nil {
				return err
			}
		}

		fmt.Print("API token (input hidden): ")
		tokenBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return err
		}
		token := strings.TrimSpace(string(tokenBytes))
		if token == "" {
			return fmt.Errorf("empty token")
		}

		path := filepath.Join(root, "config.yaml")
		if err := mergeConfigYAML(path, url, token); err != nil {
			return err
		}
		fmt.Printf("Credentials written to %s\n", path)
		return nil
	},
}

// mergeConfigYAML updates the jira section of config.yaml, keeping all
// other settings intact.
func mergeConfigYAML(path, url, token string) error {
	doc := map[string]any{}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	jiraSection, _ := doc["jira"].(map[string]any)
	if jiraSection == nil {
		jiraSection = map[string]any{}
	}
	jiraSection["url"] = url
	jiraSection["token"] = token
	doc["jira"] = jiraSection

	out, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}

func init() {
	loginCmd.Flags().StringVar(&flagLoginURL, "url", "", "tracker base URL")
	rootCmd.AddCommand(loginCmd)
}
