package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RalfNiem/business-epic-analyzer/internal/config"
	"github.com/RalfNiem/business-epic-analyzer/internal/configfile"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := workspaceRoot(cmd)
		if err != nil {
			return err
		}
		meta, err := configfile.Load(root)
		if err != nil {
			return err
		}

		token := "(not set)"
		if config.JiraToken() != "" {
			token = "(set)"
		}

		fmt.Printf("workspace:        %s\n", root)
		fmt.Printf("backend:          %s\n", meta.Backend)
		if meta.Database != "" {
			fmt.Printf("database:         %s\n", meta.DatabasePath(root))
		}
		if meta.IssuesDir != "" {
			fmt.Printf("issues dir:       %s\n", meta.IssuesPath(root))
		}
		if meta.FailureLog != "" {
			fmt.Printf("failure log:      %s\n", meta.FailureLogPath(root))
		}
		fmt.Printf("mirror:           %v\n", meta.Mirror)
		fmt.Printf("jira.url:         %s\n", config.JiraURL())
		fmt.Printf("jira.token:       %s\n", token)
		fmt.Printf("jira.timeout:     %s\n", config.JiraTimeout())
		fmt.Printf("crawl.workers:    %d\n", config.Workers())
		fmt.Printf("crawl.mode:       %s\n", config.Mode())
		fmt.Printf("crawl.hierarchy:  %s\n", config.HierarchyName())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
