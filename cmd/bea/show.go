package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RalfNiem/business-epic-analyzer/internal/config"
	"github.com/RalfNiem/business-epic-analyzer/internal/provider"
)

var flagShowJSON bool

var showCmd = &cobra.Command{
	Use:   "show <KEY>",
	Short: "Show the cached details of one issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, store, err := openWorkspace(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		hierarchy, err := config.SelectHierarchy(config.HierarchyName())
		if err != nil {
			return err
		}
		issue, err := provider.New(store, hierarchy, slog.Default()).Issue(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if flagShowJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(issue)
		}

		fmt.Printf("%s [%s] %s\n", issue.Key, issue.Type, issue.Title)
		if issue.Status != "" {
			fmt.Printf("Status:     %s", issue.Status)
			if issue.Resolution != "" {
				fmt.Printf(" (%s)", issue.Resolution)
			}
			fmt.Println()
		}
		if issue.Assignee != "" {
			fmt.Printf("Assignee:   %s\n", issue.Assignee)
		}
		if issue.Team != "" {
			fmt.Printf("Team:       %s\n", issue.Team)
		}
		if issue.Points > 0 {
			fmt.Printf("Points:     %g\n", issue.Points)
		}
		if issue.ParentKey != "" {
			fmt.Printf("Parent:     %s\n", issue.ParentKey)
		}
		if len(issue.FixVersions) > 0 {
			fmt.Printf("Versions:   %s\n", strings.Join(issue.FixVersions, ", "))
		}
		if len(issue.Links) > 0 {
			fmt.Println("Links:")
			for _, l := range issue.Links {
				fmt.Printf("  %-14s %s  %s\n", l.Relation, l.Key, l.Title)
			}
		}
		if issue.Description != "" {
			fmt.Printf("\n%s\n", issue.Description)
		}
		if len(issue.AcceptanceCriteria) > 0 {
			fmt.Println("\nAcceptance criteria:")
			for _, c := range issue.AcceptanceCriteria {
				fmt.Printf("  - %s\n", c)
			}
		}
		return nil
	},
}

func init() {
	showCmd.Flags().BoolVar(&flagShowJSON, "json", false, "print the raw cached record as JSON")
	rootCmd.AddCommand(showCmd)
}
