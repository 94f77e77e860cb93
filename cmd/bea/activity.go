package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/RalfNiem/business-epic-analyzer/internal/config"
	"github.com/RalfNiem/business-epic-analyzer/internal/provider"
)

var (
	flagActivityJSON  bool
	flagActivityField string
)

var activityCmd = &cobra.Command{
	Use:   "activity <KEY>",
	Short: "Show the change history of a cached hierarchy",
	Long: `Collects the tracked field changes of every issue in the tree below
the given root and prints them chronologically.`,
	Args: cobra.ExactArgs(1),
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
		p := provider.New(store, hierarchy, slog.Default())

		acts, err := p.Activities(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if flagActivityField != "" {
			filtered := acts[:0]
			for _, a := range acts {
				if a.Field == flagActivityField {
					filtered = append(filtered, a)
				}
			}
			acts = filtered
		}

		if flagActivityJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(acts)
		}
		for _, a := range acts {
			fmt.Printf("%s  %-12s %-20s %s -> %s  (%s)\n",
				a.At, a.Key, a.Field, a.From, a.To, a.Actor)
		}
		return nil
	},
}

func init() {
	activityCmd.Flags().BoolVar(&flagActivityJSON, "json", false, "print changes as JSON")
	activityCmd.Flags().StringVar(&flagActivityField, "field", "", "only show changes of this field")
	rootCmd.AddCommand(activityCmd)
}
