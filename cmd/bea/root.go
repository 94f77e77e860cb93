package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/RalfNiem/business-epic-analyzer/internal/config"
	"github.com/RalfNiem/business-epic-analyzer/internal/configfile"
	"github.com/RalfNiem/business-epic-analyzer/internal/jira"
	"github.com/RalfNiem/business-epic-analyzer/internal/storage"
	"github.com/RalfNiem/business-epic-analyzer/internal/storage/factory"
)

var (
	flagWorkspace string
	flagLogLevel  string
	flagJSONLogs  bool
)

var rootCmd = &cobra.Command{
	Use:   "bea",
	Short: "Crawl and analyze business epic hierarchies",
	Long: `bea keeps a local cache of a Jira-style issue hierarchy and answers
questions about it offline: tree structure, issue details and change
history. Crawls are incremental; only new and stale issues hit the
tracker.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		root, err := workspaceRoot(cmd)
		if err == nil {
			if lerr := config.Load(root); lerr != nil {
				return lerr
			}
		}
		if cmd.Flags().Changed("log-level") {
			config.Set(config.KeyLogLevel, flagLogLevel)
		}
		if cmd.Flags().Changed("json-logs") {
			config.Set(config.KeyLogJSON, flagJSONLogs)
		}
		setupLogging()
		return nil
	},
}

// Execute runs the CLI.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagWorkspace, "workspace", "w", "", "workspace directory (default: walk up from the current directory)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&flagJSONLogs, "json-logs", false, "emit logs as JSON")
}

func setupLogging() {
	opts := &slog.HandlerOptions{Level: config.LogLevel()}
	var handler slog.Handler
	if config.LogJSON() {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// workspaceRoot resolves the workspace: the explicit flag wins,
// otherwise walk up from the current directory.
func workspaceRoot(cmd *cobra.Command) (string, error) {
	if flagWorkspace != "" {
		return flagWorkspace, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return configfile.FindRoot(cwd)
}

// openWorkspace loads the metadata and opens the configured store.
func openWorkspace(cmd *cobra.Command) (string, *configfile.Metadata, storage.Store, error) {
	root, err := workspaceRoot(cmd)
	if err != nil {
		return "", nil, nil, err
	}
	meta, err := configfile.Load(root)
	if err != nil {
		return "", nil, nil, err
	}

	cfg := factory.Config{
		Backend:   meta.Backend,
		Database:  meta.DatabasePath(root),
		IssuesDir: meta.IssuesPath(root),
		Mirror:    meta.Mirror,
	}
	if cfg.Backend == "" {
		cfg.Backend, err = factory.Detect(cmd.Context(), cfg, slog.Default())
		if err != nil {
			return "", nil, nil, err
		}
	}

	store, err := factory.New(cfg, slog.Default())
	if err != nil {
		return "", nil, nil, err
	}
	return root, meta, store, nil
}

// newTracker builds the remote client from configuration.
func newTracker() (*jira.Client, error) {
	url := config.JiraURL()
	if url == "" {
		return nil, fmt.Errorf("jira.url is not configured (set it in config.yaml or BEA_JIRA_URL)")
	}
	return jira.NewClient(url, config.JiraToken(),
		jira.WithTimeout(config.JiraTimeout()),
		jira.WithLogger(slog.Default()))
}
