package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RalfNiem/business-epic-analyzer/internal/config"
	"github.com/RalfNiem/business-epic-analyzer/internal/crawler"
	"github.com/RalfNiem/business-epic-analyzer/internal/faillog"
)

var (
	flagCrawlMode      string
	flagCrawlWorkers   int
	flagCrawlHierarchy string
)

var crawlCmd = &cobra.Command{
	Use:   "crawl <KEY>",
	Short: "Crawl a hierarchy from the tracker into the cache",
	Long: `Walks the hierarchy below the given root issue and caches every
reachable issue. In delta mode only new and stale issues are fetched;
the root itself is always refetched so link data is current. Keys that
fail twice are appended to the failure log.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, meta, store, err := openWorkspace(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		tracker, err := newTracker()
		if err != nil {
			return err
		}

		mode := config.Mode()
		if cmd.Flags().Changed("mode") {
			mode = flagCrawlMode
		}
		crawlMode, err := crawler.ParseMode(mode)
		if err != nil {
			return err
		}

		hierarchyName := config.HierarchyName()
		if cmd.Flags().Changed("hierarchy") {
			hierarchyName = flagCrawlHierarchy
		}
		hierarchy, err := config.SelectHierarchy(hierarchyName)
		if err != nil {
			return err
		}

		workers := config.Workers()
		if cmd.Flags().Changed("workers") {
			workers = flagCrawlWorkers
		}

		var failures *faillog.Log
		if path := meta.FailureLogPath(root); path != "" {
			failures = faillog.New(path)
		}

		engine := crawler.New(tracker, store, failures, crawler.Options{
			Workers:   workers,
			Hierarchy: hierarchy,
		}, slog.Default())

		report, err := engine.Run(cmd.Context(), args[0], crawlMode)
		if err != nil {
			return err
		}

		fmt.Printf("Crawled %s (%s mode): %d fetched, %d from cache",
			report.Root, report.Mode, report.Fetched, report.CacheHits)
		if report.Retried > 0 {
			fmt.Printf(", %d retried", report.Retried)
		}
		fmt.Println()
		if len(report.Failed) > 0 {
			return fmt.Errorf("%d issue(s) failed permanently: %s",
				len(report.Failed), strings.Join(report.Failed, ", "))
		}
		return nil
	},
}

func init() {
	crawlCmd.Flags().StringVar(&flagCrawlMode, "mode", "", "crawl mode: full or delta (default from config)")
	crawlCmd.Flags().IntVar(&flagCrawlWorkers, "workers", 0, "concurrent crawl workers (default from config)")
	crawlCmd.Flags().StringVar(&flagCrawlHierarchy, "hierarchy", "", "hierarchy: management, full, or a YAML file (default from config)")
	rootCmd.AddCommand(crawlCmd)
}
