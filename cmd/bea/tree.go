package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/RalfNiem/business-epic-analyzer/internal/config"
	"github.com/RalfNiem/business-epic-analyzer/internal/configfile"
	"github.com/RalfNiem/business-epic-analyzer/internal/provider"
	"github.com/RalfNiem/business-epic-analyzer/internal/tree"
)

var (
	flagTreeHierarchy       string
	flagTreeJSON            bool
	flagTreeIncludeExcluded bool
	flagTreeWatch           bool
)

var treeCmd = &cobra.Command{
	Use:   "tree <KEY>",
	Short: "Render the cached hierarchy below an issue",
	Long: `Builds the tree below the given root from the local cache and prints
it. No tracker access happens; crawl first. With --watch the tree is
re-rendered whenever the cache changes on disk.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, meta, store, err := openWorkspace(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		hierarchyName := config.HierarchyName()
		if cmd.Flags().Changed("hierarchy") {
			hierarchyName = flagTreeHierarchy
		}
		hierarchy, err := config.SelectHierarchy(hierarchyName)
		if err != nil {
			return err
		}

		p := provider.New(store, hierarchy, slog.Default())
		p.Builder().IncludeExcluded = flagTreeIncludeExcluded

		render := func() error {
			g, err := p.Tree(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printGraph(g, args[0])
		}

		if err := render(); err != nil {
			return err
		}
		if !flagTreeWatch {
			return nil
		}
		return watchAndRerender(cmd, root, meta, render)
	},
}

func printGraph(g *tree.Graph, root string) error {
	if !flagTreeJSON {
		return g.WriteText(os.Stdout, root)
	}

	out := struct {
		Root  string       `json:"root"`
		Nodes []*tree.Node `json:"nodes"`
		Edges []tree.Edge  `json:"edges"`
	}{Root: root, Edges: g.Edges()}
	for _, key := range g.Keys() {
		out.Nodes = append(out.Nodes, g.Node(key))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// watchAndRerender re-renders the tree when the cache changes. Events
// are debounced; editors and the crawler both touch several files per
// logical update.
func watchAndRerender(cmd *cobra.Command, root string, meta *configfile.Metadata, render func() error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	targets := watchTargets(root, meta)
	if len(targets) == 0 {
		return fmt.Errorf("nothing to watch for this backend")
	}
	for _, t := range targets {
		if err := watcher.Add(t); err != nil {
			return fmt.Errorf("watching %s: %w", t, err)
		}
	}
	slog.Info("watching cache for changes", "paths", targets)

	var timer *time.Timer
	debounced := make(chan struct{}, 1)
	for {
		select {
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		case err := <-watcher.Errors:
			return err
		case ev := <-watcher.Events:
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(300*time.Millisecond, func() {
				select {
				case debounced <- struct{}{}:
				default:
				}
			})
		case <-debounced:
			fmt.Println()
			if err := render(); err != nil {
				slog.Warn("re-render failed", "error", err)
			}
		}
	}
}

// watchTargets picks the paths worth watching: the issues directory
// when present, otherwise the directory holding the database.
func watchTargets(root string, meta *configfile.Metadata) []string {
	var out []string
	if dir := meta.IssuesPath(root); dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			out = append(out, dir)
		}
	}
	if len(out) == 0 && meta.Database != "" {
		out = append(out, filepath.Dir(meta.DatabasePath(root)))
	}
	return out
}

func init() {
	treeCmd.Flags().StringVar(&flagTreeHierarchy, "hierarchy", "", "hierarchy: management, full, or a YAML file (default from config)")
	treeCmd.Flags().BoolVar(&flagTreeJSON, "json", false, "print nodes and edges as JSON")
	treeCmd.Flags().BoolVar(&flagTreeIncludeExcluded, "include-excluded", false, "keep rejected and withdrawn issues in the tree")
	treeCmd.Flags().BoolVar(&flagTreeWatch, "watch", false, "re-render when the cache changes")
	rootCmd.AddCommand(treeCmd)
}
