package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/RalfNiem/business-epic-analyzer/internal/configfile"
	"github.com/RalfNiem/business-epic-analyzer/internal/storage"
	"github.com/RalfNiem/business-epic-analyzer/internal/storage/factory"
)

var (
	flagInitBackend  string
	flagInitNoMirror bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a workspace in the current directory",
	Long: `Creates the .bea/ workspace directory with its metadata file and an
empty cache. The default backend is sqlite mirrored into flat JSON
files; --backend file keeps only the files.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		root := flagWorkspace
		if root == "" {
			var err error
			if root, err = os.Getwd(); err != nil {
				return err
			}
		}
		if configfile.Exists(root) {
			return fmt.Errorf("workspace already initialized at %s", configfile.Path(root))
		}

		meta := configfile.Default()
		switch storage.Backend(flagInitBackend) {
		case storage.BackendSQLite:
		case storage.BackendFile:
			meta.Backend = storage.BackendFile
			meta.Database = ""
			meta.Mirror = false
		default:
			return fmt.Errorf("%w: %q (want sqlite or file)", storage.ErrUnknownBackend, flagInitBackend)
		}
		if flagInitNoMirror {
			meta.Mirror = false
		}

		if err := configfile.Save(root, meta); err != nil {
			return err
		}

		// Open the store once so the database and cache directory exist.
		store, err := factory.New(factory.Config{
			Backend:   meta.Backend,
			Database:  meta.DatabasePath(root),
			IssuesDir: meta.IssuesPath(root),
			Mirror:    meta.Mirror,
		}, slog.Default())
		if err != nil {
			return err
		}
		if err := store.Close(); err != nil {
			return err
		}

		fmt.Printf("Initialized workspace in %s (backend: %s)\n", root, meta.Backend)
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&flagInitBackend, "backend", "sqlite", "cache backend (sqlite or file)")
	initCmd.Flags().BoolVar(&flagInitNoMirror, "no-mirror", false, "do not mirror the database into flat files")
	rootCmd.AddCommand(initCmd)
}
