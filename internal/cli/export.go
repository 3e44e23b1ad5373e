package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/symslash/internal/lookup"
	"github.com/roach88/symslash/internal/store"
)

// ExportResult is the output of the export command.
type ExportResult struct {
	Database string `json:"database"`
	Store    string `json:"store"`
	Entries  int    `json:"entries"`
	Added    int    `json:"added"`
	Total    int    `json:"total"`
}

func (r ExportResult) String() string {
	return fmt.Sprintf("exported %d entries from %s to %s: %d new, %d total",
		r.Entries, r.Store, r.Database, r.Added, r.Total)
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <db>",
		Short: "Write the symbol store to a SQLite lookup table",
		Long: `Copy every store entry, with its opaque identifier, into a SQLite
database for tools that prefer SQL to the store file. The database is created
if needed. Exporting the same store again adds only new entries.

Example:
  symslash export -s symbol_hashes symbols.db
  sqlite3 symbols.db "SELECT name FROM symbols WHERE opaque = 'symslash42'"`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return usageErrorf("export: expected <db>, got %d arguments", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, rootOpts, args[0])
		},
	}
	return cmd
}

func runExport(cmd *cobra.Command, opts *RootOptions, dbPath string) error {
	path := opts.storePath("")
	fwd, err := store.OpenForward(path, opts.storeOptions(store.ReadOnly))
	if err != nil {
		return err
	}
	defer fwd.Close()

	db, err := lookup.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitFailure, "cannot open lookup database", err)
	}
	defer db.Close()

	runID := opts.runIDs().Generate()
	entries := fwd.Entries()
	added, err := db.Export(cmd.Context(), lookup.ExportRecord{
		ID:        runID,
		StorePath: path,
		Prefix:    fwd.Prefix(),
	}, entries)
	if err != nil {
		return WrapExitError(ExitFailure, "export failed", err)
	}
	total, err := db.Count(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFailure, "export failed", err)
	}
	opts.logger.Info("store exported", "run", runID, "db", dbPath, "added", added)

	return opts.formatter(cmd, runID).Success(ExportResult{
		Database: dbPath,
		Store:    path,
		Entries:  len(entries),
		Added:    added,
		Total:    total,
	})
}
