package cli

import (
	"debug/elf"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/symslash/internal/slasher"
	"github.com/roach88/symslash/internal/store"
)

// InsertResult is the output of the insert command.
type InsertResult struct {
	Store string `json:"store"`
	Total int    `json:"total"`
	slasher.CollectStats
}

func (r InsertResult) String() string {
	return fmt.Sprintf("collected %d symbols from %d objects: %d new, %d skipped; %s holds %d",
		r.Symbols, r.Objects, r.Registered, r.Skipped, r.Store, r.Total)
}

// NewInsertCommand creates the insert command.
func NewInsertCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "insert [<store>] <object>...",
		Short: "Collect exported symbols into the symbol store",
		Long: `Register every defined dynamic symbol of the given objects in the symbol
store. Names already in the store keep their identity; new names get the
next free identity in order. Undefined symbols are never registered.

Without --symbols, the first of two or more arguments is the store. A first
argument named like a shared object, or holding an ELF image, is refused
rather than overwritten.

Example:
  symslash insert symbol_hashes libfoo.so libbar.so
  symslash insert -s build/names.json libfoo.so`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return usageErrorf("insert: at least one object is required")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var positional string
			objects := args
			if rootOpts.Store == "" && len(args) >= 2 {
				positional, objects = args[0], args[1:]
				if looksLikeObject(positional) {
					return usageErrorf("insert: %s looks like a shared object, not a symbol store; name the store with --symbols", positional)
				}
			}
			return runInsert(cmd, rootOpts, rootOpts.storePath(positional), objects)
		},
	}
	return cmd
}

// looksLikeObject reports whether path is named like a shared object or
// already holds an ELF image. A missing file is judged by its name alone.
func looksLikeObject(path string) bool {
	base := filepath.Base(path)
	if strings.HasSuffix(base, ".so") || strings.Contains(base, ".so.") {
		return true
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	var magic [len(elf.ELFMAG)]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		return false
	}
	return string(magic[:]) == elf.ELFMAG
}

func runInsert(cmd *cobra.Command, opts *RootOptions, path string, objects []string) error {
	fwd, err := store.OpenForward(path, opts.storeOptions(store.ReadWrite))
	if err != nil {
		return err
	}
	defer fwd.Close()

	driver := opts.newDriver()
	stats, err := driver.Collect(cmd.Context(), fwd, objects...)
	if err != nil {
		return err
	}
	if err := fwd.Commit(); err != nil {
		return err
	}

	return opts.formatter(cmd, driver.RunID()).Success(InsertResult{
		Store:        path,
		Total:        fwd.Len(),
		CollectStats: stats,
	})
}
