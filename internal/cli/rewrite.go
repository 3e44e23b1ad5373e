package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/symslash/internal/slasher"
	"github.com/roach88/symslash/internal/store"
)

// RewriteResult is the output of the hash and dehash commands.
type RewriteResult struct {
	Op    string `json:"op"`
	Store string `json:"store"`
	In    string `json:"in"`
	Out   string `json:"out"`
	slasher.RewriteStats
}

func (r RewriteResult) String() string {
	s := fmt.Sprintf("%s %s -> %s: renamed %d of %d symbols", r.Op, r.In, r.Out, r.Renamed, r.Symbols)
	if r.Stripped {
		s += ", static symbol table removed"
	}
	return s
}

// rewriteArgs splits [<store>] <in> <out>.
func rewriteArgs(op string, opts *RootOptions, args []string) (storePath, in, out string, err error) {
	switch {
	case len(args) == 2:
		return opts.storePath(""), args[0], args[1], nil
	case len(args) == 3 && opts.Store == "":
		return opts.storePath(args[0]), args[1], args[2], nil
	case len(args) == 3:
		return "", "", "", usageErrorf("%s: store given both with --symbols and as an argument", op)
	default:
		return "", "", "", usageErrorf("%s: expected [<store>] <in> <out>, got %d arguments", op, len(args))
	}
}

// HashOptions holds flags for the hash command.
type HashOptions struct {
	*RootOptions
	KeepStatic bool
}

// NewHashCommand creates the hash command.
func NewHashCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HashOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "hash [--keep-static] [<store>] <in> <out>",
		Short: "Replace collected symbol names with opaque identifiers",
		Long: `Write a copy of <in> to <out> in which every dynamic symbol known to the
store is renamed to its opaque identifier. Unknown symbols are left alone.
The static symbol table is removed unless --keep-static is given. <out> gets
the permission bits of <in>. The store is never modified.

Example:
  symslash hash symbol_hashes libfoo.so libfoo.hashed.so
  symslash hash --keep-static libfoo.so libfoo.hashed.so`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, in, out, err := rewriteArgs("hash", rootOpts, args)
			if err != nil {
				return err
			}
			keep := opts.cfg.KeepStatic
			if cmd.Flags().Changed("keep-static") {
				keep = opts.KeepStatic
			}
			return runHash(cmd, rootOpts, path, in, out, keep)
		},
	}

	cmd.Flags().BoolVar(&opts.KeepStatic, "keep-static", false, "keep the static symbol table")
	return cmd
}

func runHash(cmd *cobra.Command, opts *RootOptions, path, in, out string, keepStatic bool) error {
	fwd, err := store.OpenForward(path, opts.storeOptions(store.ReadOnly))
	if err != nil {
		return err
	}
	defer fwd.Close()

	driver := opts.newDriver()
	stats, err := driver.Hash(cmd.Context(), fwd, in, out, slasher.HashOptions{KeepStatic: keepStatic})
	if err != nil {
		return err
	}
	return opts.formatter(cmd, driver.RunID()).Success(RewriteResult{
		Op: "hash", Store: path, In: in, Out: out, RewriteStats: stats,
	})
}

// NewDehashCommand creates the dehash command.
func NewDehashCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dehash [<store>] <in> <out>",
		Short: "Restore original symbol names",
		Long: `Write a copy of <in> to <out> in which every opaque identifier known to
the store is renamed back to the original symbol name. Other symbols are left
alone. <out> gets the permission bits of <in>.

Example:
  symslash dehash symbol_hashes libfoo.hashed.so libfoo.so`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, in, out, err := rewriteArgs("dehash", rootOpts, args)
			if err != nil {
				return err
			}
			return runDehash(cmd, rootOpts, path, in, out)
		},
	}
	return cmd
}

func runDehash(cmd *cobra.Command, opts *RootOptions, path, in, out string) error {
	rev, err := store.OpenReverse(path, opts.storeOptions(store.ReadOnly))
	if err != nil {
		return err
	}
	defer rev.Close()

	driver := opts.newDriver()
	stats, err := driver.Dehash(cmd.Context(), rev, in, out)
	if err != nil {
		return err
	}
	return opts.formatter(cmd, driver.RunID()).Success(RewriteResult{
		Op: "dehash", Store: path, In: in, Out: out, RewriteStats: stats,
	})
}
