package cli

import (
	"errors"
	"io/fs"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/symslash/internal/codec"
	"github.com/roach88/symslash/internal/config"
	"github.com/roach88/symslash/internal/ident"
	"github.com/roach88/symslash/internal/slasher"
	"github.com/roach88/symslash/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose     bool
	Format      string // "json" | "text"
	ConfigPath  string
	Prefix      string
	StoreFormat string
	Store       string

	// ConfigDir is searched for config.DefaultFile when ConfigPath is empty.
	ConfigDir string

	// RunIDs overrides the run ID generator (for testing).
	// If nil, defaults to slasher.UUIDv7Generator.
	RunIDs slasher.RunIDGenerator

	cfg    config.Config
	logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the symslash CLI.
func NewRootCommand(version string) *cobra.Command {
	return newRootCommand(&RootOptions{ConfigDir: "."}, version)
}

func newRootCommand(opts *RootOptions, version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "symslash",
		Short: "Obfuscate dynamic symbol names of ELF shared objects",
		Long: `symslash replaces the names of exported symbols in ELF shared objects with
opaque identifiers and restores them later.

Names are collected into a symbol store with insert, replaced with hash and
put back with dehash. The store is the only record of the original names.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return usageErrorf("unknown command %q for %q", args[0], cmd.CommandPath())
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.resolve(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return WrapExitError(ExitUsage, c.CommandPath(), err)
	})

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default ./"+config.DefaultFile+" if present)")
	cmd.PersistentFlags().StringVar(&opts.Prefix, "prefix", "", "opaque identifier prefix (default "+string(ident.DefaultPrefix)+")")
	cmd.PersistentFlags().StringVar(&opts.StoreFormat, "store-format", "", "store format (auto|legacy|structured)")
	cmd.PersistentFlags().StringVarP(&opts.Store, "symbols", "s", "", "symbol store path (default "+config.DefaultStore+")")

	cmd.AddCommand(NewInsertCommand(opts))
	cmd.AddCommand(NewHashCommand(opts))
	cmd.AddCommand(NewDehashCommand(opts))
	cmd.AddCommand(NewLookupCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewConvertCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts, version))

	return cmd
}

// resolve validates global flags, loads the config file and merges both.
// Flags win over the file, the file wins over defaults.
func (opts *RootOptions) resolve(cmd *cobra.Command) error {
	if !isValidFormat(opts.Format) {
		return usageErrorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
	}

	var (
		cfg config.Config
		err error
	)
	if opts.ConfigPath != "" {
		cfg, err = config.Load(opts.ConfigPath)
		if errors.Is(err, fs.ErrNotExist) {
			return usageErrorf("config file %s does not exist", opts.ConfigPath)
		}
	} else {
		cfg, err = config.LoadDefault(opts.ConfigDir)
	}
	if err != nil {
		return WrapExitError(ExitUsage, "invalid configuration", err)
	}

	if opts.Store != "" {
		cfg.Store = opts.Store
	}
	if opts.StoreFormat != "" {
		format, err := codec.ParseFormat(opts.StoreFormat)
		if err != nil {
			return WrapExitError(ExitUsage, "invalid --store-format", err)
		}
		cfg.Format = format
	}
	if cmd.Flags().Changed("prefix") {
		prefix, err := ident.ParsePrefix(opts.Prefix)
		if err != nil {
			return WrapExitError(ExitUsage, "invalid --prefix", err)
		}
		cfg.Prefix = prefix
	}
	opts.cfg = cfg

	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	opts.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	opts.logger.Debug("configuration resolved",
		"config", cfg.Path,
		"store", cfg.Store,
		"format", string(cfg.Format),
		"prefix", string(cfg.Prefix),
	)
	return nil
}

// storeOptions returns store options for mode built from the resolved
// configuration.
func (opts *RootOptions) storeOptions(mode store.Mode) store.Options {
	return store.Options{
		Mode:   mode,
		Format: opts.cfg.Format,
		Prefix: opts.cfg.Prefix,
		Logger: opts.logger,
	}
}

// newDriver creates the driver for one invocation.
func (opts *RootOptions) newDriver() *slasher.Driver {
	return slasher.New(slasher.Config{
		Logger: opts.logger,
		RunID:  opts.runIDs(),
	})
}

func (opts *RootOptions) runIDs() slasher.RunIDGenerator {
	if opts.RunIDs == nil {
		return slasher.UUIDv7Generator{}
	}
	return opts.RunIDs
}

// formatter returns the output formatter for cmd.
func (opts *RootOptions) formatter(cmd *cobra.Command, runID string) *OutputFormatter {
	return &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), RunID: runID}
}

// storePath picks the store: the -s flag, then a positional store, then the
// configured store.
func (opts *RootOptions) storePath(positional string) string {
	if opts.Store != "" || positional == "" {
		return opts.cfg.Store
	}
	return positional
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
