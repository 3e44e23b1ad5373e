package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/symslash/internal/codec"
	"github.com/roach88/symslash/internal/store"
)

// ConvertResult is the output of the convert command.
type ConvertResult struct {
	From    string       `json:"from"`
	To      string       `json:"to"`
	Format  codec.Format `json:"format"`
	Entries int          `json:"entries"`
}

func (r ConvertResult) String() string {
	return fmt.Sprintf("converted %d entries from %s to %s (%s)", r.Entries, r.From, r.To, r.Format)
}

// ConvertOptions holds flags for the convert command.
type ConvertOptions struct {
	*RootOptions
	To string
}

// NewConvertCommand creates the convert command.
func NewConvertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConvertOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "convert --to legacy|structured <dst>",
		Short: "Rewrite the symbol store in another format",
		Long: `Read the symbol store and write all of its entries to <dst> in the format
given by --to. <dst> may be the store itself.

Example:
  symslash convert -s symbol_hashes --to structured symbol_hashes.json`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return usageErrorf("convert: expected <dst>, got %d arguments", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := codec.ParseFormat(opts.To)
			if opts.To == "" || err != nil || to == codec.FormatAuto {
				return usageErrorf("convert: --to must be legacy or structured")
			}
			return runConvert(cmd, rootOpts, args[0], to)
		},
	}

	cmd.Flags().StringVar(&opts.To, "to", "", "target format (legacy|structured), required")
	return cmd
}

func runConvert(cmd *cobra.Command, opts *RootOptions, dst string, to codec.Format) error {
	src := opts.storePath("")
	n, err := store.Convert(src, dst, opts.cfg.Format, to)
	if err != nil {
		return err
	}
	return opts.formatter(cmd, "").Success(ConvertResult{From: src, To: dst, Format: to, Entries: n})
}
