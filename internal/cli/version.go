package cli

import (
	"github.com/spf13/cobra"
)

// VersionResult is the output of the version command.
type VersionResult struct {
	Version string `json:"version"`
}

func (r VersionResult) String() string { return "symslash " + r.Version }

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions, version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("version: takes no arguments")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.formatter(cmd, "").Success(VersionResult{Version: version})
		},
	}
}
