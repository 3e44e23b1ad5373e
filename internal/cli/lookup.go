package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/symslash/internal/store"
)

// LookupEntry is one resolved key.
type LookupEntry struct {
	Key      string `json:"key"`
	Found    bool   `json:"found"`
	By       string `json:"by,omitempty"` // "opaque" or "name"
	Name     string `json:"name,omitempty"`
	Opaque   string `json:"opaque,omitempty"`
	Identity uint64 `json:"identity"`
}

// LookupResult is the output of the lookup command.
type LookupResult struct {
	Store   string        `json:"store"`
	Entries []LookupEntry `json:"entries"`
}

func (r LookupResult) String() string {
	var b strings.Builder
	for i, e := range r.Entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		if !e.Found {
			fmt.Fprintf(&b, "%s: not found", e.Key)
			continue
		}
		fmt.Fprintf(&b, "%s %s %d", e.Name, e.Opaque, e.Identity)
	}
	return b.String()
}

// NewLookupCommand creates the lookup command.
func NewLookupCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup <name|opaque>...",
		Short: "Resolve symbol names and opaque identifiers",
		Long: `Print the name, opaque identifier and identity for each key. A key is
first tried as an opaque identifier, then as a symbol name. Unknown keys are
reported as not found.

Example:
  symslash lookup symslash0 free`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return usageErrorf("lookup: at least one key is required")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLookup(cmd, rootOpts, args)
		},
	}
	return cmd
}

func runLookup(cmd *cobra.Command, opts *RootOptions, keys []string) error {
	path := opts.storePath("")
	fwd, err := store.OpenForward(path, opts.storeOptions(store.ReadOnly))
	if err != nil {
		return err
	}
	defer fwd.Close()
	rev, err := store.OpenReverse(path, opts.storeOptions(store.ReadOnly))
	if err != nil {
		return err
	}
	defer rev.Close()

	result := LookupResult{Store: path, Entries: make([]LookupEntry, 0, len(keys))}
	for _, key := range keys {
		entry := LookupEntry{Key: key}
		name, by := key, "name"
		if _, ok := fwd.Prefix().Parse(key); ok {
			if orig, ok := rev.Lookup(key); ok {
				name, by = orig, "opaque"
			}
		}
		if id, ok := fwd.Lookup(name); ok {
			entry.Found = true
			entry.By = by
			entry.Name = name
			entry.Opaque = fwd.Hash(name)
			entry.Identity = uint64(id)
		}
		result.Entries = append(result.Entries, entry)
	}
	return opts.formatter(cmd, "").Success(result)
}
