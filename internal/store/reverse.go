package store

import (
	"fmt"

	"github.com/roach88/symslash/internal/ident"
)

// Reverse is the opaque-identifier-keyed view of a store, used to dehash.
// It never writes.
type Reverse struct {
	path   string
	prefix ident.Prefix
	names  map[string]string
}

// OpenReverse loads the store at path and indexes it by opaque identifier.
// The file must exist. opts.Mode is ignored.
func OpenReverse(path string, opts Options) (*Reverse, error) {
	opts = opts.withDefaults()

	snap, err := Load(path, opts.Format)
	if err != nil {
		return nil, openError(path, err)
	}
	if !snap.Exists {
		return nil, openError(path, fmt.Errorf("file does not exist"))
	}

	r := &Reverse{
		path:   path,
		prefix: opts.Prefix,
		names:  buildOpaqueIndex(snap.Entries, opts.Prefix),
	}
	opts.Logger.Debug("reverse symbol store opened",
		"path", path,
		"format", string(snap.Format),
		"entries", len(snap.Entries),
	)
	return r, nil
}

func buildOpaqueIndex(entries []Entry, prefix ident.Prefix) map[string]string {
	names := make(map[string]string, len(entries))
	for _, e := range entries {
		names[prefix.Format(e.ID)] = e.Name
	}
	return names
}

// Path returns the store file path.
func (r *Reverse) Path() string { return r.path }

// Prefix returns the opaque-identifier prefix.
func (r *Reverse) Prefix() ident.Prefix { return r.prefix }

// Len returns the number of known identifiers.
func (r *Reverse) Len() int { return len(r.names) }

// Lookup returns the original name for an opaque identifier.
func (r *Reverse) Lookup(opaque string) (string, bool) {
	name, ok := r.names[opaque]
	return name, ok
}

// Dehash returns the original name for opaque. Strings that are not the
// opaque identifier of a known identity are returned unchanged.
func (r *Reverse) Dehash(opaque string) string {
	if _, ok := r.prefix.Parse(opaque); !ok {
		return opaque
	}
	if name, ok := r.names[opaque]; ok {
		return name
	}
	return opaque
}

// Close releases the store. Reverse stores hold no file handles; Close exists
// so both views can be deferred the same way.
func (r *Reverse) Close() error {
	return nil
}
