package store

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/roach88/symslash/internal/codec"
	"github.com/roach88/symslash/internal/fileutil"
	"github.com/roach88/symslash/internal/ident"
)

// Forward is the name-keyed view of a store, used to collect and hash.
//
// A Forward is owned by one goroutine for the duration of one command.
type Forward struct {
	path   string
	mode   Mode
	prefix ident.Prefix
	codec  codec.Codec
	logger *slog.Logger

	ids     map[string]ident.Identity
	entries []Entry // loaded rows in file order, then new rows in identity order

	baseline ident.Identity
	next     ident.Identity

	snap   *Snapshot
	closed bool
}

// OpenForward loads the store at path and indexes it by name.
//
// In ReadOnly mode a missing file is an error. In ReadWrite mode a missing
// file is an empty store that Commit will create. Corrupt files are always
// errors. All failures are *Error with code ErrCodeOpen.
func OpenForward(path string, opts Options) (*Forward, error) {
	opts = opts.withDefaults()

	snap, err := Load(path, opts.Format)
	if err != nil {
		return nil, openError(path, err)
	}
	if !snap.Exists && opts.Mode == ReadOnly {
		return nil, openError(path, fmt.Errorf("file does not exist"))
	}
	c, err := codec.For(snap.Format)
	if err != nil {
		return nil, openError(path, err)
	}

	f := &Forward{
		path:    path,
		mode:    opts.Mode,
		prefix:  opts.Prefix,
		codec:   c,
		logger:  opts.Logger,
		ids:     buildNameIndex(snap.Entries),
		entries: append([]Entry(nil), snap.Entries...),
		snap:    snap,
	}
	f.baseline = nextIdentity(snap.Entries)
	f.next = f.baseline

	f.logger.Debug("symbol store opened",
		"path", path,
		"mode", opts.Mode.String(),
		"format", string(snap.Format),
		"entries", len(snap.Entries),
		"baseline", uint64(f.baseline),
	)
	return f, nil
}

func buildNameIndex(entries []Entry) map[string]ident.Identity {
	ids := make(map[string]ident.Identity, len(entries))
	for _, e := range entries {
		ids[e.Name] = e.ID
	}
	return ids
}

// Path returns the store file path.
func (f *Forward) Path() string { return f.path }

// Format returns the resolved store format.
func (f *Forward) Format() codec.Format { return f.codec.Format() }

// Prefix returns the opaque-identifier prefix.
func (f *Forward) Prefix() ident.Prefix { return f.prefix }

// Len returns the number of known names, loaded and new.
func (f *Forward) Len() int { return len(f.entries) }

// Baseline returns the first identity that is not yet durable.
func (f *Forward) Baseline() ident.Identity { return f.baseline }

// Register returns the identity of name, assigning the next free identity
// if name has not been seen before. Registering a known name is a no-op.
func (f *Forward) Register(name string) (ident.Identity, error) {
	if f.closed {
		return 0, ErrClosed
	}
	if f.mode != ReadWrite {
		return 0, ErrReadOnly
	}
	if name == "" {
		return 0, ErrEmptyName
	}
	if id, ok := f.ids[name]; ok {
		return id, nil
	}

	id := f.next
	f.next++
	f.ids[name] = id
	f.entries = append(f.entries, Entry{Name: name, ID: id})
	return id, nil
}

// Lookup returns the identity of name.
func (f *Forward) Lookup(name string) (ident.Identity, bool) {
	id, ok := f.ids[name]
	return id, ok
}

// Hash returns the opaque identifier for name. Unknown names are returned
// unchanged, so Hash is safe to call on every symbol of an object.
func (f *Forward) Hash(name string) string {
	id, ok := f.ids[name]
	if !ok {
		return name
	}
	return f.prefix.Format(id)
}

// Entries returns all known entries ordered by identity.
func (f *Forward) Entries() []Entry {
	return sortedByID(f.entries)
}

// Pending returns the entries registered since the last durable point,
// ordered by identity.
func (f *Forward) Pending() []Entry {
	var pending []Entry
	for _, e := range f.entries {
		if e.ID >= f.baseline {
			pending = append(pending, e)
		}
	}
	return sortedByID(pending)
}

// Commit persists pending entries.
//
// Read-only stores write nothing. A read-write store whose file does not
// exist yet is created even when nothing is pending; an existing file with
// nothing pending is left untouched. Failures are *Error with code
// ErrCodeWrite; the in-memory state stays uncommitted so the caller can
// report the loss.
func (f *Forward) Commit() error {
	if f.closed {
		return writeError(f.path, ErrClosed)
	}
	if f.mode != ReadWrite {
		return nil
	}

	pending := f.Pending()
	if len(pending) == 0 && f.snap.Exists {
		return nil
	}

	current, err := statFingerprint(f.path)
	if err != nil {
		return writeError(f.path, err)
	}
	if !current.equal(f.snap.fp) {
		return writeError(f.path, ErrModified)
	}

	data, err := f.encode(pending)
	if err != nil {
		return writeError(f.path, err)
	}
	perm, err := fileutil.ExistingPerm(f.path, fileutil.DefaultPerm)
	if err != nil {
		return writeError(f.path, err)
	}
	if err := fileutil.WriteAtomic(f.path, data, perm); err != nil {
		return writeError(f.path, err)
	}

	fp, err := statFingerprint(f.path)
	if err != nil {
		return writeError(f.path, err)
	}
	f.snap.raw = data
	f.snap.fp = fp
	f.snap.Exists = true
	f.baseline = f.next

	f.logger.Info("symbol store committed",
		"path", f.path,
		"format", string(f.codec.Format()),
		"new", len(pending),
		"total", len(f.entries),
	)
	return nil
}

// encode produces the complete new file content.
func (f *Forward) encode(pending []Entry) ([]byte, error) {
	var buf bytes.Buffer
	if f.codec.Appends() && f.snap.Exists {
		buf.Write(f.snap.raw)
		if n := len(f.snap.raw); n > 0 && f.snap.raw[n-1] != '\n' {
			buf.WriteByte('\n')
		}
		if err := f.codec.Encode(&buf, pending); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	if err := f.codec.Encode(&buf, f.Entries()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Close releases the store. Entries that were registered but not committed
// are discarded. Close is idempotent and meant to be deferred right after a
// successful open.
func (f *Forward) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	if f.mode == ReadWrite {
		if n := len(f.Pending()); n > 0 {
			f.logger.Debug("discarding uncommitted symbols", "path", f.path, "count", n)
		}
	}
	return nil
}
