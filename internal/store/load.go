package store

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"sort"
	"time"

	"github.com/roach88/symslash/internal/codec"
	"github.com/roach88/symslash/internal/ident"
)

// Entry is one persisted (name, identity) row.
type Entry = codec.Entry

// Snapshot is the result of reading a store file once.
type Snapshot struct {
	// Path is the store file.
	Path string

	// Format is the resolved (never auto) format of the file.
	Format codec.Format

	// Entries are the decoded rows in file order.
	Entries []Entry

	// Exists is false when the file was absent.
	Exists bool

	raw []byte
	fp  fingerprint
}

type fingerprint struct {
	exists  bool
	size    int64
	modTime time.Time
}

func statFingerprint(path string) (fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fingerprint{}, nil
		}
		return fingerprint{}, err
	}
	return fingerprint{exists: true, size: info.Size(), modTime: info.ModTime()}, nil
}

func (f fingerprint) equal(o fingerprint) bool {
	return f.exists == o.exists && f.size == o.size && f.modTime.Equal(o.modTime)
}

// Load reads and decodes the store at path.
//
// A missing file yields an empty snapshot with Exists=false; callers decide
// whether that is acceptable. Unreadable or corrupt files are errors. Entries
// are checked for duplicate names and duplicate identities.
func Load(path string, format codec.Format) (*Snapshot, error) {
	if format == "" {
		format = codec.FormatAuto
	}

	fp, err := statFingerprint(path)
	if err != nil {
		return nil, err
	}
	if !fp.exists {
		resolved := format
		if resolved == codec.FormatAuto {
			resolved = codec.DefaultFormat
		}
		return &Snapshot{Path: path, Format: resolved}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	resolved := format
	if resolved == codec.FormatAuto {
		resolved = codec.Detect(data, codec.DefaultFormat)
	}
	c, err := codec.For(resolved)
	if err != nil {
		return nil, err
	}
	entries, err := c.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if err := checkEntries(entries); err != nil {
		return nil, err
	}

	return &Snapshot{
		Path:    path,
		Format:  resolved,
		Entries: entries,
		Exists:  true,
		raw:     data,
		fp:      fp,
	}, nil
}

func checkEntries(entries []Entry) error {
	names := make(map[string]ident.Identity, len(entries))
	ids := make(map[ident.Identity]string, len(entries))
	for _, e := range entries {
		if e.ID == math.MaxUint64 {
			return fmt.Errorf("identity %d for %q leaves no room for new identities", e.ID, e.Name)
		}
		if prev, ok := names[e.Name]; ok {
			return fmt.Errorf("%w: name %q has identities %d and %d", ErrDuplicate, e.Name, prev, e.ID)
		}
		if prev, ok := ids[e.ID]; ok {
			return fmt.Errorf("%w: identity %d is assigned to %q and %q", ErrDuplicate, e.ID, prev, e.Name)
		}
		names[e.Name] = e.ID
		ids[e.ID] = e.Name
	}
	return nil
}

// nextIdentity returns the first identity not used by entries. For a dense
// store this is len(entries).
func nextIdentity(entries []Entry) ident.Identity {
	next := ident.Identity(len(entries))
	for _, e := range entries {
		if e.ID >= next {
			next = e.ID + 1
		}
	}
	return next
}

// sortedByID returns a copy of entries ordered by identity.
func sortedByID(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
