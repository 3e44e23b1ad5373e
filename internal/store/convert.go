package store

import (
	"bytes"
	"fmt"

	"github.com/roach88/symslash/internal/codec"
	"github.com/roach88/symslash/internal/fileutil"
)

// Convert rewrites the store at src into dst using format to.
//
// This is the migration path between formats; dst is always written whole,
// never appended. src and dst may be the same path. It returns the number of
// entries written.
func Convert(src, dst string, from, to codec.Format) (int, error) {
	snap, err := Load(src, from)
	if err != nil {
		return 0, openError(src, err)
	}
	if !snap.Exists {
		return 0, openError(src, fmt.Errorf("file does not exist"))
	}

	c, err := codec.For(to)
	if err != nil {
		return 0, writeError(dst, err)
	}
	entries := sortedByID(snap.Entries)
	var buf bytes.Buffer
	if err := c.Encode(&buf, entries); err != nil {
		return 0, writeError(dst, err)
	}

	perm, err := fileutil.ExistingPerm(src, fileutil.DefaultPerm)
	if err != nil {
		return 0, writeError(dst, err)
	}
	if err := fileutil.WriteAtomic(dst, buf.Bytes(), perm); err != nil {
		return 0, writeError(dst, err)
	}
	return len(entries), nil
}
