package store

import (
	"io"
	"log/slog"

	"github.com/roach88/symslash/internal/codec"
	"github.com/roach88/symslash/internal/ident"
)

// Mode controls whether a forward store may register and persist names.
type Mode int

const (
	// ReadOnly stores require an existing file and never write.
	ReadOnly Mode = iota

	// ReadWrite stores treat a missing file as empty and persist on Commit.
	ReadWrite
)

// String returns the mode name used in log output.
func (m Mode) String() string {
	if m == ReadWrite {
		return "read-write"
	}
	return "read-only"
}

// Options configures how a store is opened.
type Options struct {
	Mode Mode

	// Format selects the codec. FormatAuto (the zero value is treated the
	// same) detects it from the file, falling back to codec.DefaultFormat for
	// new or empty files.
	Format codec.Format

	// Prefix for opaque identifiers. Defaults to ident.DefaultPrefix.
	Prefix ident.Prefix

	// Logger receives debug and info records. Defaults to a discarding logger.
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Format == "" {
		o.Format = codec.FormatAuto
	}
	if o.Prefix == "" {
		o.Prefix = ident.DefaultPrefix
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}
