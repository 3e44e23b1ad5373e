package codec

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/roach88/symslash/internal/ident"
)

// Entry is one persisted row: a symbol name and its identity.
type Entry struct {
	Name string
	ID   ident.Identity
}

// Format selects an on-disk representation.
type Format string

const (
	// FormatAuto detects the format from file content.
	FormatAuto Format = "auto"

	// FormatLegacy is the line-oriented "<identity> <name>" format.
	FormatLegacy Format = "legacy"

	// FormatStructured is the JSON document format.
	FormatStructured Format = "structured"
)

// DefaultFormat is used for stores that do not exist yet.
const DefaultFormat = FormatStructured

// ParseFormat converts a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return FormatAuto, nil
	case "legacy", "line", "lines":
		return FormatLegacy, nil
	case "structured", "json":
		return FormatStructured, nil
	default:
		return "", fmt.Errorf("unsupported store format %q (supported: auto, legacy, structured)", s)
	}
}

// Codec converts between bytes and entries.
type Codec interface {
	// Format reports which format the codec implements.
	Format() Format

	// Decode reads every entry from r, in file order.
	Decode(r io.Reader) ([]Entry, error)

	// Encode writes entries to w, in the given order.
	Encode(w io.Writer, entries []Entry) error

	// Appends reports whether encoded entries may be appended to an existing
	// file. Formats that cannot append must be rewritten in full.
	Appends() bool
}

// For returns the codec for a concrete format. FormatAuto is not concrete;
// resolve it with Detect first.
func For(f Format) (Codec, error) {
	switch f {
	case FormatLegacy:
		return Legacy{}, nil
	case FormatStructured:
		return Structured{}, nil
	default:
		return nil, fmt.Errorf("no codec for store format %q", f)
	}
}

// Detect inspects stored bytes and returns their format.
//
// A document whose first non-space byte is '{' is structured, and so is a
// bare JSON null, which older tools wrote for an empty store. Any other
// content is legacy. Empty or whitespace-only data carries no evidence and
// yields fallback.
func Detect(data []byte, fallback Format) Format {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fallback
	}
	if trimmed[0] == '{' || bytes.Equal(trimmed, []byte("null")) {
		return FormatStructured
	}
	return FormatLegacy
}

// SyntaxError reports stored bytes that do not decode to entries.
type SyntaxError struct {
	Format Format
	Line   int // 1-based; 0 when the format has no line structure
	Msg    string
	Err    error
}

func (e *SyntaxError) Error() string {
	msg := e.Msg
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s store: line %d: %s", e.Format, e.Line, msg)
	}
	return fmt.Sprintf("%s store: %s", e.Format, msg)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}
