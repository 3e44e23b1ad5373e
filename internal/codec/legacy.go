package codec

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/roach88/symslash/internal/ident"
)

// Legacy is the line-oriented store format: "<identity> <name>\n".
//
// The name is the remainder of the line after the first space. Names may not
// contain line terminators or NUL.
type Legacy struct{}

// Format implements Codec.
func (Legacy) Format() Format { return FormatLegacy }

// Appends implements Codec.
func (Legacy) Appends() bool { return true }

// Decode implements Codec. Whitespace-only lines are skipped; every other
// line must parse or decoding fails.
func (Legacy) Decode(r io.Reader) ([]Entry, error) {
	br := bufio.NewReader(r)
	var entries []Entry
	for lineNo := 1; ; lineNo++ {
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read legacy store: %w", err)
		}
		if line == "" && errors.Is(err, io.EOF) {
			return entries, nil
		}

		text := strings.TrimSuffix(line, "\n")
		if strings.TrimSpace(text) != "" {
			entry, perr := parseLegacyLine(text)
			if perr != nil {
				return nil, &SyntaxError{Format: FormatLegacy, Line: lineNo, Msg: perr.Error()}
			}
			entries = append(entries, entry)
		}

		if errors.Is(err, io.EOF) {
			return entries, nil
		}
	}
}

func parseLegacyLine(text string) (Entry, error) {
	sp := strings.IndexByte(text, ' ')
	if sp < 0 {
		return Entry{}, fmt.Errorf("expected \"<identity> <name>\", got %q", text)
	}
	digits, name := text[:sp], text[sp+1:]
	if digits == "" || strings.IndexFunc(digits, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return Entry{}, fmt.Errorf("invalid identity %q", digits)
	}
	id, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("invalid identity %q: %w", digits, err)
	}
	if name == "" {
		return Entry{}, fmt.Errorf("missing name for identity %d", id)
	}
	if strings.ContainsRune(name, '\r') {
		return Entry{}, fmt.Errorf("carriage return in name %q (CRLF line endings?)", name)
	}
	return Entry{Name: name, ID: ident.Identity(id)}, nil
}

// Encode implements Codec.
func (Legacy) Encode(w io.Writer, entries []Entry) error {
	bw := bufio.NewWriter(w)
	for _, e := range entries {
		if e.Name == "" {
			return fmt.Errorf("legacy store: empty name for identity %d", e.ID)
		}
		if strings.ContainsAny(e.Name, "\n\r\x00") {
			return fmt.Errorf("legacy store: name %q cannot be represented", e.Name)
		}
		if _, err := fmt.Fprintf(bw, "%d %s\n", uint64(e.ID), e.Name); err != nil {
			return err
		}
	}
	return bw.Flush()
}
