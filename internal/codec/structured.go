package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/roach88/symslash/internal/ident"
)

// Structured is the JSON store format:
//
//	{
//	  "symbols": [
//	    {"name": "alloc", "hash": 0}
//	  ]
//	}
//
// The document has no append primitive and is always written whole.
type Structured struct{}

type document struct {
	Symbols []record `json:"symbols"`
}

// record uses pointers so that missing fields can be told apart from zero
// values on decode.
type record struct {
	Name *string `json:"name"`
	Hash *uint64 `json:"hash"`
}

type outDocument struct {
	Symbols []outRecord `json:"symbols"`
}

type outRecord struct {
	Name string `json:"name"`
	Hash uint64 `json:"hash"`
}

// Format implements Codec.
func (Structured) Format() Format { return FormatStructured }

// Appends implements Codec.
func (Structured) Appends() bool { return false }

// Decode implements Codec. Empty input and a missing or null symbols list
// both decode to an empty store.
func (Structured) Decode(r io.Reader) ([]Entry, error) {
	dec := json.NewDecoder(r)
	var doc document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, &SyntaxError{Format: FormatStructured, Msg: "invalid document", Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &SyntaxError{Format: FormatStructured, Msg: "unexpected data after document"}
	}

	entries := make([]Entry, 0, len(doc.Symbols))
	for i, rec := range doc.Symbols {
		if rec.Name == nil || *rec.Name == "" {
			return nil, &SyntaxError{Format: FormatStructured, Msg: fmt.Sprintf("symbols[%d]: missing name", i)}
		}
		if rec.Hash == nil {
			return nil, &SyntaxError{Format: FormatStructured, Msg: fmt.Sprintf("symbols[%d]: missing hash for %q", i, *rec.Name)}
		}
		entries = append(entries, Entry{Name: *rec.Name, ID: ident.Identity(*rec.Hash)})
	}
	return entries, nil
}

// Encode implements Codec. Names must be valid UTF-8; JSON would otherwise
// replace the offending bytes and the name would not round-trip.
func (Structured) Encode(w io.Writer, entries []Entry) error {
	doc := outDocument{Symbols: make([]outRecord, 0, len(entries))}
	for _, e := range entries {
		if e.Name == "" {
			return fmt.Errorf("structured store: empty name for identity %d", e.ID)
		}
		if !utf8.ValidString(e.Name) {
			return fmt.Errorf("structured store: name %q is not valid UTF-8", e.Name)
		}
		doc.Symbols = append(doc.Symbols, outRecord{Name: e.Name, Hash: uint64(e.ID)})
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
