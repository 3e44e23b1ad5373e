package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/symslash/internal/codec"
	"github.com/roach88/symslash/internal/ident"
)

// Scenario defines an end-to-end run over fixture objects.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Format is the store format. Empty means auto.
	Format string `yaml:"format,omitempty"`

	// Prefix of opaque identifiers. Empty means the default prefix.
	Prefix string `yaml:"prefix,omitempty"`

	// KeepStatic leaves static symbol tables in hashed objects.
	KeepStatic bool `yaml:"keep_static,omitempty"`

	// Store is the initial store file content. No file exists before the
	// first step when empty.
	Store string `yaml:"store,omitempty"`

	// RunID is the fixed driver run ID. Defaults to "test-run-default".
	RunID string `yaml:"run_id,omitempty"`

	// Objects are the fixture shared objects, built before the first step.
	Objects []ObjectSpec `yaml:"objects"`

	// Steps run in order; each names exactly one operation.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final store and objects.
	Assertions []Assertion `yaml:"assertions"`
}

// ObjectSpec describes a fixture shared object.
type ObjectSpec struct {
	Name        string       `yaml:"name"`
	Class       int          `yaml:"class,omitempty"` // 32 or 64, default 64
	BigEndian   bool         `yaml:"big_endian,omitempty"`
	Soname      string       `yaml:"soname,omitempty"`
	Needed      []string     `yaml:"needed,omitempty"`
	Symbols     []SymbolSpec `yaml:"symbols"`
	Static      []string     `yaml:"static,omitempty"`
	Version     string       `yaml:"version,omitempty"`
	NeedVersion string       `yaml:"need_version,omitempty"`
	DynstrSlack int          `yaml:"dynstr_slack,omitempty"`
	NoNote      bool         `yaml:"no_note,omitempty"`
}

// SymbolSpec is a dynamic symbol. A zero value makes it an undefined import.
type SymbolSpec struct {
	Name  string `yaml:"name"`
	Value uint64 `yaml:"value,omitempty"`
}

// Step is one operation. Exactly one of Insert, Hash and Dehash is set.
type Step struct {
	// Insert collects the named objects into the store and commits.
	Insert []string `yaml:"insert,omitempty"`

	// Hash rewrites the named object with opaque identifiers.
	Hash string `yaml:"hash,omitempty"`

	// Dehash rewrites the named object back to original names.
	Dehash string `yaml:"dehash,omitempty"`

	// ExpectError makes the step pass only if it fails with an error
	// containing this text.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Step operation names.
const (
	OpInsert = "insert"
	OpHash   = "hash"
	OpDehash = "dehash"
)

// Op returns the operation name of s, or "" when none or several are set.
func (s Step) Op() string {
	var ops []string
	if len(s.Insert) > 0 {
		ops = append(ops, OpInsert)
	}
	if s.Hash != "" {
		ops = append(ops, OpHash)
	}
	if s.Dehash != "" {
		ops = append(ops, OpDehash)
	}
	if len(ops) != 1 {
		return ""
	}
	return ops[0]
}

// Objects returns the object names s operates on.
func (s Step) Objects() []string {
	switch s.Op() {
	case OpInsert:
		return s.Insert
	case OpHash:
		return []string{s.Hash}
	case OpDehash:
		return []string{s.Dehash}
	}
	return nil
}

// Assertion validates the final store or an object.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Object names the fixture (symbols, resolves, unresolved, static_table).
	Object string `yaml:"object,omitempty"`

	// Names are symbol names (symbols, resolves, unresolved).
	Names []string `yaml:"names,omitempty"`

	// Entries is the exact expected store content (store_entries).
	Entries []EntrySpec `yaml:"entries,omitempty"`

	// Present is the expected static table presence (static_table).
	Present *bool `yaml:"present,omitempty"`
}

// EntrySpec is an expected store entry.
type EntrySpec struct {
	ID   uint64 `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// Assertion type constants.
const (
	AssertStoreEntries = "store_entries"
	AssertSymbols      = "symbols"
	AssertResolves     = "resolves"
	AssertUnresolved   = "unresolved"
	AssertStaticTable  = "static_table"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if _, err := codec.ParseFormat(s.Format); err != nil {
		return err
	}
	if s.Prefix != "" {
		if _, err := ident.ParsePrefix(s.Prefix); err != nil {
			return err
		}
	}
	if len(s.Objects) == 0 {
		return fmt.Errorf("objects list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	known := make(map[string]bool, len(s.Objects))
	for i, o := range s.Objects {
		if o.Name == "" {
			return fmt.Errorf("objects[%d]: name is required", i)
		}
		if known[o.Name] {
			return fmt.Errorf("objects[%d]: duplicate name %q", i, o.Name)
		}
		if o.Class != 0 && o.Class != 32 && o.Class != 64 {
			return fmt.Errorf("objects[%d]: class must be 32 or 64, got %d", i, o.Class)
		}
		if o.DynstrSlack < 0 {
			return fmt.Errorf("objects[%d]: dynstr_slack must be non-negative", i)
		}
		known[o.Name] = true
	}

	for i, step := range s.Steps {
		if step.Op() == "" {
			return fmt.Errorf("steps[%d]: exactly one of insert, hash, dehash is required", i)
		}
		for _, name := range step.Objects() {
			if !known[name] {
				return fmt.Errorf("steps[%d]: unknown object %q", i, name)
			}
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], known); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion, known map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertStoreEntries:
		return nil
	case AssertSymbols, AssertResolves, AssertUnresolved:
		if len(a.Names) == 0 && a.Type != AssertSymbols {
			return fmt.Errorf("assertions[%d]: names list is required for %s", index, a.Type)
		}
	case AssertStaticTable:
		if a.Present == nil {
			return fmt.Errorf("assertions[%d]: present is required for static_table", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	if a.Object == "" {
		return fmt.Errorf("assertions[%d]: object is required for %s", index, a.Type)
	}
	if !known[a.Object] {
		return fmt.Errorf("assertions[%d]: unknown object %q", index, a.Object)
	}
	return nil
}
