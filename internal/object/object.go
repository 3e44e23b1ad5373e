package object

import (
	"debug/elf"
	"io/fs"
)

// Symbol is one entry of a dynamic symbol table.
//
// Assigning Name renames the symbol in the next WriteFile.
type Symbol struct {
	// Index is the position in the dynamic symbol table (never 0).
	Index int

	// Name is the current, possibly reassigned, symbol name.
	Name string

	// Value is st_value; zero for undefined imports.
	Value uint64

	// Section is st_shndx.
	Section elf.SectionIndex

	orig string
}

// Original returns the name the symbol had when the object was read.
func (s *Symbol) Original() string { return s.orig }

// Renamed reports whether Name differs from the name that was read.
func (s *Symbol) Renamed() bool { return s.Name != s.orig }

// Binary is the capability the rewrite driver needs from an object file.
type Binary interface {
	// DynamicSymbols returns the dynamic symbol table without the null
	// entry. The returned symbols are owned by the Binary; renaming them
	// affects WriteFile.
	DynamicSymbols() []*Symbol

	// StripStatic marks the static symbol table for removal and reports
	// whether the object has one.
	StripStatic() bool

	// WriteFile serializes the object, with renames and stripping applied,
	// to path with permission bits perm.
	WriteFile(path string, perm fs.FileMode) error
}

// Opener parses the object at path.
type Opener func(path string) (Binary, error)

// OpenBinary is the Opener for ELF files.
func OpenBinary(path string) (Binary, error) {
	f, err := Open(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}
