package object

import (
	"bytes"
	"debug/elf"
	"io/fs"
	"os"

	"github.com/roach88/symslash/internal/fileutil"
)

// ELF is a parsed ELF object whose dynamic symbols can be renamed.
type ELF struct {
	path   string
	data   []byte
	layout layout
	shdrs  []shdr

	dynsym int
	dynstr int
	syms   []*Symbol

	symtab bool
	strip  bool
}

// Open reads and parses the ELF object at path.
func Open(path string) (*ELF, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, readError(path, err)
	}
	e, err := parse(data)
	if err != nil {
		return nil, readError(path, err)
	}
	e.path = path
	return e, nil
}

func parse(data []byte) (*ELF, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	l, err := parseLayout(data, f)
	if err != nil {
		return nil, err
	}

	e := &ELF{data: data, layout: l, dynsym: -1, dynstr: -1}
	e.shdrs = make([]shdr, l.shnum)
	for i := range e.shdrs {
		e.shdrs[i] = l.readShdr(data, i)
		switch e.shdrs[i].typ {
		case elf.SHT_DYNSYM:
			if e.dynsym < 0 {
				e.dynsym = i
			}
		case elf.SHT_SYMTAB:
			e.symtab = true
		}
	}
	if e.dynsym < 0 {
		return nil, ErrNoDynsym
	}

	link := int(e.shdrs[e.dynsym].link)
	if link <= 0 || link >= len(e.shdrs) || e.shdrs[link].typ != elf.SHT_STRTAB {
		return nil, malformed("dynamic symbol table is not linked to a string table")
	}
	e.dynstr = link

	if err := e.readSymbols(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *ELF) readSymbols() error {
	symtab, err := section(e.data, e.shdrs[e.dynsym])
	if err != nil {
		return err
	}
	strtab, err := section(e.data, e.shdrs[e.dynstr])
	if err != nil {
		return err
	}

	size := e.layout.symSize()
	if len(symtab)%size != 0 {
		return malformed("dynamic symbol table size %d is not a multiple of %d", len(symtab), size)
	}
	n := len(symtab) / size
	if n == 0 {
		return nil
	}
	e.syms = make([]*Symbol, 0, n-1)
	for i := 1; i < n; i++ {
		b := symtab[i*size:]
		name, ok := cstring(strtab, e.layout.order.Uint32(b))
		if !ok {
			return malformed("symbol %d has name offset outside .dynstr", i)
		}
		e.syms = append(e.syms, &Symbol{
			Index:   i,
			Name:    name,
			Value:   e.layout.symValue(b),
			Section: e.layout.symShndx(b),
			orig:    name,
		})
	}
	return nil
}

// Path returns the file the object was read from.
func (e *ELF) Path() string { return e.path }

// Class returns the ELF class of the object.
func (e *ELF) Class() elf.Class { return e.layout.class }

// DynamicSymbols implements Binary.
func (e *ELF) DynamicSymbols() []*Symbol { return e.syms }

// StripStatic implements Binary.
func (e *ELF) StripStatic() bool {
	e.strip = true
	return e.symtab
}

// WriteFile implements Binary.
func (e *ELF) WriteFile(path string, perm fs.FileMode) error {
	out, err := e.Bytes()
	if err != nil {
		return writeError(path, err)
	}
	if err := fileutil.WriteAtomic(path, out, perm); err != nil {
		return writeError(path, err)
	}
	return nil
}

// Bytes returns the rewritten object. The receiver is not modified, so
// Bytes may be called repeatedly.
func (e *ELF) Bytes() ([]byte, error) {
	w := &rewriter{
		layout: e.layout,
		out:    bytes.Clone(e.data),
		shdrs:  append([]shdr(nil), e.shdrs...),
		dynsym: e.dynsym,
		dynstr: e.dynstr,
		syms:   e.syms,
	}

	if e.renamed() {
		if err := w.rebuildDynstr(); err != nil {
			return nil, err
		}
		if err := w.rebuildHashes(); err != nil {
			return nil, err
		}
	}
	if e.strip && e.symtab {
		if err := w.stripStatic(); err != nil {
			return nil, err
		}
	}
	return w.out, nil
}

func (e *ELF) renamed() bool {
	for _, s := range e.syms {
		if s.Renamed() {
			return true
		}
	}
	return false
}

// rewriter carries the output buffer through one Bytes call.
type rewriter struct {
	layout layout
	out    []byte
	shdrs  []shdr
	dynsym int
	dynstr int
	syms   []*Symbol
}

// cstring returns the NUL-terminated string at off in strtab.
func cstring(strtab []byte, off uint32) (string, bool) {
	if uint64(off) >= uint64(len(strtab)) {
		return "", off == 0 && len(strtab) == 0
	}
	end := bytes.IndexByte(strtab[off:], 0)
	if end < 0 {
		return "", false
	}
	return string(strtab[off : int(off)+end]), true
}
