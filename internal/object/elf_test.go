package object

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/symslash/internal/testutil"
)

func demoSpec() testutil.ELFSpec {
	return testutil.ELFSpec{
		Soname:      "libdemo.so.1",
		Needed:      []string{"libc.so.6"},
		NeedVersion: "GLIBC_2.2.5",
		Version:     "DEMO_1.0",
		Symbols: []testutil.Symbol{
			{Name: "alloc", Value: 0x1000},
			{Name: "free", Value: 0x2000},
			{Name: "__stub"},
			{Name: "puts"},
		},
		Static: []string{"alloc", "free", "local_helper"},
	}
}

func writeFixture(t *testing.T, spec testutil.ELFSpec) string {
	t.Helper()
	return testutil.WriteELF(t, t.TempDir(), "libdemo.so", spec)
}

func symbolNames(t *testing.T, f *elf.File) []string {
	t.Helper()
	syms, err := f.DynamicSymbols()
	require.NoError(t, err)
	names := make([]string, len(syms))
	for i, s := range syms {
		names[i] = s.Name
	}
	return names
}

func renameAll(e *ELF, names map[string]string) {
	for _, s := range e.DynamicSymbols() {
		if n, ok := names[s.Name]; ok {
			s.Name = n
		}
	}
}

func TestOpen_DynamicSymbols(t *testing.T) {
	path := writeFixture(t, demoSpec())

	e, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, path, e.Path())
	assert.Equal(t, elf.ELFCLASS64, e.Class())

	syms := e.DynamicSymbols()
	require.Len(t, syms, 4)

	// Undefined symbols come first in the fixture's .dynsym.
	assert.Equal(t, "__stub", syms[0].Name)
	assert.Equal(t, uint64(0), syms[0].Value)
	assert.Equal(t, elf.SHN_UNDEF, syms[0].Section)
	assert.Equal(t, "alloc", syms[2].Name)
	assert.Equal(t, uint64(0x1000), syms[2].Value)
	assert.Equal(t, "free", syms[3].Name)

	for i, s := range syms {
		assert.Equal(t, i+1, s.Index)
		assert.Equal(t, s.Name, s.Original())
		assert.False(t, s.Renamed())
	}

	syms[2].Name = "symslash0"
	assert.True(t, syms[2].Renamed())
	assert.Equal(t, "alloc", syms[2].Original())
}

func TestOpen_Errors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := Open(filepath.Join(dir, "nope.so"))
		require.Error(t, err)
		assert.True(t, IsReadError(err))
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})

	t.Run("not an ELF file", func(t *testing.T) {
		path := filepath.Join(dir, "text.so")
		require.NoError(t, os.WriteFile(path, []byte("just some text\n"), 0o644))
		_, err := Open(path)
		require.Error(t, err)
		assert.True(t, IsReadError(err))
		assert.Contains(t, err.Error(), "cannot read object "+path)
	})

	t.Run("no dynamic symbol table", func(t *testing.T) {
		data := testutil.BuildELF(demoSpec())
		retypeSection(t, data, ".dynsym", elf.SHT_PROGBITS)
		path := filepath.Join(dir, "nodyn.so")
		require.NoError(t, os.WriteFile(path, data, 0o644))

		_, err := Open(path)
		require.Error(t, err)
		assert.True(t, IsReadError(err))
		assert.ErrorIs(t, err, ErrNoDynsym)
	})

	t.Run("OpenBinary wraps Open", func(t *testing.T) {
		_, err := OpenBinary(filepath.Join(dir, "nope.so"))
		assert.True(t, IsReadError(err))
	})
}

// retypeSection overwrites sh_type of the named section in an ELF64
// little-endian image.
func retypeSection(t *testing.T, data []byte, name string, typ elf.SectionType) {
	t.Helper()
	f, err := elf.NewFile(bytes.NewReader(data))
	require.NoError(t, err)
	shoff := binary.LittleEndian.Uint64(data[40:])
	for i, s := range f.Sections {
		if s.Name == name {
			binary.LittleEndian.PutUint32(data[shoff+uint64(i)*64+4:], uint32(typ))
			return
		}
	}
	t.Fatalf("section %s not found", name)
}

func TestBytes_Unchanged(t *testing.T) {
	spec := demoSpec()
	path := writeFixture(t, spec)
	e, err := Open(path)
	require.NoError(t, err)

	out, err := e.Bytes()
	require.NoError(t, err)
	assert.Equal(t, testutil.BuildELF(spec), out)
}

func TestWriteFile_RenameInPlace(t *testing.T) {
	spec := demoSpec()
	spec.DynstrSlack = 64
	path := writeFixture(t, spec)

	e, err := Open(path)
	require.NoError(t, err)
	renameAll(e, map[string]string{"alloc": "symslash0", "free": "symslash1"})

	out := filepath.Join(t.TempDir(), "out.so")
	require.NoError(t, e.WriteFile(out, 0o755))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	f, err := elf.NewFile(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, []string{"__stub", "puts", "symslash0", "symslash1"}, symbolNames(t, f))

	// No new segment is needed when the table fits.
	orig, err := elf.NewFile(bytes.NewReader(testutil.BuildELF(spec)))
	require.NoError(t, err)
	assert.Len(t, f.Progs, len(orig.Progs))
	assert.Equal(t, elf.PT_NOTE, f.Progs[2].Type)
	assert.Equal(t, orig.Section(".dynstr").Offset, f.Section(".dynstr").Offset)

	soname, err := f.DynString(elf.DT_SONAME)
	require.NoError(t, err)
	assert.Equal(t, []string{"libdemo.so.1"}, soname)
	needed, err := f.ImportedLibraries()
	require.NoError(t, err)
	assert.Equal(t, []string{"libc.so.6"}, needed)

	imports, err := f.ImportedSymbols()
	require.NoError(t, err)
	require.Len(t, imports, 2)
	assert.Equal(t, elf.ImportedSymbol{Name: "__stub", Version: "GLIBC_2.2.5", Library: "libc.so.6"}, imports[0])

	dynstr, err := f.Section(".dynstr").Data()
	require.NoError(t, err)
	assert.False(t, bytes.Contains(dynstr, []byte("alloc")))
	assert.False(t, bytes.Contains(dynstr, []byte("free")))
	assert.True(t, bytes.Contains(dynstr, []byte("DEMO_1.0\x00")))

	assertResolves(t, data, map[string]int{"symslash0": 3, "symslash1": 4})
	assertUnresolved(t, data, "alloc", "free")
}

func TestWriteFile_RelocatesDynstr(t *testing.T) {
	spec := demoSpec()
	path := writeFixture(t, spec)

	e, err := Open(path)
	require.NoError(t, err)
	long := "a_replacement_name_that_cannot_fit_in_the_original_string_table"
	renameAll(e, map[string]string{"alloc": long, "free": "symslash1"})

	data, err := e.Bytes()
	require.NoError(t, err)
	f, err := elf.NewFile(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, []string{"__stub", "puts", long, "symslash1"}, symbolNames(t, f))

	var loads []*elf.Prog
	for _, p := range f.Progs {
		assert.NotEqual(t, elf.PT_NOTE, p.Type)
		if p.Type == elf.PT_LOAD {
			loads = append(loads, p)
		}
	}
	require.Len(t, loads, 2)
	seg := loads[1]
	sec := f.Section(".dynstr")
	assert.Equal(t, elf.PF_R, seg.Flags)
	assert.Equal(t, sec.Offset, seg.Off)
	assert.Equal(t, sec.Addr, seg.Vaddr)
	assert.Equal(t, sec.Size, seg.Filesz)
	assert.Zero(t, seg.Vaddr%0x1000)
	assert.Zero(t, seg.Off%0x1000)
	assert.GreaterOrEqual(t, seg.Vaddr, loads[0].Vaddr+loads[0].Memsz)

	strtab, err := f.DynValue(elf.DT_STRTAB)
	require.NoError(t, err)
	assert.Equal(t, []uint64{sec.Addr}, strtab)
	strsz, err := f.DynValue(elf.DT_STRSZ)
	require.NoError(t, err)
	assert.Equal(t, []uint64{sec.Size}, strsz)

	soname, err := f.DynString(elf.DT_SONAME)
	require.NoError(t, err)
	assert.Equal(t, []string{"libdemo.so.1"}, soname)
	imports, err := f.ImportedSymbols()
	require.NoError(t, err)
	require.Len(t, imports, 2)
	assert.Equal(t, "libc.so.6", imports[1].Library)
	assert.Equal(t, "GLIBC_2.2.5", imports[1].Version)

	// The old table is zeroed.
	orig, err := elf.NewFile(bytes.NewReader(testutil.BuildELF(spec)))
	require.NoError(t, err)
	old := orig.Section(".dynstr")
	assert.Equal(t, make([]byte, old.Size), data[old.Offset:old.Offset+old.Size])
	dynstr, err := sec.Data()
	require.NoError(t, err)
	assert.False(t, bytes.Contains(dynstr, []byte("alloc")))

	assertResolves(t, data, map[string]int{long: 3, "symslash1": 4})
}

func TestWriteFile_NoRoom(t *testing.T) {
	spec := demoSpec()
	spec.NoNote = true
	path := writeFixture(t, spec)

	e, err := Open(path)
	require.NoError(t, err)
	renameAll(e, map[string]string{"alloc": "a_name_much_longer_than_the_available_string_table_space"})

	out := filepath.Join(t.TempDir(), "out.so")
	err = e.WriteFile(out, 0o755)
	require.Error(t, err)
	assert.True(t, IsWriteError(err))
	assert.ErrorIs(t, err, ErrNoRoom)
	assert.NoFileExists(t, out)
}

func TestWriteFile_RejectsNUL(t *testing.T) {
	spec := demoSpec()
	spec.DynstrSlack = 64
	e, err := Open(writeFixture(t, spec))
	require.NoError(t, err)
	renameAll(e, map[string]string{"alloc": "bad\x00name"})

	_, err = e.Bytes()
	assert.Error(t, err)
}

func TestWriteFile_Perm(t *testing.T) {
	e, err := Open(writeFixture(t, demoSpec()))
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "out.so")
	require.NoError(t, e.WriteFile(out, 0o750))
	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o750), info.Mode().Perm())
}

func TestStripStatic(t *testing.T) {
	spec := demoSpec()
	spec.DynstrSlack = 64
	e, err := Open(writeFixture(t, spec))
	require.NoError(t, err)
	renameAll(e, map[string]string{"alloc": "symslash0", "free": "symslash1"})
	assert.True(t, e.StripStatic())

	data, err := e.Bytes()
	require.NoError(t, err)
	f, err := elf.NewFile(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Nil(t, f.Section(".symtab"))
	assert.Nil(t, f.Section(".strtab"))
	_, err = f.Symbols()
	assert.ErrorIs(t, err, elf.ErrNoSymbols)

	// Section names still resolve through the renumbered .shstrtab.
	require.NotNil(t, f.Section(".dynsym"))
	require.NotNil(t, f.Section(".dynstr"))
	assert.Equal(t, ".shstrtab", f.Sections[len(f.Sections)-1].Name)

	// Links were renumbered.
	assert.Equal(t, ".dynstr", f.Sections[f.Section(".dynsym").Link].Name)
	assert.Equal(t, ".dynsym", f.Sections[f.Section(".gnu.hash").Link].Name)

	syms, err := f.DynamicSymbols()
	require.NoError(t, err)
	assert.Equal(t, ".text", f.Sections[syms[2].Section].Name)

	for _, name := range []string{"alloc", "free", "local_helper"} {
		assert.False(t, bytes.Contains(data, []byte(name+"\x00")), name)
	}
	assertResolves(t, data, map[string]int{"symslash0": 3, "symslash1": 4})
}

func TestStripStatic_NoStaticTable(t *testing.T) {
	spec := demoSpec()
	spec.Static = nil
	e, err := Open(writeFixture(t, spec))
	require.NoError(t, err)

	assert.False(t, e.StripStatic())
	out, err := e.Bytes()
	require.NoError(t, err)
	assert.Equal(t, testutil.BuildELF(spec), out)
}

func TestWriteFile_ELF32BigEndian(t *testing.T) {
	spec := demoSpec()
	spec.Class = elf.ELFCLASS32
	spec.Order = binary.BigEndian
	e, err := Open(writeFixture(t, spec))
	require.NoError(t, err)
	assert.Equal(t, elf.ELFCLASS32, e.Class())

	renameAll(e, map[string]string{"alloc": "symslash0", "free": "symslash1", "puts": "symslash2"})
	e.StripStatic()

	data, err := e.Bytes()
	require.NoError(t, err)
	f, err := elf.NewFile(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, elf.ELFCLASS32, f.Class)
	assert.Equal(t, []string{"__stub", "symslash2", "symslash0", "symslash1"}, symbolNames(t, f))
	assert.Nil(t, f.Section(".symtab"))

	needed, err := f.ImportedLibraries()
	require.NoError(t, err)
	assert.Equal(t, []string{"libc.so.6"}, needed)

	assertResolves(t, data, map[string]int{"symslash0": 3, "symslash1": 4})
	idx, ok, err := testutil.LookupSysv(data, "symslash2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, idx)
}

func TestRewrite_RoundTrip(t *testing.T) {
	spec := demoSpec()
	path := writeFixture(t, spec)

	e, err := Open(path)
	require.NoError(t, err)
	renameAll(e, map[string]string{"alloc": "symslash0", "free": "symslash1"})
	hashed := filepath.Join(t.TempDir(), "hashed.so")
	require.NoError(t, e.WriteFile(hashed, 0o755))

	h, err := Open(hashed)
	require.NoError(t, err)
	renameAll(h, map[string]string{"symslash0": "alloc", "symslash1": "free"})
	restored := filepath.Join(t.TempDir(), "restored.so")
	require.NoError(t, h.WriteFile(restored, 0o755))

	data, err := os.ReadFile(restored)
	require.NoError(t, err)
	f, err := elf.NewFile(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, []string{"__stub", "puts", "alloc", "free"}, symbolNames(t, f))
	assertResolves(t, data, map[string]int{"alloc": 3, "free": 4})
}

func TestHashFunctions(t *testing.T) {
	assert.Equal(t, uint32(0x077905a6), elfHash("printf"))
	assert.Equal(t, uint32(0x0006cf04), elfHash("exit"))
	assert.Equal(t, uint32(0x156b2bb8), gnuHash("printf"))
	assert.Equal(t, uint32(0x7c967e3f), gnuHash("exit"))
	assert.Equal(t, uint32(5381), gnuHash(""))

	for _, name := range []string{"", "alloc", "symslash_abcdefgh", "a_rather_long_symbol_name_for_overflow"} {
		assert.Equal(t, testutil.SysvHash(name), elfHash(name), name)
		assert.Equal(t, testutil.GNUHash(name), gnuHash(name), name)
	}
}

func assertResolves(t *testing.T, data []byte, want map[string]int) {
	t.Helper()
	for name, index := range want {
		idx, ok, err := testutil.LookupGNU(data, name)
		require.NoError(t, err)
		assert.True(t, ok, "gnu hash lookup of %s", name)
		assert.Equal(t, index, idx, "gnu hash index of %s", name)

		idx, ok, err = testutil.LookupSysv(data, name)
		require.NoError(t, err)
		assert.True(t, ok, "sysv hash lookup of %s", name)
		assert.Equal(t, index, idx, "sysv hash index of %s", name)
	}
}

func assertUnresolved(t *testing.T, data []byte, names ...string) {
	t.Helper()
	for _, name := range names {
		_, ok, err := testutil.LookupGNU(data, name)
		require.NoError(t, err)
		assert.False(t, ok, "gnu hash lookup of %s", name)
		_, ok, err = testutil.LookupSysv(data, name)
		require.NoError(t, err)
		assert.False(t, ok, "sysv hash lookup of %s", name)
	}
}
