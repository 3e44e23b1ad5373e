package testutil

import (
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// Symbol is a dynamic symbol of a fixture object. A zero Value makes the
// symbol an undefined import.
type Symbol struct {
	Name  string
	Value uint64
}

// ELFSpec describes a fixture shared object.
//
// The zero value is a little-endian ELF64 object with no symbols.
type ELFSpec struct {
	Class elf.Class        // ELFCLASS64 when zero
	Order binary.ByteOrder // little-endian when nil

	Soname string
	Needed []string

	// Symbols populate .dynsym. Undefined symbols are placed first, as a
	// linker emitting .gnu.hash does; relative order is otherwise kept.
	Symbols []Symbol

	// Static names populate .symtab and .strtab. No static table is
	// emitted when empty.
	Static []string

	// Version adds .gnu.version_d defining this version for every defined
	// symbol. When Needed is also set, undefined symbols require
	// NeedVersion from Needed[0] through .gnu.version_r.
	Version     string
	NeedVersion string

	// DynstrSlack appends unused bytes to .dynstr.
	DynstrSlack int

	NoNote     bool
	NoSysvHash bool
	NoGnuHash  bool
}

// WriteELF builds spec and writes it to dir/name with mode 0755.
func WriteELF(t testing.TB, dir, name string, spec ELFSpec) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, BuildELF(spec), 0o755); err != nil {
		t.Fatalf("write fixture %s: %v", path, err)
	}
	return path
}

// OrderedSymbols returns spec.Symbols in .dynsym order (index 1 first).
func (spec ELFSpec) OrderedSymbols() []Symbol {
	var undef, def []Symbol
	for _, s := range spec.Symbols {
		if s.Value == 0 {
			undef = append(undef, s)
		} else {
			def = append(def, s)
		}
	}
	return append(undef, def...)
}

type fixtureSection struct {
	name      string
	typ       elf.SectionType
	flags     elf.SectionFlag
	link      string
	info      uint32
	align     uint64
	entsize   uint64
	data      []byte
	offset    uint64
	addr      uint64
	nameIndex uint32
}

type builder struct {
	spec  ELFSpec
	o     binary.ByteOrder
	is64  bool
	word  int
	secs  []*fixtureSection
	index map[string]int
}

// BuildELF returns the bytes of the object described by spec. The result
// is parseable by debug/elf and structurally valid for the dynamic linker,
// although its code is not executable.
func BuildELF(spec ELFSpec) []byte {
	if spec.Class == elf.ELFCLASSNONE {
		spec.Class = elf.ELFCLASS64
	}
	if spec.Order == nil {
		spec.Order = binary.LittleEndian
	}
	b := &builder{
		spec:  spec,
		o:     spec.Order,
		is64:  spec.Class == elf.ELFCLASS64,
		index: map[string]int{},
	}
	b.word = 4
	if b.is64 {
		b.word = 8
	}
	return b.build()
}

func (b *builder) add(s *fixtureSection) *fixtureSection {
	b.index[s.name] = len(b.secs)
	b.secs = append(b.secs, s)
	return s
}

func (b *builder) build() []byte {
	spec := b.spec
	syms := spec.OrderedSymbols()
	undef := 0
	for _, s := range syms {
		if s.Value == 0 {
			undef++
		}
	}
	needs := spec.NeedVersion != "" && len(spec.Needed) > 0
	versioned := spec.Version != "" || needs

	// Section list, in file order.
	b.add(&fixtureSection{name: ""})
	if !spec.NoNote {
		b.add(&fixtureSection{name: ".note.gnu.build-id", typ: elf.SHT_NOTE, flags: elf.SHF_ALLOC, align: 4})
	}
	if !spec.NoSysvHash {
		b.add(&fixtureSection{name: ".hash", typ: elf.SHT_HASH, flags: elf.SHF_ALLOC, link: ".dynsym", align: 4, entsize: 4})
	}
	if !spec.NoGnuHash {
		b.add(&fixtureSection{name: ".gnu.hash", typ: elf.SHT_GNU_HASH, flags: elf.SHF_ALLOC, link: ".dynsym", align: uint64(b.word)})
	}
	dynsym := b.add(&fixtureSection{name: ".dynsym", typ: elf.SHT_DYNSYM, flags: elf.SHF_ALLOC, link: ".dynstr", info: 1, align: uint64(b.word), entsize: uint64(b.symSize())})
	dynstr := b.add(&fixtureSection{name: ".dynstr", typ: elf.SHT_STRTAB, flags: elf.SHF_ALLOC, align: 1})
	if versioned {
		b.add(&fixtureSection{name: ".gnu.version", typ: elf.SHT_GNU_VERSYM, flags: elf.SHF_ALLOC, link: ".dynsym", align: 2, entsize: 2})
	}
	if spec.Version != "" {
		b.add(&fixtureSection{name: ".gnu.version_d", typ: elf.SHT_GNU_VERDEF, flags: elf.SHF_ALLOC, link: ".dynstr", info: 2, align: uint64(b.word)})
	}
	if needs {
		b.add(&fixtureSection{name: ".gnu.version_r", typ: elf.SHT_GNU_VERNEED, flags: elf.SHF_ALLOC, link: ".dynstr", info: 1, align: uint64(b.word)})
	}
	text := b.add(&fixtureSection{name: ".text", typ: elf.SHT_PROGBITS, flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, align: 16})
	dynamic := b.add(&fixtureSection{name: ".dynamic", typ: elf.SHT_DYNAMIC, flags: elf.SHF_ALLOC | elf.SHF_WRITE, link: ".dynstr", align: uint64(b.word), entsize: uint64(2 * b.word)})
	if len(spec.Static) > 0 {
		b.add(&fixtureSection{name: ".symtab", typ: elf.SHT_SYMTAB, link: ".strtab", info: 1, align: uint64(b.word), entsize: uint64(b.symSize())})
		b.add(&fixtureSection{name: ".strtab", typ: elf.SHT_STRTAB, align: 1})
	}
	shstrtab := b.add(&fixtureSection{name: ".shstrtab", typ: elf.SHT_STRTAB, align: 1})

	// .dynstr
	strs := newStrtab()
	for _, n := range spec.Needed {
		strs.add(n)
	}
	if spec.Soname != "" {
		strs.add(spec.Soname)
	}
	nameOff := make([]uint32, len(syms))
	for i, s := range syms {
		nameOff[i] = strs.add(s.Name)
	}
	if spec.Version != "" {
		strs.add(b.baseVersionName())
		strs.add(spec.Version)
	}
	if spec.NeedVersion != "" {
		strs.add(spec.NeedVersion)
	}
	dynstr.data = append(strs.buf, make([]byte, spec.DynstrSlack)...)

	// .text, sized to cover every symbol value.
	text.data = make([]byte, 0x40)
	for i := range text.data {
		text.data[i] = 0xc3
	}

	// .dynsym
	textIndex := uint16(b.index[".text"])
	dynsym.data = make([]byte, (len(syms)+1)*b.symSize())
	for i, s := range syms {
		var shndx uint16
		if s.Value != 0 {
			shndx = textIndex
		}
		info := byte(elf.STB_GLOBAL)<<4 | byte(elf.STT_FUNC)
		b.putSym(dynsym.data[(i+1)*b.symSize():], nameOff[i], s.Value, info, shndx)
	}

	names := make([]string, len(syms)+1)
	for i, s := range syms {
		names[i+1] = s.Name
	}
	if i, ok := b.index[".hash"]; ok {
		b.secs[i].data = b.sysvHash(names)
	}
	if i, ok := b.index[".gnu.hash"]; ok {
		b.secs[i].data = b.gnuHash(names, 1+undef)
	}
	if i, ok := b.index[".gnu.version"]; ok {
		data := make([]byte, 2*len(names))
		for j, s := range syms {
			v := uint16(1)
			switch {
			case s.Value != 0 && spec.Version != "":
				v = 2
			case s.Value == 0 && needs:
				v = 3
			}
			b.o.PutUint16(data[2*(j+1):], v)
		}
		b.secs[i].data = data
	}
	if i, ok := b.index[".gnu.version_d"]; ok {
		b.secs[i].data = b.verdef(strs)
	}
	if i, ok := b.index[".gnu.version_r"]; ok {
		b.secs[i].data = b.verneed(strs)
	}
	if i, ok := b.index[".note.gnu.build-id"]; ok {
		note := make([]byte, 12+4+8)
		b.o.PutUint32(note[0:], 4)
		b.o.PutUint32(note[4:], 8)
		b.o.PutUint32(note[8:], 3) // NT_GNU_BUILD_ID
		copy(note[12:], "GNU\x00")
		copy(note[16:], "symslash")
		b.secs[i].data = note
	}

	// .dynamic gets its final values after layout.
	tags := b.dynamicTags(strs)
	dynamic.data = make([]byte, len(tags)*2*b.word)

	// Static symbol table.
	if i, ok := b.index[".symtab"]; ok {
		st := newStrtab()
		data := make([]byte, (len(spec.Static)+1)*b.symSize())
		for j, n := range spec.Static {
			info := byte(elf.STB_GLOBAL)<<4 | byte(elf.STT_FUNC)
			b.putSym(data[(j+1)*b.symSize():], st.add(n), 0x10*uint64(j+1), info, textIndex)
		}
		b.secs[i].data = data
		b.secs[b.index[".strtab"]].data = st.buf
	}

	shstr := newStrtab()
	for _, s := range b.secs[1:] {
		s.nameIndex = shstr.add(s.name)
	}
	shstrtab.data = shstr.buf

	// Layout: headers, allocated sections mapped 1:1, then the rest.
	ehsize, phentsize, shentsize := 52, 32, 40
	if b.is64 {
		ehsize, phentsize, shentsize = 64, 56, 64
	}
	phnum := 2
	if !spec.NoNote {
		phnum = 3
	}
	off := uint64(ehsize + phnum*phentsize)
	var loadEnd uint64
	for _, s := range b.secs[1:] {
		off = alignUp(off, s.align)
		s.offset = off
		if s.flags&elf.SHF_ALLOC != 0 {
			s.addr = off
			loadEnd = off + uint64(len(s.data))
		}
		off += uint64(len(s.data))
	}
	shoff := alignUp(off, uint64(b.word))

	b.fillDynamic(dynamic.data, tags)

	out := make([]byte, shoff+uint64(len(b.secs)*shentsize))
	for _, s := range b.secs[1:] {
		copy(out[s.offset:], s.data)
	}
	b.putHeader(out, uint64(ehsize), uint16(phnum), shoff, uint16(len(b.secs)), uint16(b.index[".shstrtab"]))

	ph := out[ehsize:]
	b.putPhdr(ph, elf.PT_LOAD, elf.PF_R|elf.PF_W|elf.PF_X, 0, 0, loadEnd, 0x1000)
	b.putPhdr(ph[phentsize:], elf.PT_DYNAMIC, elf.PF_R|elf.PF_W, dynamic.offset, dynamic.addr, uint64(len(dynamic.data)), uint64(b.word))
	if !spec.NoNote {
		note := b.secs[b.index[".note.gnu.build-id"]]
		b.putPhdr(ph[2*phentsize:], elf.PT_NOTE, elf.PF_R, note.offset, note.addr, uint64(len(note.data)), 4)
	}

	for i, s := range b.secs {
		if i == 0 {
			continue
		}
		b.putShdr(out[shoff+uint64(i*shentsize):], s)
	}
	return out
}

func (b *builder) baseVersionName() string {
	if b.spec.Soname != "" {
		return b.spec.Soname
	}
	return "fixture"
}

func (b *builder) symSize() int {
	if b.is64 {
		return 24
	}
	return 16
}

func (b *builder) putSym(dst []byte, name uint32, value uint64, info byte, shndx uint16) {
	b.o.PutUint32(dst, name)
	if b.is64 {
		dst[4] = info
		b.o.PutUint16(dst[6:], shndx)
		b.o.PutUint64(dst[8:], value)
		return
	}
	b.o.PutUint32(dst[4:], uint32(value))
	dst[12] = info
	b.o.PutUint16(dst[14:], shndx)
}

func (b *builder) putWord(dst []byte, v uint64) {
	if b.is64 {
		b.o.PutUint64(dst, v)
		return
	}
	b.o.PutUint32(dst, uint32(v))
}

func (b *builder) sysvHash(names []string) []byte {
	nbucket := 3
	bucket := make([]uint32, nbucket)
	chain := make([]uint32, len(names))
	for i := 1; i < len(names); i++ {
		h := SysvHash(names[i]) % uint32(nbucket)
		chain[i] = bucket[h]
		bucket[h] = uint32(i)
	}
	data := make([]byte, 4*(2+nbucket+len(names)))
	b.o.PutUint32(data[0:], uint32(nbucket))
	b.o.PutUint32(data[4:], uint32(len(names)))
	for i, v := range append(bucket, chain...) {
		b.o.PutUint32(data[8+4*i:], v)
	}
	return data
}

// gnuHash emits a two-bucket table when the defined symbols happen to be
// grouped by bucket already, and a single bucket otherwise.
func (b *builder) gnuHash(names []string, symoffset int) []byte {
	hashed := names[symoffset:]
	nbuckets := 2
	for i := 1; i < len(hashed); i++ {
		if GNUHash(hashed[i])%2 < GNUHash(hashed[i-1])%2 {
			nbuckets = 1
			break
		}
	}
	const bloomSize, shift = 2, 6
	bits := uint32(b.word * 8)
	bloom := make([]uint64, bloomSize)
	buckets := make([]uint32, nbuckets)
	chain := make([]uint32, len(hashed))
	for i, n := range hashed {
		h := GNUHash(n)
		bloom[(h/bits)%bloomSize] |= 1<<(h%bits) | 1<<((h>>shift)%bits)
		k := h % uint32(nbuckets)
		if buckets[k] == 0 {
			buckets[k] = uint32(symoffset + i)
		}
		chain[i] = h &^ 1
		if i == len(hashed)-1 || GNUHash(hashed[i+1])%uint32(nbuckets) != k {
			chain[i] |= 1
		}
	}

	data := make([]byte, 16+bloomSize*b.word+4*nbuckets+4*len(hashed))
	b.o.PutUint32(data[0:], uint32(nbuckets))
	b.o.PutUint32(data[4:], uint32(symoffset))
	b.o.PutUint32(data[8:], bloomSize)
	b.o.PutUint32(data[12:], shift)
	p := 16
	for _, w := range bloom {
		b.putWord(data[p:], w)
		p += b.word
	}
	for _, v := range buckets {
		b.o.PutUint32(data[p:], v)
		p += 4
	}
	for _, v := range chain {
		b.o.PutUint32(data[p:], v)
		p += 4
	}
	return data
}

func (b *builder) verdef(strs *strtab) []byte {
	// Two Elf_Verdef entries, each with one Elf_Verdaux.
	data := make([]byte, 2*(20+8))
	names := []string{b.baseVersionName(), b.spec.Version}
	for i, n := range names {
		p := i * 28
		b.o.PutUint16(data[p:], 1) // vd_version
		flags := uint16(0)
		if i == 0 {
			flags = 1 // VER_FLG_BASE
		}
		b.o.PutUint16(data[p+2:], flags)
		b.o.PutUint16(data[p+4:], uint16(i+1))
		b.o.PutUint16(data[p+6:], 1)
		b.o.PutUint32(data[p+8:], SysvHash(n))
		b.o.PutUint32(data[p+12:], 20)
		if i == 0 {
			b.o.PutUint32(data[p+16:], 28)
		}
		b.o.PutUint32(data[p+20:], strs.offsets[n])
	}
	return data
}

func (b *builder) verneed(strs *strtab) []byte {
	data := make([]byte, 16+16)
	b.o.PutUint16(data[0:], 1)
	b.o.PutUint16(data[2:], 1)
	b.o.PutUint32(data[4:], strs.offsets[b.spec.Needed[0]])
	b.o.PutUint32(data[8:], 16)
	b.o.PutUint32(data[16:], SysvHash(b.spec.NeedVersion))
	b.o.PutUint16(data[22:], 3) // vna_other
	b.o.PutUint32(data[24:], strs.offsets[b.spec.NeedVersion])
	return data
}

type dynTag struct {
	tag elf.DynTag
	val uint64
	sec string // when set, val is the address of this section
}

func (b *builder) dynamicTags(strs *strtab) []dynTag {
	var tags []dynTag
	for _, n := range b.spec.Needed {
		tags = append(tags, dynTag{tag: elf.DT_NEEDED, val: uint64(strs.offsets[n])})
	}
	if b.spec.Soname != "" {
		tags = append(tags, dynTag{tag: elf.DT_SONAME, val: uint64(strs.offsets[b.spec.Soname])})
	}
	if _, ok := b.index[".hash"]; ok {
		tags = append(tags, dynTag{tag: elf.DT_HASH, sec: ".hash"})
	}
	if _, ok := b.index[".gnu.hash"]; ok {
		tags = append(tags, dynTag{tag: elf.DT_GNU_HASH, sec: ".gnu.hash"})
	}
	tags = append(tags,
		dynTag{tag: elf.DT_STRTAB, sec: ".dynstr"},
		dynTag{tag: elf.DT_SYMTAB, sec: ".dynsym"},
		dynTag{tag: elf.DT_STRSZ, val: uint64(len(b.secs[b.index[".dynstr"]].data))},
		dynTag{tag: elf.DT_SYMENT, val: uint64(b.symSize())},
	)
	if _, ok := b.index[".gnu.version"]; ok {
		tags = append(tags, dynTag{tag: elf.DT_VERSYM, sec: ".gnu.version"})
	}
	if _, ok := b.index[".gnu.version_d"]; ok {
		tags = append(tags, dynTag{tag: elf.DT_VERDEF, sec: ".gnu.version_d"}, dynTag{tag: elf.DT_VERDEFNUM, val: 2})
	}
	if _, ok := b.index[".gnu.version_r"]; ok {
		tags = append(tags, dynTag{tag: elf.DT_VERNEED, sec: ".gnu.version_r"}, dynTag{tag: elf.DT_VERNEEDNUM, val: 1})
	}
	return append(tags, dynTag{tag: elf.DT_NULL})
}

func (b *builder) fillDynamic(dst []byte, tags []dynTag) {
	for i, t := range tags {
		v := t.val
		if t.sec != "" {
			v = b.secs[b.index[t.sec]].addr
		}
		p := i * 2 * b.word
		b.putWord(dst[p:], uint64(t.tag))
		b.putWord(dst[p+b.word:], v)
	}
}

func (b *builder) putHeader(out []byte, phoff uint64, phnum uint16, shoff uint64, shnum, shstrndx uint16) {
	copy(out, "\x7fELF")
	out[elf.EI_CLASS] = byte(b.spec.Class)
	out[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	if b.o == binary.BigEndian {
		out[elf.EI_DATA] = byte(elf.ELFDATA2MSB)
	}
	out[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	b.o.PutUint16(out[16:], uint16(elf.ET_DYN))
	b.o.PutUint16(out[18:], uint16(b.machine()))
	b.o.PutUint32(out[20:], uint32(elf.EV_CURRENT))
	if b.is64 {
		b.o.PutUint64(out[32:], phoff)
		b.o.PutUint64(out[40:], shoff)
		b.o.PutUint16(out[52:], 64)
		b.o.PutUint16(out[54:], 56)
		b.o.PutUint16(out[56:], phnum)
		b.o.PutUint16(out[58:], 64)
		b.o.PutUint16(out[60:], shnum)
		b.o.PutUint16(out[62:], shstrndx)
		return
	}
	b.o.PutUint32(out[28:], uint32(phoff))
	b.o.PutUint32(out[32:], uint32(shoff))
	b.o.PutUint16(out[40:], 52)
	b.o.PutUint16(out[42:], 32)
	b.o.PutUint16(out[44:], phnum)
	b.o.PutUint16(out[46:], 40)
	b.o.PutUint16(out[48:], shnum)
	b.o.PutUint16(out[50:], shstrndx)
}

func (b *builder) machine() elf.Machine {
	switch {
	case b.is64 && b.o == binary.LittleEndian:
		return elf.EM_X86_64
	case b.is64:
		return elf.EM_PPC64
	case b.o == binary.LittleEndian:
		return elf.EM_386
	default:
		return elf.EM_PPC
	}
}

func (b *builder) putPhdr(dst []byte, typ elf.ProgType, flags elf.ProgFlag, off, vaddr, size, align uint64) {
	if b.is64 {
		b.o.PutUint32(dst[0:], uint32(typ))
		b.o.PutUint32(dst[4:], uint32(flags))
		b.o.PutUint64(dst[8:], off)
		b.o.PutUint64(dst[16:], vaddr)
		b.o.PutUint64(dst[24:], vaddr)
		b.o.PutUint64(dst[32:], size)
		b.o.PutUint64(dst[40:], size)
		b.o.PutUint64(dst[48:], align)
		return
	}
	b.o.PutUint32(dst[0:], uint32(typ))
	b.o.PutUint32(dst[4:], uint32(off))
	b.o.PutUint32(dst[8:], uint32(vaddr))
	b.o.PutUint32(dst[12:], uint32(vaddr))
	b.o.PutUint32(dst[16:], uint32(size))
	b.o.PutUint32(dst[20:], uint32(size))
	b.o.PutUint32(dst[24:], uint32(flags))
	b.o.PutUint32(dst[28:], uint32(align))
}

func (b *builder) putShdr(dst []byte, s *fixtureSection) {
	var link uint32
	if s.link != "" {
		link = uint32(b.index[s.link])
	}
	if b.is64 {
		b.o.PutUint32(dst[0:], s.nameIndex)
		b.o.PutUint32(dst[4:], uint32(s.typ))
		b.o.PutUint64(dst[8:], uint64(s.flags))
		b.o.PutUint64(dst[16:], s.addr)
		b.o.PutUint64(dst[24:], s.offset)
		b.o.PutUint64(dst[32:], uint64(len(s.data)))
		b.o.PutUint32(dst[40:], link)
		b.o.PutUint32(dst[44:], s.info)
		b.o.PutUint64(dst[48:], s.align)
		b.o.PutUint64(dst[56:], s.entsize)
		return
	}
	b.o.PutUint32(dst[0:], s.nameIndex)
	b.o.PutUint32(dst[4:], uint32(s.typ))
	b.o.PutUint32(dst[8:], uint32(s.flags))
	b.o.PutUint32(dst[12:], uint32(s.addr))
	b.o.PutUint32(dst[16:], uint32(s.offset))
	b.o.PutUint32(dst[20:], uint32(len(s.data)))
	b.o.PutUint32(dst[24:], link)
	b.o.PutUint32(dst[28:], s.info)
	b.o.PutUint32(dst[32:], uint32(s.align))
	b.o.PutUint32(dst[36:], uint32(s.entsize))
}

type strtab struct {
	buf     []byte
	offsets map[string]uint32
}

func newStrtab() *strtab {
	return &strtab{buf: []byte{0}, offsets: map[string]uint32{"": 0}}
}

func (s *strtab) add(name string) uint32 {
	if off, ok := s.offsets[name]; ok {
		return off
	}
	off := uint32(len(s.buf))
	s.buf = append(append(s.buf, name...), 0)
	s.offsets[name] = off
	return off
}

func alignUp(v, align uint64) uint64 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) / align * align
}
