package object

import (
	"debug/elf"
	"encoding/binary"
)

// layout holds the raw header fields that debug/elf does not expose and the
// class-dependent sizes needed to patch the file in place.
type layout struct {
	class elf.Class
	order binary.ByteOrder

	phoff     uint64
	phentsize int
	phnum     int

	shoff     uint64
	shentsize int
	shnum     int
	shstrndx  int
}

// header field offsets: e_phoff, e_shoff, e_phentsize, e_shnum
var (
	ehdr64 = struct{ phoff, shoff, phentsize, phnum, shentsize, shnum, shstrndx int }{32, 40, 54, 56, 58, 60, 62}
	ehdr32 = struct{ phoff, shoff, phentsize, phnum, shentsize, shnum, shstrndx int }{28, 32, 42, 44, 46, 48, 50}
)

func parseLayout(data []byte, f *elf.File) (layout, error) {
	l := layout{class: f.Class, order: f.ByteOrder}
	switch f.Class {
	case elf.ELFCLASS64:
		if len(data) < 64 {
			return l, malformed("truncated ELF header")
		}
		h := ehdr64
		l.phoff = l.order.Uint64(data[h.phoff:])
		l.shoff = l.order.Uint64(data[h.shoff:])
		l.phentsize = int(l.order.Uint16(data[h.phentsize:]))
		l.phnum = int(l.order.Uint16(data[h.phnum:]))
		l.shentsize = int(l.order.Uint16(data[h.shentsize:]))
		l.shnum = int(l.order.Uint16(data[h.shnum:]))
		l.shstrndx = int(l.order.Uint16(data[h.shstrndx:]))
	case elf.ELFCLASS32:
		if len(data) < 52 {
			return l, malformed("truncated ELF header")
		}
		h := ehdr32
		l.phoff = uint64(l.order.Uint32(data[h.phoff:]))
		l.shoff = uint64(l.order.Uint32(data[h.shoff:]))
		l.phentsize = int(l.order.Uint16(data[h.phentsize:]))
		l.phnum = int(l.order.Uint16(data[h.phnum:]))
		l.shentsize = int(l.order.Uint16(data[h.shentsize:]))
		l.shnum = int(l.order.Uint16(data[h.shnum:]))
		l.shstrndx = int(l.order.Uint16(data[h.shstrndx:]))
	default:
		return l, malformed("unsupported ELF class %v", f.Class)
	}

	if l.shnum == 0 || l.shnum != len(f.Sections) {
		// Extended section numbering stores e_shnum in section 0.
		return l, malformed("unsupported section header count %d", l.shnum)
	}
	if end := l.shoff + uint64(l.shnum)*uint64(l.shentsize); end > uint64(len(data)) {
		return l, malformed("section header table extends past end of file")
	}
	if end := l.phoff + uint64(l.phnum)*uint64(l.phentsize); end > uint64(len(data)) {
		return l, malformed("program header table extends past end of file")
	}
	return l, nil
}

func (l layout) is64() bool { return l.class == elf.ELFCLASS64 }

// wordSize is the size of an address-sized field (and of a .gnu.hash bloom
// word).
func (l layout) wordSize() int {
	if l.is64() {
		return 8
	}
	return 4
}

func (l layout) word(b []byte) uint64 {
	if l.is64() {
		return l.order.Uint64(b)
	}
	return uint64(l.order.Uint32(b))
}

func (l layout) putWord(b []byte, v uint64) {
	if l.is64() {
		l.order.PutUint64(b, v)
		return
	}
	l.order.PutUint32(b, uint32(v))
}

func (l layout) setShnum(data []byte, shnum, shstrndx int) {
	h := ehdr32
	if l.is64() {
		h = ehdr64
	}
	l.order.PutUint16(data[h.shnum:], uint16(shnum))
	l.order.PutUint16(data[h.shstrndx:], uint16(shstrndx))
}

// shdr is a section header in class-independent form.
type shdr struct {
	name      uint32
	typ       elf.SectionType
	flags     uint64
	addr      uint64
	offset    uint64
	size      uint64
	link      uint32
	info      uint32
	addralign uint64
	entsize   uint64
}

func (l layout) shdrAt(i int) int {
	return int(l.shoff) + i*l.shentsize
}

func (l layout) readShdr(data []byte, i int) shdr {
	b := data[l.shdrAt(i):]
	o := l.order
	if l.is64() {
		return shdr{
			name:      o.Uint32(b[0:]),
			typ:       elf.SectionType(o.Uint32(b[4:])),
			flags:     o.Uint64(b[8:]),
			addr:      o.Uint64(b[16:]),
			offset:    o.Uint64(b[24:]),
			size:      o.Uint64(b[32:]),
			link:      o.Uint32(b[40:]),
			info:      o.Uint32(b[44:]),
			addralign: o.Uint64(b[48:]),
			entsize:   o.Uint64(b[56:]),
		}
	}
	return shdr{
		name:      o.Uint32(b[0:]),
		typ:       elf.SectionType(o.Uint32(b[4:])),
		flags:     uint64(o.Uint32(b[8:])),
		addr:      uint64(o.Uint32(b[12:])),
		offset:    uint64(o.Uint32(b[16:])),
		size:      uint64(o.Uint32(b[20:])),
		link:      o.Uint32(b[24:]),
		info:      o.Uint32(b[28:]),
		addralign: uint64(o.Uint32(b[32:])),
		entsize:   uint64(o.Uint32(b[36:])),
	}
}

func (l layout) writeShdr(data []byte, i int, h shdr) {
	b := data[l.shdrAt(i):]
	o := l.order
	if l.is64() {
		o.PutUint32(b[0:], h.name)
		o.PutUint32(b[4:], uint32(h.typ))
		o.PutUint64(b[8:], h.flags)
		o.PutUint64(b[16:], h.addr)
		o.PutUint64(b[24:], h.offset)
		o.PutUint64(b[32:], h.size)
		o.PutUint32(b[40:], h.link)
		o.PutUint32(b[44:], h.info)
		o.PutUint64(b[48:], h.addralign)
		o.PutUint64(b[56:], h.entsize)
		return
	}
	o.PutUint32(b[0:], h.name)
	o.PutUint32(b[4:], uint32(h.typ))
	o.PutUint32(b[8:], uint32(h.flags))
	o.PutUint32(b[12:], uint32(h.addr))
	o.PutUint32(b[16:], uint32(h.offset))
	o.PutUint32(b[20:], uint32(h.size))
	o.PutUint32(b[24:], h.link)
	o.PutUint32(b[28:], h.info)
	o.PutUint32(b[32:], uint32(h.addralign))
	o.PutUint32(b[36:], uint32(h.entsize))
}

// phdr is a program header in class-independent form.
type phdr struct {
	typ    elf.ProgType
	flags  elf.ProgFlag
	offset uint64
	vaddr  uint64
	paddr  uint64
	filesz uint64
	memsz  uint64
	align  uint64
}

func (l layout) phdrAt(i int) int {
	return int(l.phoff) + i*l.phentsize
}

func (l layout) readPhdr(data []byte, i int) phdr {
	b := data[l.phdrAt(i):]
	o := l.order
	if l.is64() {
		return phdr{
			typ:    elf.ProgType(o.Uint32(b[0:])),
			flags:  elf.ProgFlag(o.Uint32(b[4:])),
			offset: o.Uint64(b[8:]),
			vaddr:  o.Uint64(b[16:]),
			paddr:  o.Uint64(b[24:]),
			filesz: o.Uint64(b[32:]),
			memsz:  o.Uint64(b[40:]),
			align:  o.Uint64(b[48:]),
		}
	}
	return phdr{
		typ:    elf.ProgType(o.Uint32(b[0:])),
		offset: uint64(o.Uint32(b[4:])),
		vaddr:  uint64(o.Uint32(b[8:])),
		paddr:  uint64(o.Uint32(b[12:])),
		filesz: uint64(o.Uint32(b[16:])),
		memsz:  uint64(o.Uint32(b[20:])),
		flags:  elf.ProgFlag(o.Uint32(b[24:])),
		align:  uint64(o.Uint32(b[28:])),
	}
}

func (l layout) writePhdr(data []byte, i int, p phdr) {
	b := data[l.phdrAt(i):]
	o := l.order
	if l.is64() {
		o.PutUint32(b[0:], uint32(p.typ))
		o.PutUint32(b[4:], uint32(p.flags))
		o.PutUint64(b[8:], p.offset)
		o.PutUint64(b[16:], p.vaddr)
		o.PutUint64(b[24:], p.paddr)
		o.PutUint64(b[32:], p.filesz)
		o.PutUint64(b[40:], p.memsz)
		o.PutUint64(b[48:], p.align)
		return
	}
	o.PutUint32(b[0:], uint32(p.typ))
	o.PutUint32(b[4:], uint32(p.offset))
	o.PutUint32(b[8:], uint32(p.vaddr))
	o.PutUint32(b[12:], uint32(p.paddr))
	o.PutUint32(b[16:], uint32(p.filesz))
	o.PutUint32(b[20:], uint32(p.memsz))
	o.PutUint32(b[24:], uint32(p.flags))
	o.PutUint32(b[28:], uint32(p.align))
}

// symSize is the size of one symbol table entry. st_name is the first
// field in both classes.
func (l layout) symSize() int {
	if l.is64() {
		return 24
	}
	return 16
}

// symValue returns st_value of the symbol entry starting at b.
func (l layout) symValue(b []byte) uint64 {
	if l.is64() {
		return l.order.Uint64(b[8:])
	}
	return uint64(l.order.Uint32(b[4:]))
}

// symShndx returns st_shndx of the symbol entry starting at b.
func (l layout) symShndx(b []byte) elf.SectionIndex {
	if l.is64() {
		return elf.SectionIndex(l.order.Uint16(b[6:]))
	}
	return elf.SectionIndex(l.order.Uint16(b[14:]))
}

// dynSize is the size of one .dynamic entry.
func (l layout) dynSize() int {
	return 2 * l.wordSize()
}

func (l layout) dynTag(b []byte) elf.DynTag {
	if l.is64() {
		return elf.DynTag(int64(l.order.Uint64(b)))
	}
	return elf.DynTag(int32(l.order.Uint32(b)))
}

func (l layout) dynVal(b []byte) uint64 {
	return l.word(b[l.wordSize():])
}

func (l layout) setDynVal(b []byte, v uint64) {
	l.putWord(b[l.wordSize():], v)
}

// section returns the bytes of section h inside data.
func section(data []byte, h shdr) ([]byte, error) {
	if h.typ == elf.SHT_NOBITS {
		return nil, nil
	}
	end := h.offset + h.size
	if end < h.offset || end > uint64(len(data)) {
		return nil, malformed("section at offset %#x size %#x extends past end of file", h.offset, h.size)
	}
	return data[h.offset:end], nil
}

func alignUp(v, align uint64) uint64 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) / align * align
}
