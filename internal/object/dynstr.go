package object

import (
	"debug/elf"
	"fmt"
	"strings"
)

// strtabBuilder assembles a string table. Offset 0 is the empty string.
type strtabBuilder struct {
	buf     []byte
	offsets map[string]uint32
}

func newStrtabBuilder() *strtabBuilder {
	return &strtabBuilder{buf: []byte{0}, offsets: map[string]uint32{"": 0}}
}

func (b *strtabBuilder) add(s string) uint32 {
	if off, ok := b.offsets[s]; ok {
		return off
	}
	off := uint32(len(b.buf))
	b.buf = append(b.buf, s...)
	b.buf = append(b.buf, 0)
	b.offsets[s] = off
	return off
}

// strRef is a field somewhere in the file that holds an offset into .dynstr.
type strRef struct {
	pos  int  // file offset of the field
	word bool // address-sized field; otherwise 32 bits
	name string
}

// dynStringTags are the .dynamic tags whose value is a .dynstr offset.
var dynStringTags = map[elf.DynTag]bool{
	elf.DT_NEEDED:    true,
	elf.DT_SONAME:    true,
	elf.DT_RPATH:     true,
	elf.DT_RUNPATH:   true,
	elf.DT_AUXILIARY: true,
	elf.DT_FILTER:    true,
	elf.DT_CONFIG:    true,
	elf.DT_DEPAUDIT:  true,
	elf.DT_AUDIT:     true,
}

// rebuildDynstr replaces .dynstr with a table holding only the strings that
// are still referenced, then repoints every reference.
func (w *rewriter) rebuildDynstr() error {
	old, err := section(w.out, w.shdrs[w.dynstr])
	if err != nil {
		return err
	}
	refs, err := w.collectRefs(old)
	if err != nil {
		return err
	}

	b := newStrtabBuilder()
	offsets := make([]uint32, len(refs))
	for i, r := range refs {
		if strings.IndexByte(r.name, 0) >= 0 {
			return fmt.Errorf("name %q contains a NUL byte", r.name)
		}
		offsets[i] = b.add(r.name)
	}
	table := b.buf

	if uint64(len(table)) <= w.shdrs[w.dynstr].size {
		start := w.shdrs[w.dynstr].offset
		n := copy(w.out[start:], table)
		clear(w.out[start+uint64(n) : start+w.shdrs[w.dynstr].size])
	} else if err := w.relocateDynstr(table); err != nil {
		return err
	}

	for i, r := range refs {
		if r.word {
			w.layout.putWord(w.out[r.pos:], uint64(offsets[i]))
		} else {
			w.layout.order.PutUint32(w.out[r.pos:], offsets[i])
		}
	}
	return nil
}

// collectRefs finds every reference into .dynstr and resolves the string
// it should point at after the rewrite.
func (w *rewriter) collectRefs(old []byte) ([]strRef, error) {
	l := w.layout
	var refs []strRef

	symOff := int(w.shdrs[w.dynsym].offset)
	for _, s := range w.syms {
		refs = append(refs, strRef{pos: symOff + s.Index*l.symSize(), name: s.Name})
	}

	resolve := func(pos int, word bool, off uint64) error {
		if off > 0xffffffff {
			return malformed("string offset %#x out of range", off)
		}
		name, ok := cstring(old, uint32(off))
		if !ok {
			return malformed("string offset %#x outside .dynstr", off)
		}
		refs = append(refs, strRef{pos: pos, word: word, name: name})
		return nil
	}

	for i, h := range w.shdrs {
		if i == w.dynsym || int(h.link) != w.dynstr {
			continue
		}
		body, err := section(w.out, h)
		if err != nil {
			return nil, err
		}
		base := int(h.offset)
		switch h.typ {
		case elf.SHT_DYNAMIC:
			size := l.dynSize()
			for p := 0; p+size <= len(body); p += size {
				tag := l.dynTag(body[p:])
				if tag == elf.DT_NULL {
					break
				}
				if dynStringTags[tag] {
					if err := resolve(base+p+l.wordSize(), true, l.dynVal(body[p:])); err != nil {
						return nil, err
					}
				}
			}
		case elf.SHT_GNU_VERDEF:
			err = walkVerdef(l, body, int(h.info), func(p int) error {
				return resolve(base+p, false, uint64(l.order.Uint32(body[p:])))
			})
		case elf.SHT_GNU_VERNEED:
			err = walkVerneed(l, body, int(h.info), func(p int) error {
				return resolve(base+p, false, uint64(l.order.Uint32(body[p:])))
			})
		default:
			return nil, fmt.Errorf("section %d of type %v references .dynstr", i, h.typ)
		}
		if err != nil {
			return nil, err
		}
	}
	return refs, nil
}

// walkVerdef calls fn with the position of every vda_name field.
func walkVerdef(l layout, body []byte, count int, fn func(pos int) error) error {
	p := 0
	for n := 0; n < count; n++ {
		if p < 0 || p+20 > len(body) {
			return malformed("version definition outside section")
		}
		cnt := int(l.order.Uint16(body[p+6:]))
		aux := p + int(l.order.Uint32(body[p+12:]))
		for j := 0; j < cnt; j++ {
			if aux < 0 || aux+8 > len(body) {
				return malformed("version definition auxiliary outside section")
			}
			if err := fn(aux); err != nil {
				return err
			}
			aux += int(l.order.Uint32(body[aux+4:]))
		}
		next := int(l.order.Uint32(body[p+16:]))
		if next == 0 {
			break
		}
		p += next
	}
	return nil
}

// walkVerneed calls fn with the position of every vn_file and vna_name
// field.
func walkVerneed(l layout, body []byte, count int, fn func(pos int) error) error {
	p := 0
	for n := 0; n < count; n++ {
		if p < 0 || p+16 > len(body) {
			return malformed("version requirement outside section")
		}
		if v := l.order.Uint16(body[p:]); v != 1 {
			return malformed("unsupported version requirement revision %d", v)
		}
		cnt := int(l.order.Uint16(body[p+2:]))
		if err := fn(p + 4); err != nil {
			return err
		}
		aux := p + int(l.order.Uint32(body[p+8:]))
		for j := 0; j < cnt; j++ {
			if aux < 0 || aux+16 > len(body) {
				return malformed("version requirement auxiliary outside section")
			}
			if err := fn(aux + 8); err != nil {
				return err
			}
			aux += int(l.order.Uint32(body[aux+12:]))
		}
		next := int(l.order.Uint32(body[p+12:]))
		if next == 0 {
			break
		}
		p += next
	}
	return nil
}

// relocateDynstr appends table to the file and maps it with a new PT_LOAD
// made from a PT_NOTE header.
func (w *rewriter) relocateDynstr(table []byte) error {
	l := w.layout

	note := -1
	var align, end uint64 = 0x1000, 0
	for i := 0; i < l.phnum; i++ {
		p := l.readPhdr(w.out, i)
		switch p.typ {
		case elf.PT_LOAD:
			note = -1
			align = max(align, p.align)
			end = max(end, p.vaddr+p.memsz)
		case elf.PT_NOTE:
			note = i
		}
	}
	if note < 0 {
		return fmt.Errorf("%w: no PT_NOTE header after the last PT_LOAD", ErrNoRoom)
	}

	di := w.dynamicIndex()
	if di < 0 {
		return malformed("no dynamic section linked to .dynstr")
	}
	dyn := w.shdrs[di]
	if _, err := section(w.out, dyn); err != nil {
		return err
	}

	vaddr := alignUp(end, align)
	off := alignUp(uint64(len(w.out)), align)
	size := uint64(len(table))
	if !l.is64() && vaddr+size > 0xffffffff {
		return fmt.Errorf("%w: address space exhausted", ErrNoRoom)
	}

	old := w.shdrs[w.dynstr]
	clear(w.out[old.offset : old.offset+old.size])

	w.out = append(w.out, make([]byte, off-uint64(len(w.out)))...)
	w.out = append(w.out, table...)

	l.writePhdr(w.out, note, phdr{
		typ:    elf.PT_LOAD,
		flags:  elf.PF_R,
		offset: off,
		vaddr:  vaddr,
		paddr:  vaddr,
		filesz: size,
		memsz:  size,
		align:  align,
	})

	var sawTab, sawSize bool
	for p := dyn.offset; p+uint64(l.dynSize()) <= dyn.offset+dyn.size; p += uint64(l.dynSize()) {
		ent := w.out[p:]
		tag := l.dynTag(ent)
		if tag == elf.DT_NULL {
			break
		}
		switch tag {
		case elf.DT_STRTAB:
			l.setDynVal(ent, vaddr)
			sawTab = true
		case elf.DT_STRSZ:
			l.setDynVal(ent, size)
			sawSize = true
		}
	}
	if !sawTab || !sawSize {
		return malformed("dynamic section lacks DT_STRTAB or DT_STRSZ")
	}

	h := old
	h.offset = off
	h.addr = vaddr
	h.size = size
	w.shdrs[w.dynstr] = h
	l.writeShdr(w.out, w.dynstr, h)
	return nil
}

func (w *rewriter) dynamicIndex() int {
	for i, h := range w.shdrs {
		if h.typ == elf.SHT_DYNAMIC && int(h.link) == w.dynstr {
			return i
		}
	}
	return -1
}
