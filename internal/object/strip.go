package object

import (
	"debug/elf"
)

// stripStatic drops the static symbol table, its string table and any
// extended index table from the section header table. Their bytes are
// zeroed; remaining sections keep their offsets.
func (w *rewriter) stripStatic() error {
	l := w.layout
	removed := make([]bool, len(w.shdrs))
	for i, h := range w.shdrs {
		if h.typ == elf.SHT_SYMTAB {
			removed[i] = true
		}
	}
	for i, h := range w.shdrs {
		if h.typ == elf.SHT_SYMTAB_SHNDX && int(h.link) < len(removed) && removed[h.link] {
			removed[i] = true
		}
	}
	for _, h := range w.shdrs {
		if h.typ != elf.SHT_SYMTAB {
			continue
		}
		s := int(h.link)
		if s <= 0 || s >= len(w.shdrs) || s == l.shstrndx || s == w.dynstr {
			continue
		}
		if w.linkedElsewhere(s, removed) {
			continue
		}
		removed[s] = true
	}

	index := make([]uint32, len(w.shdrs))
	var kept []shdr
	for i, h := range w.shdrs {
		if removed[i] {
			if body, err := section(w.out, h); err == nil {
				clear(body)
			}
			continue
		}
		index[i] = uint32(len(kept))
		kept = append(kept, h)
	}

	remap := func(v uint32) uint32 {
		if int(v) < len(index) {
			return index[v]
		}
		return v
	}
	for i := range kept {
		h := &kept[i]
		h.link = remap(h.link)
		if h.flags&uint64(elf.SHF_INFO_LINK) != 0 || h.typ == elf.SHT_REL || h.typ == elf.SHT_RELA {
			h.info = remap(h.info)
		}
	}

	if err := w.remapSymbolSections(index); err != nil {
		return err
	}

	for i := range w.shdrs {
		if i < len(kept) {
			l.writeShdr(w.out, i, kept[i])
		} else {
			start := l.shdrAt(i)
			clear(w.out[start : start+l.shentsize])
		}
	}
	l.setShnum(w.out, len(kept), int(index[l.shstrndx]))
	w.shdrs = kept
	w.dynsym = int(index[w.dynsym])
	w.dynstr = int(index[w.dynstr])
	return nil
}

func (w *rewriter) linkedElsewhere(target int, removed []bool) bool {
	for i, h := range w.shdrs {
		if !removed[i] && int(h.link) == target {
			return true
		}
	}
	return false
}

// remapSymbolSections rewrites st_shndx in .dynsym for the renumbered
// section headers.
func (w *rewriter) remapSymbolSections(index []uint32) error {
	l := w.layout
	body, err := section(w.out, w.shdrs[w.dynsym])
	if err != nil {
		return err
	}
	size := l.symSize()
	shndx := 14
	if l.is64() {
		shndx = 6
	}
	for p := size; p+size <= len(body); p += size {
		v := elf.SectionIndex(l.order.Uint16(body[p+shndx:]))
		if v == elf.SHN_UNDEF || v >= elf.SHN_LORESERVE || int(v) >= len(index) {
			continue
		}
		l.order.PutUint16(body[p+shndx:], uint16(index[v]))
	}
	return nil
}
