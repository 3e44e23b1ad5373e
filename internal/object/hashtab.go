package object

import (
	"debug/elf"
)

// elfHash is the System V ABI symbol hash used by .hash.
func elfHash(name string) uint32 {
	var h uint32
	for i := 0; i < len(name); i++ {
		h = h<<4 + uint32(name[i])
		g := h & 0xf0000000
		if g != 0 {
			h ^= g >> 24
		}
		h &^= g
	}
	return h
}

// gnuHash is the djb2 hash used by .gnu.hash.
func gnuHash(name string) uint32 {
	h := uint32(5381)
	for i := 0; i < len(name); i++ {
		h = h*33 + uint32(name[i])
	}
	return h
}

// rebuildHashes recomputes every hash table attached to .dynsym. Tables
// keep their size and position; symbol order is never changed.
func (w *rewriter) rebuildHashes() error {
	names := make([]string, w.symCount())
	for _, s := range w.syms {
		names[s.Index] = s.Name
	}
	for _, h := range w.shdrs {
		if int(h.link) != w.dynsym {
			continue
		}
		body, err := section(w.out, h)
		if err != nil {
			return err
		}
		switch h.typ {
		case elf.SHT_HASH:
			if h.entsize != 0 && h.entsize != 4 {
				return malformed(".hash entry size %d unsupported", h.entsize)
			}
			err = w.rebuildSysvHash(body, names)
		case elf.SHT_GNU_HASH:
			err = w.rebuildGnuHash(body, names)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *rewriter) symCount() int {
	return int(w.shdrs[w.dynsym].size) / w.layout.symSize()
}

func (w *rewriter) rebuildSysvHash(body []byte, names []string) error {
	o := w.layout.order
	if len(body) < 8 {
		return malformed(".hash too small")
	}
	nbucket := int(o.Uint32(body))
	nchain := len(names)
	if nbucket == 0 || 8+4*(nbucket+nchain) > len(body) {
		return malformed(".hash does not fit %d buckets and %d chains", nbucket, nchain)
	}

	bucket := make([]uint32, nbucket)
	chain := make([]uint32, nchain)
	for i := 1; i < nchain; i++ {
		b := elfHash(names[i]) % uint32(nbucket)
		chain[i] = bucket[b]
		bucket[b] = uint32(i)
	}

	clear(body)
	o.PutUint32(body[0:], uint32(nbucket))
	o.PutUint32(body[4:], uint32(nchain))
	p := 8
	for _, v := range bucket {
		o.PutUint32(body[p:], v)
		p += 4
	}
	for _, v := range chain {
		o.PutUint32(body[p:], v)
		p += 4
	}
	return nil
}

// rebuildGnuHash rewrites .gnu.hash with a single bucket, which is valid for
// any symbol order.
func (w *rewriter) rebuildGnuHash(body []byte, names []string) error {
	l := w.layout
	o := l.order
	if len(body) < 16 {
		return malformed(".gnu.hash too small")
	}
	symoffset := int(o.Uint32(body[4:]))
	bloomSize := int(o.Uint32(body[8:]))
	shift := o.Uint32(body[12:])
	if bloomSize == 0 || bloomSize&(bloomSize-1) != 0 {
		return malformed(".gnu.hash bloom size %d is not a power of two", bloomSize)
	}
	if symoffset > len(names) {
		return malformed(".gnu.hash symbol offset %d exceeds %d symbols", symoffset, len(names))
	}
	ws := l.wordSize()
	hashed := len(names) - symoffset
	need := 16 + bloomSize*ws + 4 + 4*hashed
	if need > len(body) {
		return malformed(".gnu.hash does not fit %d symbols", hashed)
	}

	bits := uint32(ws * 8)
	bloom := make([]uint64, bloomSize)
	chain := make([]uint32, hashed)
	for i := range chain {
		h := gnuHash(names[symoffset+i])
		word := (h / bits) & uint32(bloomSize-1)
		bloom[word] |= 1<<(h%bits) | 1<<((h>>shift)%bits)
		chain[i] = h &^ 1
	}
	if hashed > 0 {
		chain[hashed-1] |= 1
	}

	clear(body)
	o.PutUint32(body[0:], 1)
	o.PutUint32(body[4:], uint32(symoffset))
	o.PutUint32(body[8:], uint32(bloomSize))
	o.PutUint32(body[12:], shift)
	p := 16
	for _, v := range bloom {
		l.putWord(body[p:], v)
		p += ws
	}
	if hashed > 0 {
		o.PutUint32(body[p:], uint32(symoffset))
	}
	p += 4
	for _, v := range chain {
		o.PutUint32(body[p:], v)
		p += 4
	}
	return nil
}
