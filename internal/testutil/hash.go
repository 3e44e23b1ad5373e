package testutil

import (
	"bytes"
	"debug/elf"
	"fmt"
)

// SysvHash is the ELF hash function of .hash.
func SysvHash(name string) uint32 {
	var h uint32
	for i := 0; i < len(name); i++ {
		h = h<<4 + uint32(name[i])
		if g := h & 0xf0000000; g != 0 {
			h ^= g >> 24
			h &^= g
		}
	}
	return h
}

// GNUHash is the hash function of .gnu.hash.
func GNUHash(name string) uint32 {
	h := uint32(5381)
	for i := 0; i < len(name); i++ {
		h = h*33 + uint32(name[i])
	}
	return h
}

// LookupGNU resolves name through the .gnu.hash table of the object in data,
// walking the bloom filter, bucket and chain as the dynamic linker does. It
// returns the .dynsym index of the symbol.
func LookupGNU(data []byte, name string) (int, bool, error) {
	f, syms, err := dynamic(data)
	if err != nil {
		return 0, false, err
	}
	sec := f.SectionByType(elf.SHT_GNU_HASH)
	if sec == nil {
		return 0, false, fmt.Errorf("no .gnu.hash section")
	}
	tab, err := sec.Data()
	if err != nil {
		return 0, false, err
	}
	o := f.ByteOrder
	word, bits := 4, uint32(32)
	if f.Class == elf.ELFCLASS64 {
		word, bits = 8, 64
	}
	nbuckets := o.Uint32(tab[0:])
	symoffset := o.Uint32(tab[4:])
	bloomSize := o.Uint32(tab[8:])
	shift := o.Uint32(tab[12:])

	h := GNUHash(name)
	p := 16 + int((h/bits)&(bloomSize-1))*word
	var bloom uint64
	if word == 8 {
		bloom = o.Uint64(tab[p:])
	} else {
		bloom = uint64(o.Uint32(tab[p:]))
	}
	if bloom>>(h%bits)&1 == 0 || bloom>>((h>>shift)%bits)&1 == 0 {
		return 0, false, nil
	}

	buckets := 16 + int(bloomSize)*word
	chain := buckets + 4*int(nbuckets)
	i := o.Uint32(tab[buckets+4*int(h%nbuckets):])
	if i == 0 {
		return 0, false, nil
	}
	for ; int(i) <= len(syms); i++ {
		c := o.Uint32(tab[chain+4*int(i-symoffset):])
		if c|1 == h|1 && syms[i-1].Name == name {
			return int(i), true, nil
		}
		if c&1 != 0 {
			break
		}
	}
	return 0, false, nil
}

// LookupSysv resolves name through the .hash table of the object in data.
func LookupSysv(data []byte, name string) (int, bool, error) {
	f, syms, err := dynamic(data)
	if err != nil {
		return 0, false, err
	}
	sec := f.SectionByType(elf.SHT_HASH)
	if sec == nil {
		return 0, false, fmt.Errorf("no .hash section")
	}
	tab, err := sec.Data()
	if err != nil {
		return 0, false, err
	}
	o := f.ByteOrder
	nbucket := o.Uint32(tab[0:])
	nchain := o.Uint32(tab[4:])
	if int(nchain) != len(syms)+1 {
		return 0, false, fmt.Errorf(".hash has %d chains for %d symbols", nchain, len(syms)+1)
	}
	chain := 8 + 4*int(nbucket)
	for i := o.Uint32(tab[8+4*int(SysvHash(name)%nbucket):]); i != 0; i = o.Uint32(tab[chain+4*int(i):]) {
		if syms[i-1].Name == name {
			return int(i), true, nil
		}
	}
	return 0, false, nil
}

func dynamic(data []byte) (*elf.File, []elf.Symbol, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, nil, err
	}
	syms, err := f.DynamicSymbols()
	if err != nil {
		return nil, nil, err
	}
	return f, syms, nil
}
