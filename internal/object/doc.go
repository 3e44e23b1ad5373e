// Package object reads and rewrites the dynamic symbol names of ELF shared
// objects.
//
// Parsing is delegated to debug/elf. Rewriting works on a raw copy of the
// file and touches only what a rename requires:
//
//   - .dynstr is rebuilt from the strings that are still referenced, so
//     replaced names do not survive anywhere in the table
//   - .hash and .gnu.hash are recomputed so the dynamic linker finds the
//     renamed symbols
//   - the static symbol table can be dropped from the section headers
//
// When the rebuilt .dynstr does not fit in its original slot, it is moved
// to a new read-only PT_LOAD segment appended to the file. The segment
// header is taken from a PT_NOTE entry, which the loader does not need.
//
// Symbol order, relocations and version tables are never modified.
package object
