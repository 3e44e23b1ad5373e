// Package slasher drives symbol obfuscation over ELF objects.
//
// A Driver pulls dynamic symbols from an object.Binary, consults an
// identity store and pushes names back:
//
//   - Collect registers every defined, named dynamic symbol of a set of
//     objects with a forward store
//   - Hash renames every dynamic symbol known to the store to its opaque
//     identifier and, unless told otherwise, strips the static symbol table
//   - Dehash renames opaque identifiers back to their original names
//
// Symbols with value 0 are imports or placeholders. Collect never registers
// them, so Hash leaves them alone unless another object defines the same
// name.
//
// The driver never commits a store. Callers commit after a fully successful
// run and close otherwise, so a failing invocation leaves the store file as
// it was.
//
// Every log record of a Driver carries the run ID of the invocation, taken
// from a RunIDGenerator.
package slasher
