// Package store provides the persistent symbol identity store.
//
// A store file maps symbol names to sequential identities. It is read once by
// Load and then indexed in one of two views:
//
//   - Forward: name -> identity -> opaque identifier (register, hash)
//   - Reverse: opaque identifier -> name (dehash)
//
// Both views are built from the same loaded entries; there is never a second
// file for the reverse direction.
//
// # Identity assignment
//
// The baseline is the next free identity at open time. New names receive
// baseline, baseline+1, ... in registration order, so identities loaded from
// disk are never reassigned and never collide with new ones.
//
// # Persistence
//
// Nothing is written until Forward.Commit. Close without Commit discards the
// session's new entries, so a failed invocation leaves the file untouched.
// Commit always writes a temporary file and renames it into place:
//
//   - legacy stores keep their existing bytes and gain the new rows
//   - structured stores are re-encoded in full
//
// The file must not be written by two processes at once. Commit detects a
// file that changed after Load and refuses to overwrite it.
package store
