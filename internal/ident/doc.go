// Package ident defines symbol identities and the opaque identifiers derived
// from them.
//
// This package contains value types only. Every other internal package may
// import ident; ident imports nothing internal.
//
// Key constraints:
//   - An Identity is assigned once per distinct symbol name and never reused
//   - Opaque identifier = prefix + canonical decimal identity
//   - Formatting is a pure function of (prefix, identity)
//   - Symbol names are opaque byte strings, never normalized
package ident
