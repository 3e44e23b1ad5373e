// Package codec serializes symbol stores.
//
// The codec knows nothing about identity assignment; it maps between bytes
// and an ordered list of (name, identity) entries. Two formats exist:
//
//   - legacy: one "<identity> <name>\n" record per line; supports delta append
//   - structured: {"symbols":[{"name":..,"hash":..}]}; always rewritten whole
//
// Structured is the format for new stores. Legacy files stay readable and
// appendable, and can be migrated with store.Convert.
package codec
