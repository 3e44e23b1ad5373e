// Package harness runs end-to-end symbol obfuscation scenarios.
//
// A scenario declares fixture objects, an optional initial store and a list
// of steps. The harness builds the objects in a scratch directory, runs each
// step through the slasher driver against a real store file, records what
// was renamed, and evaluates assertions against the final state.
//
// # Scenario Format
//
//	name: collect_hash_dehash
//	description: "Defined symbols are renamed and restored"
//	format: structured
//	prefix: symslash
//	objects:
//	  - name: libdemo.so
//	    soname: libdemo.so.1
//	    needed: [libc.so.6]
//	    symbols:
//	      - { name: alloc, value: 0x1000 }
//	      - { name: __stub }
//	    static: [alloc, local_helper]
//	steps:
//	  - insert: [libdemo.so]
//	  - hash: libdemo.so
//	  - dehash: libdemo.so
//	assertions:
//	  - type: store_entries
//	    entries:
//	      - { id: 0, name: alloc }
//	  - type: symbols
//	    object: libdemo.so
//	    names: [__stub, alloc]
//
// Each hash or dehash step reads the object's current file and makes its
// output the new current file, so assertions see the result of the last
// rewrite.
//
// # Assertion Types
//
//   - store_entries: the store holds exactly these entries, in identity order
//   - symbols: the object's dynamic symbol names, in table order
//   - resolves: each name is found through both symbol hash tables
//   - unresolved: no name is found through either symbol hash table
//   - static_table: whether the object still has a static symbol table
//
// # Deterministic Traces
//
// The trace records object names, never scratch paths, and the run ID comes
// from a fixed generator, so golden files compare byte for byte:
//
//	go test ./internal/harness -update
package harness
