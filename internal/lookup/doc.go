// Package lookup exports a symbol store into a SQLite lookup table.
//
// The table is a convenience for debugging tools that prefer SQL to the
// store file. The store file stays the source of truth; an export can be
// regenerated at any time and never feeds back into identity assignment.
//
// # Tables
//
//   - symbols: one row per identity with its original name and opaque
//     identifier, all three unique
//   - exports: one row per export run, keyed by the run ID
//
// Exports are idempotent. Re-exporting the same store adds no rows, and an
// export that disagrees with rows already present fails with ErrConflict
// instead of overwriting them.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package lookup
