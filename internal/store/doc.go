// Package store provides the ordered row store that backs the break queue,
// the active-break table and the completed-break log.
//
// The store deliberately offers a weak contract, close to a spreadsheet:
//   - Append: add one row at the end of a table
//   - Scan: read every row of a table in insertion order
//   - Delete: remove rows by key
//
// Every call is individually atomic. Calls do NOT compose: there are no
// multi-row transactions, no compare-and-swap and no row locks. Invariants
// that span rows (one active break per user, daily limits, one pending
// request per user) are enforced above this package by confining writes to
// a single writer.
//
// # Keys
//
// Each row carries a Key assigned on Append. Keys are strictly increasing
// within a table and never reused, so deleting some rows never shifts the
// identity or relative order of the others.
//
// # Backends
//
//   - SQLite (Open): durable, WAL mode, one row per record with cells
//     stored as a JSON array. Also hosts processor leases (LeaseLocker).
//   - Memory (NewMemory): process-local, used by tests and the harness.
package store
