// Package breaks is the break state machine.
//
// Each user is either off break (no live-breaks row) or on exactly one
// break. START, END and CANCEL read the current rows, decide, then write.
// The package has no locking: its invariants hold because the batch
// processor is the only caller and applies requests one at a time.
//
// Tables:
//   - live_breaks holds one ON BREAK row per user currently on break.
//   - punch_log is append-only and receives one COMPLETED row per END.
//
// A cancelled break leaves no trace in either table.
package breaks
