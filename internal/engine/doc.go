// Package engine implements the breakq batch processor and its scheduler.
//
// The processor is the single writer of the break tables. Requests reach it
// only through the durable queue, and it applies them to the break state
// machine one at a time.
//
// ARCHITECTURE:
//
// Single-Writer Batch Loop:
// Every run holds a processor-wide lock token from start to finish. This
// ensures:
// - No two runs interleave on the same queue rows
// - Break invariants need no store transactions
// - A slow run makes the next one skip, never overlap
//
// Batch Processing Flow:
// 1. Ingress gate appends requests to the queue (FIFO)
// 2. Scheduler fires RunBatch every Interval/SubCycles
// 3. RunBatch takes the lock token and the first BatchSize entries
// 4. Each entry is applied to the state machine and its result notified
// 5. All taken entries are deleted by key in one call
//
// CRITICAL PATTERNS:
//
// Fault Isolation:
// Panics and store errors inside one entry become a FaultError for that
// entry only. The entry is dropped with a generic failure notification so a
// poisoned request cannot block the queue.
//
// Index-Stable Removal:
// Entries are removed by store key, never by position. Entries left behind
// keep their relative order.
package engine
