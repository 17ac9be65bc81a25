package store

import (
	"context"
	"errors"
	"fmt"
)

// Table names a logical table in the store.
type Table string

const (
	// TableQueue holds pending break requests in arrival order.
	TableQueue Table = "queue"
	// TableLiveBreaks holds one row per break in progress.
	TableLiveBreaks Table = "live_breaks"
	// TablePunchLog is the append-only log of completed breaks.
	TablePunchLog Table = "punch_log"
)

var headers = map[Table][]string{
	TableQueue:      {"TIMESTAMP", "USERNAME", "CHAT_ID", "ACTION", "PARAM", "ENTRY_ID"},
	TableLiveBreaks: {"DATE", "TIME", "NAME", "BREAK_CODE", "EXPECTED_DURATION", "STATUS", "CHAT_ID"},
	TablePunchLog:   {"DATE", "TIME_START", "NAME", "BREAK_CODE", "TIME_SPENT", "TIME_END", "STATUS", "CHAT_ID"},
}

// Tables lists every known table.
func Tables() []Table {
	return []Table{TableQueue, TableLiveBreaks, TablePunchLog}
}

// Header returns the column names of a table. The header is metadata and is
// never returned by Scan or counted by Count.
func Header(t Table) ([]string, error) {
	h, ok := headers[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, t)
	}
	out := make([]string, len(h))
	copy(out, h)
	return out, nil
}

// Row is one record of a table.
type Row struct {
	Key   int64
	Cells []string
}

// Cell returns the i-th cell, or "" when the row is short.
func (r Row) Cell(i int) string {
	if i < 0 || i >= len(r.Cells) {
		return ""
	}
	return r.Cells[i]
}

// Store is an ordered collection of rows per table.
//
// Each method is atomic on its own. Callers must not assume that a Scan
// followed by an Append or Delete observes a consistent view; see the
// package documentation.
type Store interface {
	// Append adds a row at the end of the table and returns it with its key.
	Append(ctx context.Context, t Table, cells []string) (Row, error)

	// Scan returns all rows of the table ordered by key.
	// Returns an empty slice (not nil) for an empty table.
	Scan(ctx context.Context, t Table) ([]Row, error)

	// Delete removes rows by key and reports how many were removed.
	// Keys that do not exist are ignored.
	Delete(ctx context.Context, t Table, keys ...int64) (int, error)

	// Count returns the number of rows in the table.
	Count(ctx context.Context, t Table) (int, error)

	// Close releases backend resources.
	Close() error
}

var (
	// ErrUnknownTable is returned for tables outside Tables().
	ErrUnknownTable = errors.New("unknown table")
	// ErrRowWidth is returned when appended cells do not match the header.
	ErrRowWidth = errors.New("row width does not match table header")
)

// OpError records the failing store operation and table.
type OpError struct {
	Op    string
	Table Table
	Err   error
}

func (e *OpError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func wrapErr(op string, t Table, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Table: t, Err: err}
}

// checkRow validates the table name and, when cells is non-nil, its width.
func checkRow(t Table, cells []string) error {
	h, ok := headers[t]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTable, t)
	}
	if cells != nil && len(cells) != len(h) {
		return fmt.Errorf("%w: got %d cells, want %d", ErrRowWidth, len(cells), len(h))
	}
	return nil
}
