package store

import (
	"context"
	"errors"
	"sync"
)

// Memory is a process-local Store.
//
// Thread-safety: every method holds the mutex for its whole duration, which
// gives the same per-call atomicity as the SQLite backend and nothing more.
type Memory struct {
	mu     sync.Mutex
	tables map[Table][]Row
	next   int64
	closed bool
}

var _ Store = (*Memory)(nil)

// ErrClosed is returned by Memory after Close.
var ErrClosed = errors.New("store closed")

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{tables: make(map[Table][]Row)}
}

// Append adds a row at the end of the table.
func (m *Memory) Append(_ context.Context, t Table, cells []string) (Row, error) {
	if err := checkRow(t, cells); err != nil {
		return Row{}, wrapErr("append", t, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Row{}, wrapErr("append", t, ErrClosed)
	}

	m.next++
	row := Row{Key: m.next, Cells: cloneCells(cells)}
	m.tables[t] = append(m.tables[t], row)
	return Row{Key: row.Key, Cells: cloneCells(cells)}, nil
}

// Scan returns a copy of the table's rows in key order.
func (m *Memory) Scan(_ context.Context, t Table) ([]Row, error) {
	if err := checkRow(t, nil); err != nil {
		return nil, wrapErr("scan", t, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, wrapErr("scan", t, ErrClosed)
	}

	rows := m.tables[t]
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = Row{Key: r.Key, Cells: cloneCells(r.Cells)}
	}
	return out, nil
}

// Delete removes rows by key, compacting the table in one pass.
func (m *Memory) Delete(_ context.Context, t Table, keys ...int64) (int, error) {
	if err := checkRow(t, nil); err != nil {
		return 0, wrapErr("delete", t, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	drop := make(map[int64]struct{}, len(keys))
	for _, k := range keys {
		drop[k] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, wrapErr("delete", t, ErrClosed)
	}

	rows := m.tables[t]
	kept := rows[:0]
	removed := 0
	for _, r := range rows {
		if _, ok := drop[r.Key]; ok {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	// Clear the tail so dropped rows can be collected.
	for i := len(kept); i < len(rows); i++ {
		rows[i] = Row{}
	}
	m.tables[t] = kept
	return removed, nil
}

// Count returns the number of rows in the table.
func (m *Memory) Count(_ context.Context, t Table) (int, error) {
	if err := checkRow(t, nil); err != nil {
		return 0, wrapErr("count", t, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, wrapErr("count", t, ErrClosed)
	}
	return len(m.tables[t]), nil
}

// Close marks the store closed. Later calls fail with ErrClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func cloneCells(cells []string) []string {
	out := make([]string, len(cells))
	copy(out, cells)
	return out
}
