package store

import (
	"path/filepath"
	"testing"
)

// createTestStore opens a fresh SQLite store in a temp directory.
func createTestStore(t *testing.T) *SQLite {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// queueCells builds a well-formed queue row.
func queueCells(user string) []string {
	return []string{"2026-01-01T12:00:00Z", user, "chat-1", "BREAK_START", "cf+2", "id-" + user}
}

// backends returns one instance of every Store implementation.
func backends(t *testing.T) map[string]Store {
	t.Helper()
	mem := NewMemory()
	t.Cleanup(func() { mem.Close() })
	return map[string]Store{
		"sqlite": createTestStore(t),
		"memory": mem,
	}
}
