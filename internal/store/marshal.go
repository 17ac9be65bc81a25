package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// marshalCells encodes row cells as a JSON array for the cells column.
// HTML escaping is disabled so stored text matches what users typed.
func marshalCells(cells []string) (string, error) {
	if cells == nil {
		cells = []string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(cells); err != nil {
		return "", fmt.Errorf("marshal cells: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalCells parses a JSON array back into row cells.
func unmarshalCells(data string) ([]string, error) {
	if data == "" {
		return []string{}, nil
	}
	var cells []string
	if err := json.Unmarshal([]byte(data), &cells); err != nil {
		return nil, fmt.Errorf("unmarshal cells: %w", err)
	}
	if cells == nil {
		cells = []string{}
	}
	return cells, nil
}
