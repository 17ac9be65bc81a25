package store

import (
	"context"
	"fmt"
)

// Scan returns every row of a table ordered by key.
// Returns an empty slice (not nil) if the table has no rows.
func (s *SQLite) Scan(ctx context.Context, t Table) ([]Row, error) {
	if err := checkRow(t, nil); err != nil {
		return nil, wrapErr("scan", t, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT key, cells
		FROM rows
		WHERE tbl = ?
		ORDER BY key ASC
	`, string(t))
	if err != nil {
		return nil, wrapErr("scan", t, err)
	}
	defer rows.Close()

	out := []Row{}
	for rows.Next() {
		var (
			key  int64
			data string
		)
		if err := rows.Scan(&key, &data); err != nil {
			return nil, wrapErr("scan", t, fmt.Errorf("scan row: %w", err))
		}
		cells, err := unmarshalCells(data)
		if err != nil {
			return nil, wrapErr("scan", t, fmt.Errorf("row %d: %w", key, err))
		}
		out = append(out, Row{Key: key, Cells: cells})
	}

	if err := rows.Err(); err != nil {
		return nil, wrapErr("scan", t, fmt.Errorf("iterate rows: %w", err))
	}

	return out, nil
}

// Count returns the number of rows in a table.
func (s *SQLite) Count(ctx context.Context, t Table) (int, error) {
	if err := checkRow(t, nil); err != nil {
		return 0, wrapErr("count", t, err)
	}

	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM rows WHERE tbl = ?
	`, string(t)).Scan(&n)
	if err != nil {
		return 0, wrapErr("count", t, err)
	}
	return n, nil
}
