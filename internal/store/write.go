package store

import (
	"context"
	"fmt"
	"strings"
)

// Append inserts one row at the end of a table.
// The single INSERT is atomic; the returned key is the new row's position
// in insertion order.
func (s *SQLite) Append(ctx context.Context, t Table, cells []string) (Row, error) {
	if err := checkRow(t, cells); err != nil {
		return Row{}, wrapErr("append", t, err)
	}

	data, err := marshalCells(cells)
	if err != nil {
		return Row{}, wrapErr("append", t, err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO rows (tbl, cells)
		VALUES (?, ?)
	`, string(t), data)
	if err != nil {
		return Row{}, wrapErr("append", t, err)
	}

	key, err := res.LastInsertId()
	if err != nil {
		return Row{}, wrapErr("append", t, fmt.Errorf("last insert id: %w", err))
	}

	out := make([]string, len(cells))
	copy(out, cells)
	return Row{Key: key, Cells: out}, nil
}

// Delete removes the given keys from a table in one statement.
// Rows that are not present are ignored, so repeating a delete is harmless.
func (s *SQLite) Delete(ctx context.Context, t Table, keys ...int64) (int, error) {
	if err := checkRow(t, nil); err != nil {
		return 0, wrapErr("delete", t, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, 0, len(keys)+1)
	args = append(args, string(t))
	for _, k := range keys {
		args = append(args, k)
	}

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM rows WHERE tbl = ? AND key IN ("+placeholders+")",
		args...,
	)
	if err != nil {
		return 0, wrapErr("delete", t, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapErr("delete", t, fmt.Errorf("rows affected: %w", err))
	}
	return int(n), nil
}
