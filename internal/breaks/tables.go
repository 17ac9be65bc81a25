package breaks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/breakq/internal/store"
)

// Tables reads and writes the live-breaks table and the punch log.
//
// Reads tolerate corrupt rows: they are skipped with a warning and left for
// the audit detectors to report.
type Tables struct {
	store  store.Store
	loc    *time.Location
	logger *slog.Logger
}

// NewTables creates a repository over s. Dates are bucketed in loc.
func NewTables(s store.Store, loc *time.Location) *Tables {
	if loc == nil {
		loc = time.UTC
	}
	return &Tables{store: s, loc: loc, logger: slog.Default()}
}

// Location returns the zone records are written in.
func (t *Tables) Location() *time.Location { return t.loc }

// Active returns every decodable live break in insertion order.
func (t *Tables) Active(ctx context.Context) ([]ActiveRecord, error) {
	rows, err := t.store.Scan(ctx, store.TableLiveBreaks)
	if err != nil {
		return nil, fmt.Errorf("read live breaks: %w", err)
	}
	out := make([]ActiveRecord, 0, len(rows))
	for _, row := range rows {
		r, err := DecodeActive(row, t.loc)
		if err != nil {
			t.logger.Warn("skipping live break row", "key", row.Key, "error", err)
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// ActiveFor returns the live breaks held by user. More than one result
// means the single-active-break invariant was broken outside the processor.
func (t *Tables) ActiveFor(ctx context.Context, user string) ([]ActiveRecord, error) {
	all, err := t.Active(ctx)
	if err != nil {
		return nil, err
	}
	var out []ActiveRecord
	for _, r := range all {
		if r.User == user {
			out = append(out, r)
		}
	}
	return out, nil
}

// Completed returns every decodable punch-log row in insertion order.
func (t *Tables) Completed(ctx context.Context) ([]CompletedRecord, error) {
	rows, err := t.store.Scan(ctx, store.TablePunchLog)
	if err != nil {
		return nil, fmt.Errorf("read punch log: %w", err)
	}
	out := make([]CompletedRecord, 0, len(rows))
	for _, row := range rows {
		r, err := DecodeCompleted(row, t.loc)
		if err != nil {
			t.logger.Warn("skipping punch log row", "key", row.Key, "error", err)
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// History returns the punch-log rows of user, optionally restricted to one
// M/D/YYYY date. An empty user matches everyone.
func (t *Tables) History(ctx context.Context, user, date string) ([]CompletedRecord, error) {
	all, err := t.Completed(ctx)
	if err != nil {
		return nil, err
	}
	var out []CompletedRecord
	for _, r := range all {
		if user != "" && r.User != user {
			continue
		}
		if date != "" && r.Date() != date {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (t *Tables) insertActive(ctx context.Context, r ActiveRecord) (ActiveRecord, error) {
	row, err := t.store.Append(ctx, store.TableLiveBreaks, r.cells())
	if err != nil {
		return ActiveRecord{}, fmt.Errorf("insert live break for %s: %w", r.User, err)
	}
	r.Key = row.Key
	return r, nil
}

func (t *Tables) appendCompleted(ctx context.Context, r CompletedRecord) (CompletedRecord, error) {
	row, err := t.store.Append(ctx, store.TablePunchLog, r.cells())
	if err != nil {
		return CompletedRecord{}, fmt.Errorf("append punch log for %s: %w", r.User, err)
	}
	r.Key = row.Key
	return r, nil
}

func (t *Tables) deleteActive(ctx context.Context, keys ...int64) error {
	if _, err := t.store.Delete(ctx, store.TableLiveBreaks, keys...); err != nil {
		return fmt.Errorf("delete live break: %w", err)
	}
	return nil
}
