// Package queue is the durable FIFO of pending break requests.
//
// Entries are rows of store.TableQueue; insertion order is enqueue order.
// The queue adds no locking of its own. The ingress gate serializes
// check-then-enqueue per user, and only the batch processor removes rows.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/breakq/internal/store"
)

// Queue is a FIFO of Entry values persisted in a Store.
type Queue struct {
	store store.Store
	ids   IDGenerator
}

// New creates a queue over s. A nil generator selects UUIDv7Generator.
func New(s store.Store, ids IDGenerator) *Queue {
	if ids == nil {
		ids = UUIDv7Generator{}
	}
	return &Queue{store: s, ids: ids}
}

// Enqueue appends a request to the back of the queue and returns the stored
// entry, including its key and id.
func (q *Queue) Enqueue(ctx context.Context, at time.Time, user, reply string, action Action, param string) (Entry, error) {
	if !action.Valid() {
		return Entry{}, fmt.Errorf("enqueue: unknown action %q", action)
	}

	e := Entry{
		ID:           q.ids.Generate(),
		EnqueuedAt:   at,
		User:         user,
		ReplyChannel: reply,
		Action:       action,
		Param:        param,
	}

	row, err := q.store.Append(ctx, store.TableQueue, e.cells())
	if err != nil {
		return Entry{}, fmt.Errorf("enqueue %s: %w", user, err)
	}
	e.Key = row.Key
	return e, nil
}

// Snapshot returns every pending entry in FIFO order.
func (q *Queue) Snapshot(ctx context.Context) ([]Entry, error) {
	rows, err := q.store.Scan(ctx, store.TableQueue)
	if err != nil {
		return nil, fmt.Errorf("queue snapshot: %w", err)
	}

	entries := make([]Entry, len(rows))
	for i, r := range rows {
		entries[i] = entryFromRow(r)
	}
	return entries, nil
}

// Head returns up to n entries from the front of the queue, along with the
// total number of entries observed in the same snapshot.
func (q *Queue) Head(ctx context.Context, n int) ([]Entry, int, error) {
	all, err := q.Snapshot(ctx)
	if err != nil {
		return nil, 0, err
	}
	if n < 0 {
		n = 0
	}
	if n > len(all) {
		n = len(all)
	}
	return all[:n], len(all), nil
}

// Len returns the number of pending entries.
func (q *Queue) Len(ctx context.Context) (int, error) {
	n, err := q.store.Count(ctx, store.TableQueue)
	if err != nil {
		return 0, fmt.Errorf("queue len: %w", err)
	}
	return n, nil
}

// HasPending reports whether user already has an entry in the queue.
func (q *Queue) HasPending(ctx context.Context, user string) (bool, error) {
	rows, err := q.store.Scan(ctx, store.TableQueue)
	if err != nil {
		return false, fmt.Errorf("check pending %s: %w", user, err)
	}
	for _, r := range rows {
		if r.Cell(colUser) == user {
			return true, nil
		}
	}
	return false, nil
}

// Remove deletes entries by key. Untouched entries keep their order.
func (q *Queue) Remove(ctx context.Context, keys ...int64) (int, error) {
	n, err := q.store.Delete(ctx, store.TableQueue, keys...)
	if err != nil {
		return 0, fmt.Errorf("queue remove: %w", err)
	}
	return n, nil
}

// Clear removes every pending entry and reports how many were dropped.
func (q *Queue) Clear(ctx context.Context) (int, error) {
	rows, err := q.store.Scan(ctx, store.TableQueue)
	if err != nil {
		return 0, fmt.Errorf("queue clear: %w", err)
	}
	keys := make([]int64, len(rows))
	for i, r := range rows {
		keys[i] = r.Key
	}
	return q.Remove(ctx, keys...)
}
