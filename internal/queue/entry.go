package queue

import (
	"errors"
	"fmt"
	"time"

	"github.com/roach88/breakq/internal/store"
)

// Action is the kind of state transition a queued request asks for.
// Values are the names persisted in the ACTION column.
type Action string

const (
	// ActionStart starts the break named by Entry.Param.
	ActionStart Action = "BREAK_START"
	// ActionEnd ends the user's active break.
	ActionEnd Action = "BREAK_END"
	// ActionCancel discards the user's active break without logging it.
	ActionCancel Action = "BREAK_CANCEL"
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionStart, ActionEnd, ActionCancel:
		return true
	}
	return false
}

// ErrMalformedEntry marks a queue row that cannot be decoded.
var ErrMalformedEntry = errors.New("malformed queue entry")

// Entry is one pending request.
//
// Ownership: the queue owns an entry until the processor takes it from a
// snapshot; the processor then owns it until it removes the row.
type Entry struct {
	Key          int64 // store key; stable identity for removal
	ID           string
	EnqueuedAt   time.Time
	User         string
	ReplyChannel string
	Action       Action
	Param        string

	// Err is set when the underlying row could not be decoded. Such entries
	// are still handed to the processor so they can be dropped.
	Err error
}

// Queue row columns, matching store.Header(store.TableQueue).
const (
	colEnqueuedAt = iota
	colUser
	colReplyChannel
	colAction
	colParam
	colEntryID
)

// cells encodes the entry into the persisted row layout.
func (e Entry) cells() []string {
	return []string{
		e.EnqueuedAt.UTC().Format(time.RFC3339Nano),
		e.User,
		e.ReplyChannel,
		string(e.Action),
		e.Param,
		e.ID,
	}
}

// entryFromRow decodes a queue row. Decoding problems are reported through
// Entry.Err rather than dropped, so a poisoned row is visible to callers.
func entryFromRow(r store.Row) Entry {
	e := Entry{
		Key:          r.Key,
		User:         r.Cell(colUser),
		ReplyChannel: r.Cell(colReplyChannel),
		Action:       Action(r.Cell(colAction)),
		Param:        r.Cell(colParam),
		ID:           r.Cell(colEntryID),
	}

	ts, err := time.Parse(time.RFC3339Nano, r.Cell(colEnqueuedAt))
	switch {
	case err != nil:
		e.Err = fmt.Errorf("%w: row %d timestamp: %v", ErrMalformedEntry, r.Key, err)
	case e.User == "":
		e.Err = fmt.Errorf("%w: row %d has no user", ErrMalformedEntry, r.Key)
	case !e.Action.Valid():
		e.Err = fmt.Errorf("%w: row %d action %q", ErrMalformedEntry, r.Key, e.Action)
	}
	e.EnqueuedAt = ts
	return e
}
