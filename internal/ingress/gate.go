// Package ingress admits break requests into the queue.
//
// The gate classifies raw text, rejects unknown codes without queueing, and
// keeps at most one pending entry per user. The duplicate check and the
// append run under a per-user lock, so concurrent submissions from one user
// cannot both pass the check. With Options.UserLocks set, that lock also
// spans processes sharing one database.
package ingress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/breakq/internal/catalog"
	"github.com/roach88/breakq/internal/clock"
	"github.com/roach88/breakq/internal/notify"
	"github.com/roach88/breakq/internal/queue"
)

// AnonymousUser names requests that arrive without an identity.
const AnonymousUser = "Anonymous"

// DefaultExpectedWait is the wait quoted in acknowledgements.
const DefaultExpectedWait = 10 * time.Second

// Request is one inbound message.
type Request struct {
	User         string
	ReplyChannel string
	Text         string
}

// Status is the synchronous result of a submission.
type Status string

const (
	StatusQueued   Status = "queued"
	StatusRejected Status = "rejected"
)

// Outcome reports what the gate did with a request.
type Outcome struct {
	Status  Status
	User    string
	Command Command
	Entry   queue.Entry // set when queued
	Reason  error       // set when rejected
	Ack     string      // acknowledgement sent to the requester
}

// DefaultLockWait bounds the wait for another submission by the same user.
const DefaultLockWait = 2 * time.Second

// ErrUserBusy is returned when another submission for the same user held the
// user lock for longer than the lock wait.
var ErrUserBusy = errors.New("another request for this user is being admitted")

// UserLocker serializes admissions for one user. It is implemented by
// store.LeaseSet.
type UserLocker interface {
	TryLock(ctx context.Context, user string, wait time.Duration) (unlock func(), ok bool, err error)
}

// Options configures a Gate. Zero values select defaults.
type Options struct {
	Clock        clock.Clock
	Notifier     notify.Notifier
	Logger       *slog.Logger
	ExpectedWait time.Duration
	UserLocks    UserLocker // nil: the in-process lock only
	LockWait     time.Duration
}

// Gate validates, deduplicates and enqueues requests.
//
// Thread-safety: Submit is safe for concurrent use.
type Gate struct {
	queue    *queue.Queue
	catalog  *catalog.Catalog
	clock    clock.Clock
	notifier notify.Notifier
	logger   *slog.Logger
	wait     time.Duration
	locks    *KeyedMutex
	shared   UserLocker
	lockWait time.Duration
}

// NewGate creates a gate that admits requests into q.
func NewGate(q *queue.Queue, cat *catalog.Catalog, opts Options) *Gate {
	g := &Gate{
		queue:    q,
		catalog:  cat,
		clock:    opts.Clock,
		notifier: opts.Notifier,
		logger:   opts.Logger,
		wait:     opts.ExpectedWait,
		locks:    NewKeyedMutex(),
		shared:   opts.UserLocks,
		lockWait: opts.LockWait,
	}
	if g.clock == nil {
		g.clock = clock.System{}
	}
	if g.notifier == nil {
		g.notifier = notify.Discard
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	if g.wait <= 0 {
		g.wait = DefaultExpectedWait
	}
	if g.lockWait <= 0 {
		g.lockWait = DefaultLockWait
	}
	return g
}

// Submit classifies and admits one request.
//
// Rejections return a rejected Outcome together with ErrInvalidCode,
// ErrDuplicatePending or ErrUserBusy. Store failures return the error with
// a rejected Outcome; the requester still receives an acknowledgement.
func (g *Gate) Submit(ctx context.Context, req Request) (Outcome, error) {
	user := strings.TrimSpace(req.User)
	if user == "" {
		user = AnonymousUser
	}
	out := Outcome{User: user}

	cmd, err := Parse(g.catalog, req.Text)
	if err != nil {
		out.Status = StatusRejected
		out.Reason = err
		out.Ack = invalidAck(user, g.catalog)
		g.logger.InfoContext(ctx, "rejected invalid code", "user", user, "text", req.Text)
		notify.Send(ctx, g.notifier, g.logger, req.ReplyChannel, out.Ack)
		return out, err
	}
	out.Command = cmd

	entry, err := g.admitLocked(ctx, user, req.ReplyChannel, cmd)

	switch {
	case err == nil:
		out.Status = StatusQueued
		out.Entry = entry
		out.Ack = queuedAck(user, g.wait)
		g.logger.InfoContext(ctx, "request queued",
			"user", user, "entry_id", entry.ID, "action", cmd.Action, "code", cmd.Code)
	case errors.Is(err, ErrDuplicatePending):
		out.Status = StatusRejected
		out.Reason = err
		out.Ack = duplicateAck(user)
		g.logger.InfoContext(ctx, "rejected duplicate request", "user", user, "action", cmd.Action)
	case errors.Is(err, ErrUserBusy):
		out.Status = StatusRejected
		out.Reason = err
		out.Ack = duplicateAck(user)
		g.logger.WarnContext(ctx, "user lock busy", "user", user, "wait", g.lockWait)
	default:
		out.Status = StatusRejected
		out.Reason = err
		out.Ack = failureAck(user)
		g.logger.ErrorContext(ctx, "submit failed", "user", user, "error", err)
	}

	notify.Send(ctx, g.notifier, g.logger, req.ReplyChannel, out.Ack)
	return out, err
}

// admitLocked runs admit under the in-process user lock and, when
// configured, the shared one.
func (g *Gate) admitLocked(ctx context.Context, user, reply string, cmd Command) (queue.Entry, error) {
	unlock := g.locks.Lock(user)
	defer unlock()

	if g.shared != nil {
		release, ok, err := g.shared.TryLock(ctx, user, g.lockWait)
		if err != nil {
			return queue.Entry{}, fmt.Errorf("lock %s: %w", user, err)
		}
		if !ok {
			return queue.Entry{}, ErrUserBusy
		}
		defer release()
	}
	return g.admit(ctx, user, reply, cmd)
}

// admit runs the duplicate check and the append. Callers hold the user lock.
func (g *Gate) admit(ctx context.Context, user, reply string, cmd Command) (queue.Entry, error) {
	pending, err := g.queue.HasPending(ctx, user)
	if err != nil {
		return queue.Entry{}, err
	}
	if pending {
		return queue.Entry{}, ErrDuplicatePending
	}
	entry, err := g.queue.Enqueue(ctx, g.clock.Now(), user, reply, cmd.Action, cmd.Code)
	if err != nil {
		return queue.Entry{}, fmt.Errorf("admit %s: %w", user, err)
	}
	return entry, nil
}

func queuedAck(user string, wait time.Duration) string {
	return fmt.Sprintf("@%s: processing your request... (~%d sec)", user, int(wait.Round(time.Second)/time.Second))
}

func duplicateAck(user string) string {
	return fmt.Sprintf("@%s: your previous request is still processing... Please wait!", user)
}

func invalidAck(user string, cat *catalog.Catalog) string {
	return fmt.Sprintf("@%s: not a valid break code. Try one of: %s, or \"back\" to return.",
		user, strings.Join(cat.Codes(), ", "))
}

func failureAck(user string) string {
	return fmt.Sprintf("@%s: error processing request. Please try again.", user)
}
