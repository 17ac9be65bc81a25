package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/breakq/internal/breaks"
	"github.com/roach88/breakq/internal/clock"
	"github.com/roach88/breakq/internal/notify"
	"github.com/roach88/breakq/internal/queue"
)

// DefaultBatchSize is the number of entries applied per run.
const DefaultBatchSize = 10

// DefaultLockWait is how long a run waits for the lock token before skipping.
const DefaultLockWait = 2 * time.Second

// Outcome is the result class of one processed entry.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"  // domain rejection
	OutcomeFaulted   Outcome = "faulted" // store fault, panic or bad row
)

// EntryResult records what happened to one entry.
type EntryResult struct {
	Entry   queue.Entry
	Outcome Outcome
	Message string // text sent to the requester
	Err     error
}

// Report summarizes one batch run.
type Report struct {
	Run       int64
	Processed int
	Succeeded int
	Failed    int // includes faulted entries
	Faulted   int
	Reclaimed int // applied by an earlier run whose removal failed
	Remaining int
	QueueSize int // queue length observed at the start of the run
	Elapsed   time.Duration
	Skipped   bool
	Results   []EntryResult
}

// Options configures a Processor. Zero values select defaults.
type Options struct {
	BatchSize int
	LockWait  time.Duration
	Locker    Locker
	Clock     clock.Clock
	Notifier  notify.Notifier
	Logger    *slog.Logger
}

// Processor drains the queue into the break state machine.
//
// CRITICAL: every run holds the lock token end to end. Entries within a run
// are applied strictly one after another; this is the only place break
// tables are mutated. Replies are sent after the token is released.
//
// Thread-safety: RunBatch may be called from several goroutines; overlapping
// calls are serialized or skipped by the Locker.
type Processor struct {
	queue    *queue.Queue
	machine  *breaks.Machine
	batch    int
	lockWait time.Duration
	locker   Locker
	clock    clock.Clock
	notifier notify.Notifier
	logger   *slog.Logger
	runs     atomic.Int64

	// Row keys applied but not yet removed from the queue.
	mu      sync.Mutex
	applied map[int64]struct{}
}

// NewProcessor creates a processor reading q and applying entries to m.
func NewProcessor(q *queue.Queue, m *breaks.Machine, opts Options) *Processor {
	p := &Processor{
		queue:    q,
		machine:  m,
		batch:    opts.BatchSize,
		lockWait: opts.LockWait,
		locker:   opts.Locker,
		clock:    opts.Clock,
		notifier: opts.Notifier,
		logger:   opts.Logger,
		applied:  make(map[int64]struct{}),
	}
	if p.batch <= 0 {
		p.batch = DefaultBatchSize
	}
	if p.lockWait < 0 {
		p.lockWait = 0
	}
	if p.locker == nil {
		p.locker = NewLocalLocker()
	}
	if p.clock == nil {
		p.clock = clock.System{}
	}
	if p.notifier == nil {
		p.notifier = notify.Discard
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// BatchSize returns the configured batch size.
func (p *Processor) BatchSize() int { return p.batch }

// RunBatch applies up to BatchSize entries from the front of the queue.
//
// Every entry taken is removed afterwards, whatever its outcome, in a single
// delete. If that delete fails the entries stay queued, and the next run
// removes them without applying them again. If the lock token stays busy for
// LockWait the run is skipped and the report has Skipped set.
//
// ERROR HANDLING: per-entry failures never abort the run. The returned error
// is reserved for failures to read or trim the queue itself.
func (p *Processor) RunBatch(ctx context.Context) (Report, error) {
	unlock, ok, err := p.locker.TryLock(ctx, p.lockWait)
	if err != nil {
		return Report{}, fmt.Errorf("acquire processor lock: %w", err)
	}
	if !ok {
		p.logger.Warn("batch skipped: processor lock busy", "wait", p.lockWait)
		return Report{Skipped: true}, nil
	}

	rep, err := p.runLocked(ctx, unlock)

	for _, res := range rep.Results {
		notify.Send(ctx, p.notifier, p.logger, res.Entry.ReplyChannel, res.Message)
	}
	return rep, err
}

// runLocked performs one pass and releases the token before returning.
func (p *Processor) runLocked(ctx context.Context, unlock func()) (Report, error) {
	defer unlock()

	rep := Report{Run: p.runs.Add(1)}
	start := p.clock.Now()

	entries, total, err := p.queue.Head(ctx, p.batch)
	if err != nil {
		return rep, fmt.Errorf("read queue: %w", err)
	}
	rep.QueueSize = total
	if total == 0 {
		p.logger.Debug("queue is empty", "run", rep.Run)
		return rep, nil
	}

	p.logger.Info("batch started", "run", rep.Run, "queue_len", total, "batch_size", p.batch)

	keys := make([]int64, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key)
		if p.wasApplied(e.Key) {
			p.logger.Info("removing entry applied by an earlier run", "run", rep.Run, "entry_id", e.ID, "key", e.Key)
			rep.Reclaimed++
			continue
		}

		res := p.process(ctx, e)
		p.markApplied(e.Key)
		rep.Results = append(rep.Results, res)

		rep.Processed++
		switch res.Outcome {
		case OutcomeSucceeded:
			rep.Succeeded++
		case OutcomeFailed:
			rep.Failed++
		case OutcomeFaulted:
			rep.Failed++
			rep.Faulted++
		}
	}

	if _, err := p.queue.Remove(ctx, keys...); err != nil {
		p.logger.Error("failed to remove processed entries", "run", rep.Run, "count", len(keys), "error", err)
		return rep, fmt.Errorf("remove processed entries: %w", err)
	}
	p.forget(keys)

	rep.Remaining = total - len(keys)
	rep.Elapsed = p.clock.Now().Sub(start)

	p.logger.Info("batch complete",
		"run", rep.Run,
		"processed", rep.Processed,
		"succeeded", rep.Succeeded,
		"failed", rep.Failed,
		"faulted", rep.Faulted,
		"reclaimed", rep.Reclaimed,
		"remaining", rep.Remaining,
		"elapsed", rep.Elapsed,
	)
	return rep, nil
}

func (p *Processor) wasApplied(key int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.applied[key]
	return ok
}

func (p *Processor) markApplied(key int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applied[key] = struct{}{}
}

func (p *Processor) forget(keys []int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, k := range keys {
		delete(p.applied, k)
	}
}

// Drain runs batches until the queue is empty, a run is skipped, or maxRuns
// runs have happened. maxRuns <= 0 means no limit.
func (p *Processor) Drain(ctx context.Context, maxRuns int) ([]Report, error) {
	var reports []Report
	for maxRuns <= 0 || len(reports) < maxRuns {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		rep, err := p.RunBatch(ctx)
		if err != nil {
			return reports, err
		}
		reports = append(reports, rep)
		if rep.Skipped || rep.Remaining == 0 {
			break
		}
	}
	return reports, nil
}

// process applies one entry, turning panics and store errors into faults.
func (p *Processor) process(ctx context.Context, e queue.Entry) (res EntryResult) {
	res.Entry = e

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("entry panicked",
				"entry_id", e.ID,
				"user", e.User,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			res = p.fault(e, ErrCodePanic, fmt.Errorf("panic: %v", r))
		}
	}()

	if e.Err != nil {
		return p.fault(e, ErrCodeMalformedEntry, e.Err)
	}

	now := p.clock.Now()
	var (
		msg string
		err error
	)
	switch e.Action {
	case queue.ActionStart:
		var r breaks.StartResult
		r, err = p.machine.Start(ctx, e.User, e.Param, e.ReplyChannel, now)
		msg = r.Message
	case queue.ActionEnd:
		var r breaks.EndResult
		r, err = p.machine.End(ctx, e.User, e.ReplyChannel, now)
		msg = r.Message
	case queue.ActionCancel:
		var r breaks.CancelResult
		r, err = p.machine.Cancel(ctx, e.User)
		msg = r.Message
	default:
		return p.fault(e, ErrCodeUnknownAction, fmt.Errorf("action %q", e.Action))
	}

	switch {
	case err == nil:
		p.logger.Debug("entry applied", "entry_id", e.ID, "user", e.User, "action", e.Action, "code", e.Param)
		return EntryResult{Entry: e, Outcome: OutcomeSucceeded, Message: msg}
	case breaks.IsRejection(err):
		p.logger.Info("entry rejected",
			"entry_id", e.ID,
			"user", e.User,
			"action", e.Action,
			"reason", err,
			"category", breaks.Classify(err),
		)
		return EntryResult{Entry: e, Outcome: OutcomeFailed, Message: breaks.Describe(e.User, err), Err: err}
	default:
		return p.fault(e, ErrCodeStoreFault, err)
	}
}

func (p *Processor) fault(e queue.Entry, code FaultCode, cause error) EntryResult {
	fe := &FaultError{Code: code, EntryID: e.ID, User: e.User, Err: cause}
	p.logger.Error("entry faulted; dropping", "entry_id", e.ID, "user", e.User, "key", e.Key, "error", fe)
	return EntryResult{
		Entry:   e,
		Outcome: OutcomeFaulted,
		Message: breaks.Describe(e.User, fe),
		Err:     fe,
	}
}
