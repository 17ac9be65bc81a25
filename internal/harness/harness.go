package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/roach88/breakq/internal/breaks"
	"github.com/roach88/breakq/internal/catalog"
	"github.com/roach88/breakq/internal/clock"
	"github.com/roach88/breakq/internal/engine"
	"github.com/roach88/breakq/internal/ingress"
	"github.com/roach88/breakq/internal/notify"
	"github.com/roach88/breakq/internal/queue"
	"github.com/roach88/breakq/internal/store"
	"github.com/roach88/breakq/internal/testutil"
)

// Env is the wiring a scenario runs against: an in-memory store, a manual
// clock, sequential entry IDs and a notification recorder around the real
// gate and processor.
type Env struct {
	Store     *store.Memory
	Clock     *testutil.ManualClock
	Queue     *queue.Queue
	Gate      *ingress.Gate
	Processor *engine.Processor
	Machine   *breaks.Machine
	Messages  *notify.Recorder

	summary bool
}

// NewEnv builds the environment for a scenario. The caller closes Store.
func NewEnv(s *Scenario, logger *slog.Logger) (*Env, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	startText := s.Start
	if startText == "" {
		startText = DefaultStart
	}
	start, err := time.Parse(time.RFC3339, startText)
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	loc, err := clock.LoadZone(s.Timezone)
	if err != nil {
		return nil, err
	}

	cat := catalog.Default()
	if s.Catalog != "" {
		if cat, err = catalog.Load(s.Catalog); err != nil {
			return nil, err
		}
	}

	env := &Env{
		Store:    store.NewMemory(),
		Clock:    testutil.NewManualClock(start.In(loc)),
		Messages: &notify.Recorder{},
		summary:  s.Trace == TraceSummary,
	}
	env.Queue = queue.New(env.Store, testutil.NewSequenceIDs("entry"))
	env.Machine = breaks.NewMachine(env.Store, cat, loc).WithLogger(logger)
	env.Gate = ingress.NewGate(env.Queue, cat, ingress.Options{
		Clock:    env.Clock,
		Notifier: env.Messages,
		Logger:   logger,
	})
	env.Processor = engine.NewProcessor(env.Queue, env.Machine, engine.Options{
		BatchSize: s.BatchSize,
		Clock:     env.Clock,
		Notifier:  env.Messages,
		Logger:    logger,
	})
	return env, nil
}

// Run executes a scenario and evaluates its assertions.
// Step expectation mismatches and failed assertions are reported in the
// Result; infrastructure failures are returned as errors.
func Run(ctx context.Context, s *Scenario) (*Result, error) {
	return RunWithLogger(ctx, s, nil)
}

// RunWithLogger is Run with engine logging routed to logger.
func RunWithLogger(ctx context.Context, s *Scenario, logger *slog.Logger) (*Result, error) {
	env, err := NewEnv(s, logger)
	if err != nil {
		return nil, err
	}
	defer env.Store.Close()

	result := NewResult()
	for i, step := range s.Steps {
		if err := env.step(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	actx := &AssertionContext{Ctx: ctx, Store: env.Store, Queue: env.Queue}
	for _, msg := range EvaluateAssertions(result, s.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func (env *Env) step(ctx context.Context, i int, st Step, result *Result) error {
	switch {
	case st.Submit != nil:
		return env.submit(ctx, i, *st.Submit, result)
	case st.Rush != nil:
		return env.rush(ctx, *st.Rush, result)
	case st.Advance != "":
		d, err := time.ParseDuration(st.Advance)
		if err != nil {
			return err
		}
		env.Clock.Advance(d)
		result.add(TraceEvent{Type: EventAdvance, Duration: d.String()})
		return nil
	case st.Run > 0:
		for range st.Run {
			rep, err := env.Processor.RunBatch(ctx)
			if err != nil {
				return err
			}
			env.record(rep, result)
		}
		return nil
	case st.Drain:
		reports, err := env.Processor.Drain(ctx, 0)
		for _, rep := range reports {
			env.record(rep, result)
		}
		return err
	}
	return errors.New("empty step")
}

func (env *Env) submit(ctx context.Context, i int, st SubmitStep, result *Result) error {
	reply := st.Reply
	if reply == "" {
		reply = "dm:" + st.User
	}
	out, err := env.Gate.Submit(ctx, ingress.Request{User: st.User, ReplyChannel: reply, Text: st.Text})
	reason, infra := reasonOf(err)
	if infra != nil {
		return infra
	}

	got := ExpectQueued
	if reason != "" {
		got = reason
	}
	if st.Expect != "" && st.Expect != got {
		result.AddError(fmt.Sprintf("steps[%d]: submit %q for %s: expected %s, got %s", i, st.Text, out.User, st.Expect, got))
	}

	result.add(TraceEvent{
		Type:    EventSubmit,
		User:    out.User,
		Text:    st.Text,
		Status:  string(out.Status),
		Reason:  reason,
		Action:  string(out.Command.Action),
		Code:    out.Command.Code,
		EntryID: out.Entry.ID,
	})
	return nil
}

// rush submits concurrently, then records events in user order.
func (env *Env) rush(ctx context.Context, st RushStep, result *Result) error {
	prefix := st.Prefix
	if prefix == "" {
		prefix = "user"
	}

	outs := make([]ingress.Outcome, st.Users)
	errs := make([]error, st.Users)
	var wg sync.WaitGroup
	for i := range st.Users {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("%s-%02d", prefix, i)
			outs[i], errs[i] = env.Gate.Submit(ctx, ingress.Request{User: user, ReplyChannel: "dm:" + user, Text: st.Text})
		}(i)
	}
	wg.Wait()

	sort.SliceStable(outs, func(a, b int) bool { return outs[a].User < outs[b].User })
	for i, out := range outs {
		reason, infra := reasonOf(errs[i])
		if infra != nil {
			return infra
		}
		result.add(TraceEvent{
			Type:   EventSubmit,
			User:   out.User,
			Text:   st.Text,
			Status: string(out.Status),
			Reason: reason,
			Action: string(out.Command.Action),
			Code:   out.Command.Code,
		})
	}
	return nil
}

// record appends a run summary, preceded by per-entry events in full mode.
func (env *Env) record(rep engine.Report, result *Result) {
	result.Runs++
	if !env.summary {
		for _, r := range rep.Results {
			result.add(TraceEvent{
				Type:    EventProcess,
				User:    r.Entry.User,
				Action:  string(r.Entry.Action),
				Code:    r.Entry.Param,
				EntryID: r.Entry.ID,
				Outcome: string(r.Outcome),
				Message: r.Message,
			})
		}
	}
	result.add(TraceEvent{
		Type:      EventRun,
		Run:       rep.Run,
		Processed: rep.Processed,
		Succeeded: rep.Succeeded,
		Failed:    rep.Failed,
		Remaining: rep.Remaining,
		Skipped:   rep.Skipped,
	})
}

// reasonOf maps gate rejections to expectation names. Any other error is
// returned as infra.
func reasonOf(err error) (reason string, infra error) {
	switch {
	case err == nil:
		return "", nil
	case errors.Is(err, ingress.ErrDuplicatePending):
		return ExpectDuplicate, nil
	case errors.Is(err, ingress.ErrInvalidCode):
		return ExpectInvalid, nil
	}
	return "", err
}
