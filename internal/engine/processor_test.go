package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/breakq/internal/breaks"
	"github.com/roach88/breakq/internal/notify"
	"github.com/roach88/breakq/internal/queue"
	"github.com/roach88/breakq/internal/store"
)

func TestRunBatch_EmptyQueue(t *testing.T) {
	f := newFixture(t, Options{})

	rep, err := f.proc.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, rep.Processed)
	assert.Zero(t, rep.QueueSize)
	assert.False(t, rep.Skipped)
	assert.Empty(t, f.rec.Messages())
}

// Scenario A: a queued lunch request becomes one live break.
func TestRunBatch_StartCreatesLiveBreak(t *testing.T) {
	f := newFixture(t, Options{})
	f.submit(t, "alice", "cf+2")

	rep, err := f.proc.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Processed)
	assert.Equal(t, 1, rep.Succeeded)
	assert.Zero(t, rep.Remaining)

	live := f.rows(t, store.TableLiveBreaks)
	require.Len(t, live, 1)
	assert.Equal(t, "alice", live[0].Cell(2))
	assert.Equal(t, "cf+2", live[0].Cell(3))
	assert.Equal(t, breaks.StatusOnBreak, live[0].Cell(5))

	msgs := f.rec.For("alice")
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Lunch started (30 min)")
	assert.Empty(t, f.queueUsers(t))
}

// Scenario C: sixty users at once drain in exactly six runs of ten.
func TestRunBatch_LunchRushDrainsInSixRuns(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{BatchSize: 10})

	for i := 0; i < 60; i++ {
		f.submit(t, fmt.Sprintf("emp-%02d", i), "cf+2")
	}

	runs := 0
	for {
		n, err := f.queue.Len(ctx)
		require.NoError(t, err)
		if n == 0 {
			break
		}
		rep, err := f.proc.RunBatch(ctx)
		require.NoError(t, err)
		runs++
		assert.Equal(t, 10, rep.Processed, "run %d", runs)
		assert.Equal(t, 60-10*runs, rep.Remaining)
		require.LessOrEqual(t, runs, 6)
	}
	assert.Equal(t, 6, runs)

	live := f.rows(t, store.TableLiveBreaks)
	require.Len(t, live, 60)
	seen := make(map[string]bool)
	for _, r := range live {
		assert.False(t, seen[r.Cell(2)], "duplicate live break for %s", r.Cell(2))
		seen[r.Cell(2)] = true
	}
	assert.Len(t, f.rec.Messages(), 60)
}

func TestDrain_ReportsEveryRun(t *testing.T) {
	f := newFixture(t, Options{BatchSize: 4})
	for i := 0; i < 10; i++ {
		f.submit(t, fmt.Sprintf("u%d", i), "wc")
	}

	reports, err := f.proc.Drain(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, reports, 3)
	assert.Equal(t, []int{4, 4, 2}, []int{reports[0].Processed, reports[1].Processed, reports[2].Processed})
	assert.Equal(t, int64(3), reports[2].Run)

	limited, err := f.proc.Drain(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

// Scenario D: END after START moves the break to the punch log.
func TestRunBatch_EndCompletesBreak(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	f.submit(t, "alice", "cf+2")
	_, err := f.proc.RunBatch(ctx)
	require.NoError(t, err)

	f.clock.Advance(31 * time.Minute)
	f.submit(t, "alice", "back")
	rep, err := f.proc.RunBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Succeeded)

	assert.Empty(t, f.rows(t, store.TableLiveBreaks))
	logged := f.rows(t, store.TablePunchLog)
	require.Len(t, logged, 1)
	assert.Equal(t, "31", logged[0].Cell(4))
	assert.Equal(t, breaks.StatusCompleted, logged[0].Cell(6))

	msgs := f.rec.For("alice")
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1], "Over by 1 min")
}

// Scenario E: CANCEL with no live break is a NoActiveBreak failure.
func TestRunBatch_CancelWithoutBreakFails(t *testing.T) {
	f := newFixture(t, Options{})
	f.submit(t, "bob", "cancel")

	rep, err := f.proc.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Processed)
	assert.Equal(t, 1, rep.Failed)
	assert.Zero(t, rep.Faulted)
	require.Len(t, rep.Results, 1)
	assert.ErrorIs(t, rep.Results[0].Err, breaks.ErrNoActiveBreak)

	assert.Equal(t, []string{"@bob: you are not on a break."}, f.rec.For("bob"))
	assert.Empty(t, f.queueUsers(t), "rejected entries are consumed")
}

func TestRunBatch_CancelDiscardsBreak(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	f.submit(t, "bob", "sm")
	_, err := f.proc.RunBatch(ctx)
	require.NoError(t, err)

	f.submit(t, "bob", "c")
	rep, err := f.proc.RunBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Succeeded)
	assert.Empty(t, f.rows(t, store.TableLiveBreaks))
	assert.Empty(t, f.rows(t, store.TablePunchLog))
}

func TestRunBatch_DailyLimitEnforced(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	for _, text := range []string{"cf+2", "back", "cf+2"} {
		f.submit(t, "alice", text)
		f.clock.Advance(10 * time.Minute)
		_, err := f.proc.RunBatch(ctx)
		require.NoError(t, err)
	}

	msgs := f.rec.For("alice")
	require.Len(t, msgs, 3)
	assert.Contains(t, msgs[2], "daily limit reached for cf+2 (1/1 today)")
	assert.Empty(t, f.rows(t, store.TableLiveBreaks))
	assert.Len(t, f.rows(t, store.TablePunchLog), 1)
}

func TestRunBatch_AlreadyActiveOnOtherCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	f.submit(t, "alice", "cf")
	_, err := f.proc.RunBatch(ctx)
	require.NoError(t, err)

	f.submit(t, "alice", "wc")
	rep, err := f.proc.RunBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)
	assert.ErrorIs(t, rep.Results[0].Err, breaks.ErrAlreadyActive)
	assert.Len(t, f.rows(t, store.TableLiveBreaks), 1)
}

func TestRunBatch_KeepsOrderOfRemainder(t *testing.T) {
	f := newFixture(t, Options{BatchSize: 10})

	var users []string
	for i := 0; i < 15; i++ {
		u := fmt.Sprintf("u%02d", i)
		users = append(users, u)
		f.submit(t, u, "nm")
	}

	rep, err := f.proc.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 15, rep.QueueSize)
	assert.Equal(t, 10, rep.Processed)
	assert.Equal(t, 5, rep.Remaining)
	assert.Equal(t, users[10:], f.queueUsers(t))
}

func TestRunBatch_MalformedEntryDropped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	f.submit(t, "alice", "wc")
	_, err := f.store.Append(ctx, store.TableQueue, []string{"not-a-time", "mallory", "m", "BREAK_START", "wc", "x"})
	require.NoError(t, err)
	f.submit(t, "bob", "wc")

	rep, err := f.proc.RunBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Processed)
	assert.Equal(t, 2, rep.Succeeded)
	assert.Equal(t, 1, rep.Faulted)

	var fe *FaultError
	require.ErrorAs(t, rep.Results[1].Err, &fe)
	assert.Equal(t, ErrCodeMalformedEntry, fe.Code)
	assert.Equal(t, []string{"@mallory: error processing request. Please try again."}, f.rec.For("m"))
	assert.Empty(t, f.queueUsers(t))
}

func TestRunBatch_StoreFaultDropsEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	f.submit(t, "alice", "wc")
	_, err := f.proc.RunBatch(ctx)
	require.NoError(t, err)

	f.submit(t, "alice", "back")
	f.submit(t, "bob", "wc")
	f.store.set(func(h *hookStore) {
		h.onAppend = func(tbl store.Table) error {
			if tbl == store.TablePunchLog {
				return errors.New("disk full")
			}
			return nil
		}
	})

	rep, err := f.proc.RunBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Processed)
	assert.Equal(t, 1, rep.Faulted)
	assert.Equal(t, 1, rep.Succeeded, "a fault does not stop later entries")

	var fe *FaultError
	require.ErrorAs(t, rep.Results[0].Err, &fe)
	assert.Equal(t, ErrCodeStoreFault, fe.Code)
	assert.Equal(t, breaks.Transient, breaks.Classify(rep.Results[0].Err))
	assert.Empty(t, f.queueUsers(t), "faulted entries are not retried")

	msgs := f.rec.For("alice")
	assert.Equal(t, "@alice: error processing request. Please try again.", msgs[len(msgs)-1])
}

func TestRunBatch_PanicRecovered(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	f.submit(t, "alice", "wc")
	f.store.set(func(h *hookStore) {
		h.onScan = func(tbl store.Table) error {
			if tbl == store.TableLiveBreaks {
				panic("corrupted index")
			}
			return nil
		}
	})

	rep, err := f.proc.RunBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Faulted)
	assert.True(t, IsPanic(rep.Results[0].Err))
	assert.Empty(t, f.queueUsers(t))
}

func TestRunBatch_RemoveFailureKeepsEntries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.submit(t, "alice", "wc")
	f.submit(t, "bob", "cf")
	f.store.set(func(h *hookStore) {
		h.onDelete = func(tbl store.Table) error {
			if tbl == store.TableQueue {
				return errors.New("locked")
			}
			return nil
		}
	})

	rep, err := f.proc.RunBatch(ctx)
	require.Error(t, err)
	assert.Equal(t, 2, rep.Processed)
	assert.Equal(t, []string{"alice", "bob"}, f.queueUsers(t))
	assert.Len(t, f.rec.Messages(), 2, "replies are sent even when the trim fails")

	f.store.set(func(h *hookStore) { h.onDelete = nil })
	f.submit(t, "carol", "sm")

	rep, err = f.proc.RunBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Reclaimed, "applied entries are removed without a second pass")
	assert.Equal(t, 1, rep.Processed)
	assert.Zero(t, rep.Remaining)
	assert.Empty(t, f.queueUsers(t))

	require.Len(t, f.rec.For("alice"), 1)
	assert.Contains(t, f.rec.For("alice")[0], "Restroom")
	assert.Len(t, f.rec.For("bob"), 1)
	assert.Len(t, f.rows(t, store.TableLiveBreaks), 3)
}

func TestRunBatch_QueueReadFailure(t *testing.T) {
	f := newFixture(t, Options{})
	f.store.set(func(h *hookStore) {
		h.onScan = func(tbl store.Table) error {
			if tbl == store.TableQueue {
				return errors.New("unavailable")
			}
			return nil
		}
	})

	_, err := f.proc.RunBatch(context.Background())
	assert.Error(t, err)
}

func TestProcess_UnknownAction(t *testing.T) {
	f := newFixture(t, Options{})

	res := f.proc.process(context.Background(), queue.Entry{ID: "x", User: "alice", Action: "BREAK_PAUSE"})
	assert.Equal(t, OutcomeFaulted, res.Outcome)

	var fe *FaultError
	require.ErrorAs(t, res.Err, &fe)
	assert.Equal(t, ErrCodeUnknownAction, fe.Code)
}

func TestRunBatch_SkipsWhileLockHeld(t *testing.T) {
	ctx := context.Background()
	locker := NewLocalLocker()
	f := newFixture(t, Options{Locker: locker, LockWait: 10 * time.Millisecond})
	f.submit(t, "alice", "wc")

	unlock, ok, err := locker.TryLock(ctx, 0)
	require.NoError(t, err)
	require.True(t, ok)

	rep, err := f.proc.RunBatch(ctx)
	require.NoError(t, err)
	assert.True(t, rep.Skipped)
	assert.Equal(t, []string{"alice"}, f.queueUsers(t), "skipped run leaves the queue alone")

	unlock()

	rep, err = f.proc.RunBatch(ctx)
	require.NoError(t, err)
	assert.False(t, rep.Skipped)
	assert.Equal(t, 1, rep.Processed)
}

func TestRunBatch_ConcurrentRunsNeverDoubleProcess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{BatchSize: 3, LockWait: 5 * time.Second})

	const users = 30
	for i := 0; i < users; i++ {
		f.submit(t, fmt.Sprintf("u%02d", i), "wc")
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		processed int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rep, err := f.proc.RunBatch(ctx)
			assert.NoError(t, err)
			mu.Lock()
			processed += rep.Processed
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, users, processed)
	assert.Len(t, f.rows(t, store.TableLiveBreaks), users)
	assert.Len(t, f.rec.Messages(), users, "exactly one notification per entry")
}

func TestRunBatch_NotifiesAfterReleasingLock(t *testing.T) {
	ctx := context.Background()
	locker := NewLocalLocker()

	var lockFree []bool
	notifier := notify.Func(func(ctx context.Context, _, _ string) error {
		unlock, ok, err := locker.TryLock(ctx, 0)
		if err == nil && ok {
			unlock()
		}
		lockFree = append(lockFree, ok)
		return nil
	})

	f := newFixture(t, Options{Locker: locker, Notifier: notifier})
	f.submit(t, "alice", "wc")
	f.submit(t, "bob", "wc")

	rep, err := f.proc.RunBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Processed)
	assert.Equal(t, []bool{true, true}, lockFree)
}

func TestRunBatch_OverlappingRunsOnOneLeaseSkip(t *testing.T) {
	ctx := context.Background()
	f := newSQLiteFixture(t, sharedDBPath(t), Options{LockWait: 50 * time.Millisecond})
	f.submit(t, "alice", "wc")

	entered, release := f.store.stallAppend(store.TableLiveBreaks)

	type result struct {
		rep Report
		err error
	}
	first := make(chan result, 1)
	go func() {
		rep, err := f.proc.RunBatch(ctx)
		first <- result{rep, err}
	}()
	<-entered

	rep, err := f.proc.RunBatch(ctx)
	require.NoError(t, err)
	assert.True(t, rep.Skipped, "a second run must not enter while the first holds the lock")

	release()
	r := <-first
	require.NoError(t, r.err)
	assert.Equal(t, 1, r.rep.Processed)
	assert.Len(t, f.rows(t, store.TableLiveBreaks), 1)
}

func TestRunBatch_TwoProcessorsShareOneDatabase(t *testing.T) {
	ctx := context.Background()
	path := sharedDBPath(t)
	a := newSQLiteFixture(t, path, Options{LockWait: 50 * time.Millisecond})
	b := newSQLiteFixture(t, path, Options{LockWait: 50 * time.Millisecond})
	a.submit(t, "alice", "wc")

	entered, release := a.store.stallAppend(store.TableLiveBreaks)

	done := make(chan error, 1)
	go func() {
		_, err := a.proc.RunBatch(ctx)
		done <- err
	}()
	<-entered

	rep, err := b.proc.RunBatch(ctx)
	require.NoError(t, err)
	assert.True(t, rep.Skipped, "the other process must skip while the lease is held")

	release()
	require.NoError(t, <-done)

	assert.Len(t, b.rows(t, store.TableLiveBreaks), 1)
	assert.Empty(t, b.queueUsers(t))

	rep, err = b.proc.RunBatch(ctx)
	require.NoError(t, err)
	assert.False(t, rep.Skipped, "lease is free once the first process finishes")
	assert.Zero(t, rep.Processed)
}
