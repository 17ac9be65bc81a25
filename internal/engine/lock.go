package engine

import (
	"context"
	"time"
)

// Locker grants the processor-wide lock token.
//
// TryLock waits at most wait for the token. It returns ok=false when the
// token stayed busy, so a late run can skip instead of queueing up behind a
// slow one. unlock must be called exactly once after a successful TryLock.
//
// Implemented by LocalLocker (one process), store.LeaseLocker (several
// processes sharing one SQLite database) and Chain.
type Locker interface {
	TryLock(ctx context.Context, wait time.Duration) (unlock func(), ok bool, err error)
}

// LocalLocker is an in-process lock token backed by a one-slot channel.
//
// Thread-safety: safe for concurrent use.
type LocalLocker struct {
	token chan struct{}
}

// NewLocalLocker creates an unlocked token.
func NewLocalLocker() *LocalLocker {
	l := &LocalLocker{token: make(chan struct{}, 1)}
	l.token <- struct{}{}
	return l
}

// TryLock takes the token, waiting up to wait. A non-positive wait tries once.
func (l *LocalLocker) TryLock(ctx context.Context, wait time.Duration) (func(), bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	// Fast path
	select {
	case <-l.token:
		return l.release, true, nil
	default:
	}
	if wait <= 0 {
		return nil, false, nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-l.token:
		return l.release, true, nil
	case <-timer.C:
		return nil, false, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func (l *LocalLocker) release() {
	select {
	case l.token <- struct{}{}:
	default:
		panic("engine: LocalLocker released twice")
	}
}

// Chain takes several lockers in order under one shared wait budget and
// releases them in reverse. Chain(NewLocalLocker(), lease) makes overlapping
// runs in one process skip on the local token before they touch the shared
// lease, so the lease only ever has one in-process holder.
func Chain(lockers ...Locker) Locker {
	return chain(lockers)
}

type chain []Locker

// TryLock acquires every locker or none.
func (c chain) TryLock(ctx context.Context, wait time.Duration) (func(), bool, error) {
	deadline := time.Now().Add(wait)
	unlocks := make([]func(), 0, len(c))
	releaseAll := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}

	for _, l := range c {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		unlock, ok, err := l.TryLock(ctx, remaining)
		if err != nil || !ok {
			releaseAll()
			return nil, false, err
		}
		unlocks = append(unlocks, unlock)
	}
	return releaseAll, true, nil
}
