package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// leasePollInterval is how often TryLock retries while waiting.
const leasePollInterval = 50 * time.Millisecond

// LeaseLocker is a named advisory lock kept in the SQLite leases table.
//
// It lets several processes that share one database agree on a single
// holder. The lock is not reentrant: a second TryLock from the same locker
// fails until the first holder unlocks. While held, the lease is renewed
// every TTL/3; a holder that crashes stops renewing and the lease expires
// after TTL.
type LeaseLocker struct {
	db    *SQLite
	name  string
	owner string
	ttl   time.Duration
	now   func() time.Time
}

// NewLeaseLocker creates a locker for the named lease with a fresh UUIDv7
// owner token.
func NewLeaseLocker(db *SQLite, name string, ttl time.Duration) *LeaseLocker {
	return newLease(db, name, uuid.Must(uuid.NewV7()).String(), ttl)
}

func newLease(db *SQLite, name, owner string, ttl time.Duration) *LeaseLocker {
	return &LeaseLocker{
		db:    db,
		name:  name,
		owner: owner,
		ttl:   ttl,
		now:   time.Now,
	}
}

// Owner returns this locker's owner token.
func (l *LeaseLocker) Owner() string {
	return l.owner
}

// TryLock attempts to take the lease, retrying until wait has elapsed.
// Returns ok=false without error when the lease is still held, by another
// owner or by this one.
func (l *LeaseLocker) TryLock(ctx context.Context, wait time.Duration) (func(), bool, error) {
	deadline := l.now().Add(wait)
	for {
		ok, err := l.acquire(ctx)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return l.hold(), true, nil
		}
		if !l.now().Before(deadline) {
			return nil, false, nil
		}

		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-time.After(leasePollInterval):
		}
	}
}

// acquire claims the lease if it is absent or expired.
// The upsert is a single statement, so two callers cannot both win.
func (l *LeaseLocker) acquire(ctx context.Context) (bool, error) {
	now := l.now()
	res, err := l.db.db.ExecContext(ctx, `
		INSERT INTO leases (name, owner, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE
		SET owner = excluded.owner, expires_at = excluded.expires_at
		WHERE leases.expires_at <= ?
	`, l.name, l.owner, now.Add(l.ttl).UnixNano(), now.UnixNano())
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", l.name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: rows affected: %w", l.name, err)
	}
	return n > 0, nil
}

// renew pushes the expiry forward. It reports false when the lease now
// belongs to someone else.
func (l *LeaseLocker) renew(ctx context.Context) (bool, error) {
	res, err := l.db.db.ExecContext(ctx, `
		UPDATE leases SET expires_at = ? WHERE name = ? AND owner = ?
	`, l.now().Add(l.ttl).UnixNano(), l.name, l.owner)
	if err != nil {
		return false, fmt.Errorf("renew lease %s: %w", l.name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("renew lease %s: rows affected: %w", l.name, err)
	}
	return n > 0, nil
}

// hold starts the renewal loop and returns the release function.
func (l *LeaseLocker) hold() func() {
	stop := make(chan struct{})
	done := make(chan struct{})
	go l.heartbeat(stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			l.release()
		})
	}
}

func (l *LeaseLocker) heartbeat(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := l.ttl / 3
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			held, err := l.renew(context.Background())
			if err != nil {
				slog.Error("lease renewal failed", "lease", l.name, "owner", l.owner, "error", err)
				return
			}
			if !held {
				slog.Warn("lease lost", "lease", l.name, "owner", l.owner)
				return
			}
		}
	}
}

func (l *LeaseLocker) release() {
	_, err := l.db.db.Exec(`
		DELETE FROM leases WHERE name = ? AND owner = ?
	`, l.name, l.owner)
	if err != nil {
		slog.Error("release lease failed", "lease", l.name, "owner", l.owner, "error", err)
	}
}

// LeaseSet hands out per-key leases that share one owner token, for
// serializing work on one key across processes.
type LeaseSet struct {
	db     *SQLite
	prefix string
	owner  string
	ttl    time.Duration
}

// NewLeaseSet creates a set whose lease names are prefix+key.
func NewLeaseSet(db *SQLite, prefix string, ttl time.Duration) *LeaseSet {
	return &LeaseSet{
		db:     db,
		prefix: prefix,
		owner:  uuid.Must(uuid.NewV7()).String(),
		ttl:    ttl,
	}
}

// TryLock takes the lease for key, waiting up to wait.
func (s *LeaseSet) TryLock(ctx context.Context, key string, wait time.Duration) (func(), bool, error) {
	return newLease(s.db, s.prefix+key, s.owner, s.ttl).TryLock(ctx, wait)
}
