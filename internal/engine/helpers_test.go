package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/breakq/internal/breaks"
	"github.com/roach88/breakq/internal/catalog"
	"github.com/roach88/breakq/internal/ingress"
	"github.com/roach88/breakq/internal/notify"
	"github.com/roach88/breakq/internal/queue"
	"github.com/roach88/breakq/internal/store"
	"github.com/roach88/breakq/internal/testutil"
)

var (
	gst     = time.FixedZone("GST", 4*60*60)
	morning = time.Date(2025, 3, 10, 12, 0, 0, 0, gst)
)

type fixture struct {
	store *hookStore
	queue *queue.Queue
	gate  *ingress.Gate
	proc  *Processor
	clock *testutil.ManualClock
	rec   *notify.Recorder
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	mem := store.NewMemory()
	t.Cleanup(func() { mem.Close() })
	return buildFixture(t, mem, opts)
}

// newSQLiteFixture opens path as its own database handle, the way a separate
// breakq process would, and guards the processor with a leased lock.
func newSQLiteFixture(t *testing.T, path string, opts Options) *fixture {
	t.Helper()
	db, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	opts.Locker = Chain(NewLocalLocker(), store.NewLeaseLocker(db, "processor", time.Minute))
	return buildFixture(t, db, opts)
}

func sharedDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "breakq.db")
}

func buildFixture(t *testing.T, base store.Store, opts Options) *fixture {
	t.Helper()
	s := &hookStore{Store: base}
	clk := testutil.NewManualClock(morning)
	rec := &notify.Recorder{}
	q := queue.New(s, testutil.NewSequenceIDs("e"))
	m := breaks.NewMachine(s, catalog.Default(), gst)

	if opts.Clock == nil {
		opts.Clock = clk
	}
	if opts.Notifier == nil {
		opts.Notifier = rec
	}

	return &fixture{
		store: s,
		queue: q,
		gate:  ingress.NewGate(q, catalog.Default(), ingress.Options{Clock: clk, Notifier: notify.Discard}),
		proc:  NewProcessor(q, m, opts),
		clock: clk,
		rec:   rec,
	}
}

func (f *fixture) submit(t *testing.T, user, text string) {
	t.Helper()
	_, err := f.gate.Submit(context.Background(), ingress.Request{User: user, ReplyChannel: user, Text: text})
	require.NoError(t, err)
}

func (f *fixture) rows(t *testing.T, tbl store.Table) []store.Row {
	t.Helper()
	rows, err := f.store.Scan(context.Background(), tbl)
	require.NoError(t, err)
	return rows
}

func (f *fixture) queueUsers(t *testing.T) []string {
	t.Helper()
	entries, err := f.queue.Snapshot(context.Background())
	require.NoError(t, err)
	users := make([]string, len(entries))
	for i, e := range entries {
		users[i] = e.User
	}
	return users
}

// hookStore wraps a Store and lets tests inject faults per table.
type hookStore struct {
	store.Store

	mu       sync.Mutex
	onAppend func(t store.Table) error
	onScan   func(t store.Table) error
	onDelete func(t store.Table) error
}

func (h *hookStore) hooks() (func(store.Table) error, func(store.Table) error, func(store.Table) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.onAppend, h.onScan, h.onDelete
}

func (h *hookStore) set(apply func(h *hookStore)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	apply(h)
}

func (h *hookStore) Append(ctx context.Context, t store.Table, cells []string) (store.Row, error) {
	if fn, _, _ := h.hooks(); fn != nil {
		if err := fn(t); err != nil {
			return store.Row{}, err
		}
	}
	return h.Store.Append(ctx, t, cells)
}

func (h *hookStore) Scan(ctx context.Context, t store.Table) ([]store.Row, error) {
	if _, fn, _ := h.hooks(); fn != nil {
		if err := fn(t); err != nil {
			return nil, err
		}
	}
	return h.Store.Scan(ctx, t)
}

func (h *hookStore) Delete(ctx context.Context, t store.Table, keys ...int64) (int, error) {
	if _, _, fn := h.hooks(); fn != nil {
		if err := fn(t); err != nil {
			return 0, err
		}
	}
	return h.Store.Delete(ctx, t, keys...)
}

// stallAppend blocks the first Append to tbl until the returned release is
// called. entered is closed once the append has started.
func (h *hookStore) stallAppend(tbl store.Table) (entered <-chan struct{}, release func()) {
	in := make(chan struct{})
	gate := make(chan struct{})
	var once sync.Once
	h.set(func(h *hookStore) {
		h.onAppend = func(t store.Table) error {
			if t != tbl {
				return nil
			}
			first := false
			once.Do(func() { first = true })
			if first {
				close(in)
				<-gate
			}
			return nil
		}
	})
	return in, func() { close(gate) }
}
