package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Default scheduler cadence: a run every Interval/SubCycles = 10s.
const (
	DefaultInterval  = time.Minute
	DefaultSubCycles = 6
)

// Batcher runs one batch. Implemented by *Processor.
type Batcher interface {
	RunBatch(ctx context.Context) (Report, error)
}

// Scheduler triggers batch runs on a fixed cadence.
//
// A ticker fires every Interval. Each tick schedules SubCycles sub-tasks
// with time.AfterFunc at offsets i*Interval/SubCycles, so the effective
// cadence is Interval/SubCycles. Sub-tasks never sleep; overlapping runs
// are resolved by the processor's lock token.
//
// Thread-safety model:
//   - Run(): must be called from exactly one goroutine
//   - Kick(): safe from any goroutine
type Scheduler struct {
	batcher   Batcher
	interval  time.Duration
	subCycles int
	logger    *slog.Logger

	kick chan struct{} // buffered, size 1; coalesces kicks

	mu      sync.Mutex
	pending []*time.Timer
	running sync.WaitGroup
}

// NewScheduler creates a scheduler for b. Non-positive values select
// DefaultInterval and DefaultSubCycles.
func NewScheduler(b Batcher, interval time.Duration, subCycles int, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if subCycles <= 0 {
		subCycles = DefaultSubCycles
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		batcher:   b,
		interval:  interval,
		subCycles: subCycles,
		logger:    logger,
		kick:      make(chan struct{}, 1),
	}
}

// Cadence returns the effective time between runs.
func (s *Scheduler) Cadence() time.Duration {
	return s.interval / time.Duration(s.subCycles)
}

// Kick requests an extra run as soon as possible. Kicks arriving while one
// is already pending are merged.
func (s *Scheduler) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Run schedules batches until ctx is cancelled. Pending sub-tasks are
// stopped and in-flight runs are awaited before Run returns ctx.Err().
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler starting",
		"interval", s.interval,
		"sub_cycles", s.subCycles,
		"cadence", s.Cadence(),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.scheduleCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			s.stopPending()
			s.running.Wait()
			s.logger.Info("scheduler stopping: context cancelled")
			return ctx.Err()

		case <-ticker.C:
			s.scheduleCycle(ctx)

		case <-s.kick:
			s.fire(ctx, 0)
		}
	}
}

// scheduleCycle arms SubCycles sub-tasks spread evenly over one interval.
func (s *Scheduler) scheduleCycle(ctx context.Context) {
	step := s.Cadence()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Timers from the previous tick have fired by now; drop them.
	s.pending = s.pending[:0]
	for i := 0; i < s.subCycles; i++ {
		sub := i + 1
		s.running.Add(1)
		t := time.AfterFunc(time.Duration(i)*step, func() {
			defer s.running.Done()
			if ctx.Err() != nil {
				return
			}
			s.run(ctx, sub)
		})
		s.pending = append(s.pending, t)
	}
}

// stopPending cancels sub-tasks that have not started yet.
func (s *Scheduler) stopPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.pending {
		if t.Stop() {
			s.running.Done()
		}
	}
	s.pending = nil
}

// fire starts one run outside the schedule.
func (s *Scheduler) fire(ctx context.Context, sub int) {
	s.running.Add(1)
	go func() {
		defer s.running.Done()
		s.run(ctx, sub)
	}()
}

func (s *Scheduler) run(ctx context.Context, sub int) {
	rep, err := s.batcher.RunBatch(ctx)
	switch {
	case err != nil && ctx.Err() == nil:
		s.logger.Error("batch run failed", "sub_cycle", sub, "error", err)
	case rep.Skipped:
		s.logger.Debug("sub-cycle skipped", "sub_cycle", sub)
	}
}
