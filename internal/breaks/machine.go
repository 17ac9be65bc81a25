package breaks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/roach88/breakq/internal/catalog"
	"github.com/roach88/breakq/internal/store"
)

// Machine applies break transitions against the break tables.
type Machine struct {
	tables  *Tables
	catalog *catalog.Catalog
	logger  *slog.Logger
}

// StartResult describes a started break.
type StartResult struct {
	Record     ActiveRecord
	Definition catalog.Definition
	Used       int // usage of this code today, including the new break
	Limit      int
	Message    string
}

// EndResult describes a completed break.
type EndResult struct {
	Record          CompletedRecord
	Name            string
	ExpectedMinutes int
	OverMinutes     int
	Message         string
}

// CancelResult describes a discarded break.
type CancelResult struct {
	Record  ActiveRecord
	Message string
}

// NewMachine creates a state machine over s using cat for definitions.
// Dates and times are written in loc.
func NewMachine(s store.Store, cat *catalog.Catalog, loc *time.Location) *Machine {
	return &Machine{
		tables:  NewTables(s, loc),
		catalog: cat,
		logger:  slog.Default(),
	}
}

// WithLogger returns m using logger for transition logs.
func (m *Machine) WithLogger(logger *slog.Logger) *Machine {
	if logger != nil {
		m.logger = logger
		m.tables.logger = logger
	}
	return m
}

// Tables exposes the underlying repository for read-only views.
func (m *Machine) Tables() *Tables { return m.tables }

// Catalog returns the catalog used for lookups.
func (m *Machine) Catalog() *catalog.Catalog { return m.catalog }

// Start begins break code for user at now.
//
// Fails with ErrUnknownCode, ErrAlreadyActive or ErrDailyLimitReached
// (wrapped in a *Rejection), or with a store error.
func (m *Machine) Start(ctx context.Context, user, code, reply string, now time.Time) (StartResult, error) {
	def, err := m.catalog.Lookup(code)
	if errors.Is(err, catalog.ErrNotFound) {
		return StartResult{}, &Rejection{Reason: ErrUnknownCode, User: user, Code: code}
	}
	if err != nil {
		return StartResult{}, err
	}

	active, err := m.tables.ActiveFor(ctx, user)
	if err != nil {
		return StartResult{}, err
	}
	if len(active) > 0 {
		return StartResult{}, &Rejection{Reason: ErrAlreadyActive, User: user, Code: active[0].Code}
	}

	now = now.In(m.tables.loc)
	used, err := m.Usage(ctx, user, def.Code, now)
	if err != nil {
		return StartResult{}, err
	}
	if used >= def.DailyLimit {
		return StartResult{}, &Rejection{
			Reason: ErrDailyLimitReached,
			User:   user,
			Code:   def.Code,
			Used:   used,
			Limit:  def.DailyLimit,
		}
	}

	rec, err := m.tables.insertActive(ctx, ActiveRecord{
		Start:           now.Truncate(time.Second),
		User:            user,
		Code:            def.Code,
		ExpectedMinutes: def.DurationMinutes,
		Status:          StatusOnBreak,
		ReplyChannel:    reply,
	})
	if err != nil {
		return StartResult{}, err
	}

	m.logger.Info("break started", "user", user, "code", def.Code, "used", used+1, "limit", def.DailyLimit)

	res := StartResult{
		Record:     rec,
		Definition: def,
		Used:       used + 1,
		Limit:      def.DailyLimit,
	}
	res.Message = startedMessage(res)
	return res, nil
}

// End completes the active break of user at now and logs it.
//
// Fails with ErrNoActiveBreak (wrapped in a *Rejection) or a store error.
func (m *Machine) End(ctx context.Context, user, reply string, now time.Time) (EndResult, error) {
	active, err := m.tables.ActiveFor(ctx, user)
	if err != nil {
		return EndResult{}, err
	}
	if len(active) == 0 {
		return EndResult{}, &Rejection{Reason: ErrNoActiveBreak, User: user}
	}
	if len(active) > 1 {
		m.logger.Warn("user holds several live breaks; ending the oldest and discarding the rest",
			"user", user, "count", len(active))
	}

	cur := active[0]
	now = now.In(m.tables.loc).Truncate(time.Second)
	spent := minutesBetween(cur.Start, now)

	if reply == "" {
		reply = cur.ReplyChannel
	}
	rec, err := m.tables.appendCompleted(ctx, CompletedRecord{
		Start:        cur.Start,
		End:          now,
		User:         user,
		Code:         cur.Code,
		MinutesSpent: spent,
		Status:       StatusCompleted,
		ReplyChannel: reply,
	})
	if err != nil {
		return EndResult{}, err
	}

	if err := m.tables.deleteActive(ctx, keysOf(active)...); err != nil {
		return EndResult{}, err
	}

	res := EndResult{
		Record:          rec,
		Name:            cur.Code,
		ExpectedMinutes: cur.ExpectedMinutes,
	}
	if def, err := m.catalog.Lookup(cur.Code); err == nil {
		res.Name = def.Name
	}
	if spent > cur.ExpectedMinutes {
		res.OverMinutes = spent - cur.ExpectedMinutes
	}
	res.Message = endedMessage(user, res)

	m.logger.Info("break ended", "user", user, "code", cur.Code, "minutes", spent, "over", res.OverMinutes)
	return res, nil
}

// Cancel discards the active break of user without logging it.
//
// Fails with ErrNoActiveBreak (wrapped in a *Rejection) or a store error.
func (m *Machine) Cancel(ctx context.Context, user string) (CancelResult, error) {
	active, err := m.tables.ActiveFor(ctx, user)
	if err != nil {
		return CancelResult{}, err
	}
	if len(active) == 0 {
		return CancelResult{}, &Rejection{Reason: ErrNoActiveBreak, User: user}
	}

	if err := m.tables.deleteActive(ctx, keysOf(active)...); err != nil {
		return CancelResult{}, err
	}

	cur := active[0]
	m.logger.Info("break cancelled",
		"user", user,
		"code", cur.Code,
		"date", cur.Date(),
		"start", cur.Start.Format(TimeLayout))

	return CancelResult{Record: cur, Message: cancelledMessage(user, cur)}, nil
}

// Usage returns how many breaks of code user has taken or is taking on the
// calendar date of day: completed punch-log rows plus the live break.
func (m *Machine) Usage(ctx context.Context, user, code string, day time.Time) (int, error) {
	date := day.In(m.tables.loc).Format(DateLayout)
	code = catalog.Normalize(code)

	completed, err := m.tables.Completed(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range completed {
		if r.User == user && r.Code == code && r.Status == StatusCompleted && r.Date() == date {
			n++
		}
	}

	active, err := m.tables.ActiveFor(ctx, user)
	if err != nil {
		return 0, err
	}
	for _, r := range active {
		if r.Code == code && r.Date() == date {
			n++
		}
	}
	return n, nil
}

// minutesBetween rounds the elapsed time to whole minutes, never negative.
func minutesBetween(start, end time.Time) int {
	d := end.Sub(start)
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Minutes()))
}

func keysOf(records []ActiveRecord) []int64 {
	keys := make([]int64, len(records))
	for i, r := range records {
		keys[i] = r.Key
	}
	return keys
}

// Describe renders a rejection or fault as the text sent to the requester.
func Describe(user string, err error) string {
	var r *Rejection
	if errors.As(err, &r) {
		return rejectionMessage(user, r)
	}
	return fmt.Sprintf("@%s: error processing request. Please try again.", user)
}
