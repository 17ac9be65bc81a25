package breaks

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/breakq/internal/catalog"
	"github.com/roach88/breakq/internal/store"
)

var gst = time.FixedZone("GST", 4*60*60)

// 9:00 local on a Monday.
var morning = time.Date(2025, 3, 10, 9, 0, 0, 0, gst)

func newTestMachine(t *testing.T) (*Machine, store.Store) {
	t.Helper()
	s := store.NewMemory()
	t.Cleanup(func() { s.Close() })
	return NewMachine(s, catalog.Default(), gst), s
}

func count(t *testing.T, s store.Store, tbl store.Table) int {
	t.Helper()
	n, err := s.Count(context.Background(), tbl)
	require.NoError(t, err)
	return n
}

func TestStart_CreatesActiveRecord(t *testing.T) {
	ctx := context.Background()
	m, s := newTestMachine(t)

	res, err := m.Start(ctx, "alice", "cf+2", "chat-1", morning)
	require.NoError(t, err)

	assert.Equal(t, "cf+2", res.Record.Code)
	assert.Equal(t, StatusOnBreak, res.Record.Status)
	assert.Equal(t, 30, res.Record.ExpectedMinutes)
	assert.Equal(t, "3/10/2025", res.Record.Date())
	assert.Equal(t, 1, res.Used)
	assert.Equal(t, 1, res.Limit)
	assert.Contains(t, res.Message, "Lunch started (30 min)")
	assert.Contains(t, res.Message, "1/1 today")

	assert.Equal(t, 1, count(t, s, store.TableLiveBreaks))
	assert.Zero(t, count(t, s, store.TablePunchLog))

	rows, err := s.Scan(ctx, store.TableLiveBreaks)
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"3/10/2025", "09:00:00", "alice", "cf+2", "30", "ON BREAK", "chat-1"},
		rows[0].Cells)
}

func TestStart_NormalizesCode(t *testing.T) {
	m, _ := newTestMachine(t)

	res, err := m.Start(context.Background(), "alice", "  WC ", "", morning)
	require.NoError(t, err)
	assert.Equal(t, "wc", res.Record.Code)
}

func TestStart_UnknownCode(t *testing.T) {
	m, s := newTestMachine(t)

	_, err := m.Start(context.Background(), "alice", "nap", "", morning)
	require.ErrorIs(t, err, ErrUnknownCode)
	assert.Equal(t, Validation, Classify(err))
	assert.Zero(t, count(t, s, store.TableLiveBreaks))
}

func TestStart_AlreadyActiveOnAnyCode(t *testing.T) {
	ctx := context.Background()
	m, s := newTestMachine(t)

	_, err := m.Start(ctx, "alice", "cf", "", morning)
	require.NoError(t, err)

	for _, code := range []string{"cf", "wc"} {
		_, err = m.Start(ctx, "alice", code, "", morning.Add(time.Minute))
		require.ErrorIs(t, err, ErrAlreadyActive, code)

		var r *Rejection
		require.ErrorAs(t, err, &r)
		assert.Equal(t, "cf", r.Code, "rejection names the active break")
	}
	assert.Equal(t, 1, count(t, s, store.TableLiveBreaks))
}

func TestStart_DailyLimit(t *testing.T) {
	ctx := context.Background()
	m, s := newTestMachine(t)

	// Coffee allows two per day.
	at := morning
	for i := 0; i < 2; i++ {
		_, err := m.Start(ctx, "alice", "cf", "", at)
		require.NoError(t, err)
		at = at.Add(15 * time.Minute)
		_, err = m.End(ctx, "alice", "", at)
		require.NoError(t, err)
		at = at.Add(time.Hour)
	}

	_, err := m.Start(ctx, "alice", "cf", "", at)
	require.ErrorIs(t, err, ErrDailyLimitReached)
	assert.Equal(t, Conflict, Classify(err))

	var r *Rejection
	require.ErrorAs(t, err, &r)
	assert.Equal(t, 2, r.Used)
	assert.Equal(t, 2, r.Limit)
	assert.Contains(t, Describe("alice", err), "daily limit reached for cf (2/2 today)")
	assert.Zero(t, count(t, s, store.TableLiveBreaks))

	// Other codes and other users are unaffected.
	_, err = m.Start(ctx, "alice", "wc", "", at)
	assert.NoError(t, err)
	_, err = m.Start(ctx, "bob", "cf", "", at)
	assert.NoError(t, err)
}

func TestStart_DailyLimitCountsActiveBreak(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMachine(t)

	_, err := m.Start(ctx, "alice", "cf+2", "", morning)
	require.NoError(t, err)

	used, err := m.Usage(ctx, "alice", "cf+2", morning)
	require.NoError(t, err)
	assert.Equal(t, 1, used)
}

func TestStart_LimitResetsNextDay(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMachine(t)

	_, err := m.Start(ctx, "alice", "cf+2", "", morning)
	require.NoError(t, err)
	_, err = m.End(ctx, "alice", "", morning.Add(30*time.Minute))
	require.NoError(t, err)

	_, err = m.Start(ctx, "alice", "cf+2", "", morning.Add(2*time.Hour))
	require.ErrorIs(t, err, ErrDailyLimitReached)

	_, err = m.Start(ctx, "alice", "cf+2", "", morning.AddDate(0, 0, 1))
	assert.NoError(t, err)
}

func TestStart_DateUsesConfiguredZone(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMachine(t)

	// 22:30 UTC on the 9th is 02:30 on the 10th in GST.
	utc := time.Date(2025, 3, 9, 22, 30, 0, 0, time.UTC)
	res, err := m.Start(ctx, "alice", "wc", "", utc)
	require.NoError(t, err)
	assert.Equal(t, "3/10/2025", res.Record.Date())
	assert.Equal(t, "02:30:00", res.Record.Start.Format(TimeLayout))
}

func TestEnd_RoundTrip(t *testing.T) {
	ctx := context.Background()
	m, s := newTestMachine(t)

	_, err := m.Start(ctx, "alice", "cf+2", "chat-1", morning)
	require.NoError(t, err)

	res, err := m.End(ctx, "alice", "", morning.Add(32*time.Minute+10*time.Second))
	require.NoError(t, err)

	assert.Equal(t, 32, res.Record.MinutesSpent)
	assert.Equal(t, 30, res.ExpectedMinutes)
	assert.Equal(t, 2, res.OverMinutes)
	assert.Equal(t, "Lunch", res.Name)
	assert.Equal(t, StatusCompleted, res.Record.Status)
	assert.Equal(t, "chat-1", res.Record.ReplyChannel, "reply channel falls back to the live row")
	assert.Contains(t, res.Message, "Over by 2 min")

	assert.Zero(t, count(t, s, store.TableLiveBreaks))
	rows, err := s.Scan(ctx, store.TablePunchLog)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t,
		[]string{"3/10/2025", "09:00:00", "alice", "cf+2", "32", "09:32:10", "COMPLETED", "chat-1"},
		rows[0].Cells)
}

func TestEnd_WithinDurationHasNoOvertime(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMachine(t)

	_, err := m.Start(ctx, "alice", "wc", "", morning)
	require.NoError(t, err)
	res, err := m.End(ctx, "alice", "chat-9", morning.Add(4*time.Minute))
	require.NoError(t, err)

	assert.Equal(t, 4, res.Record.MinutesSpent)
	assert.Zero(t, res.OverMinutes)
	assert.NotContains(t, res.Message, "Over by")
	assert.Equal(t, "chat-9", res.Record.ReplyChannel)
}

func TestEnd_NoActiveBreak(t *testing.T) {
	m, s := newTestMachine(t)

	_, err := m.End(context.Background(), "bob", "", morning)
	require.ErrorIs(t, err, ErrNoActiveBreak)
	assert.Equal(t, Conflict, Classify(err))
	assert.Zero(t, count(t, s, store.TablePunchLog))
}

func TestEnd_DiscardsDuplicateLiveRows(t *testing.T) {
	ctx := context.Background()
	m, s := newTestMachine(t)

	// Two live rows for one user can only come from outside the processor.
	for _, code := range []string{"cf", "wc"} {
		_, err := s.Append(ctx, store.TableLiveBreaks,
			[]string{"3/10/2025", "09:00:00", "alice", code, "10", StatusOnBreak, ""})
		require.NoError(t, err)
	}

	res, err := m.End(ctx, "alice", "", morning.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "cf", res.Record.Code, "oldest live break is the one logged")
	assert.Zero(t, count(t, s, store.TableLiveBreaks))
	assert.Equal(t, 1, count(t, s, store.TablePunchLog))
}

func TestCancel_RemovesWithoutLogging(t *testing.T) {
	ctx := context.Background()
	m, s := newTestMachine(t)

	_, err := m.Start(ctx, "alice", "cf+2", "", morning)
	require.NoError(t, err)

	res, err := m.Cancel(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "cf+2", res.Record.Code)
	assert.Contains(t, res.Message, "cancelled")

	assert.Zero(t, count(t, s, store.TableLiveBreaks))
	assert.Zero(t, count(t, s, store.TablePunchLog))

	// A cancelled break does not consume the daily allowance.
	_, err = m.Start(ctx, "alice", "cf+2", "", morning.Add(time.Minute))
	assert.NoError(t, err)
}

func TestCancel_NoActiveBreak(t *testing.T) {
	m, _ := newTestMachine(t)

	_, err := m.Cancel(context.Background(), "bob")
	require.ErrorIs(t, err, ErrNoActiveBreak)
	assert.Equal(t, "@bob: you are not on a break.", Describe("bob", err))
}

func TestSingleActiveBreak_RandomSequence(t *testing.T) {
	ctx := context.Background()
	m, s := newTestMachine(t)

	users := []string{"alice", "bob", "carol"}
	codes := []string{"cf", "wc", "nm", "sm", "cf+2"}
	at := morning

	for i := 0; i < 120; i++ {
		user := users[i%len(users)]
		at = at.Add(time.Minute)
		switch i % 4 {
		case 0, 1:
			_, _ = m.Start(ctx, user, codes[i%len(codes)], "", at)
		case 2:
			_, _ = m.End(ctx, user, "", at)
		case 3:
			_, _ = m.Cancel(ctx, user)
		}

		rows, err := s.Scan(ctx, store.TableLiveBreaks)
		require.NoError(t, err)
		seen := make(map[string]bool)
		for _, r := range rows {
			name := r.Cell(activeName)
			require.False(t, seen[name], "step %d: %s holds two live breaks", i, name)
			seen[name] = true
		}
	}
}

func TestMinutesBetween(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want int
	}{
		{0, 0},
		{-time.Minute, 0},
		{29 * time.Second, 0},
		{89 * time.Second, 1},
		{90 * time.Second, 2},
		{45 * time.Minute, 45},
	}
	for _, tt := range tests {
		t.Run(tt.d.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, minutesBetween(morning, morning.Add(tt.d)))
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Category
	}{
		{nil, None},
		{&Rejection{Reason: ErrUnknownCode}, Validation},
		{fmt.Errorf("wrapped: %w", &Rejection{Reason: ErrAlreadyActive}), Conflict},
		{ErrDailyLimitReached, Conflict},
		{ErrNoActiveBreak, Conflict},
		{errors.New("disk full"), Transient},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), "%v", tt.err)
	}
	assert.Equal(t, "conflict", Conflict.String())
}

func TestDescribe_Fault(t *testing.T) {
	msg := Describe("alice", errors.New("boom"))
	assert.Equal(t, "@alice: error processing request. Please try again.", msg)
	assert.False(t, IsRejection(errors.New("boom")))
}
