package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/breakq/internal/queue"
	"github.com/roach88/breakq/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", event.Seq, describeEvent(event))
		}
	}
	return buf.String()
}

func describeEvent(e TraceEvent) string {
	switch e.Type {
	case EventSubmit:
		return fmt.Sprintf("submit %s %q -> %s %s", e.User, e.Text, e.Status, e.Reason)
	case EventProcess:
		return fmt.Sprintf("process %s %s %s -> %s", e.User, e.Action, e.Code, e.Outcome)
	case EventRun:
		return fmt.Sprintf("run %d processed=%d remaining=%d", e.Run, e.Processed, e.Remaining)
	case EventAdvance:
		return "advance " + e.Duration
	}
	return e.Type
}

// matchEvent reports whether every key in match equals the event's field.
// Unknown field names never match.
func matchEvent(e TraceEvent, match map[string]string) bool {
	for k, want := range match {
		got, ok := e.field(k)
		if !ok || got != want {
			return false
		}
	}
	return true
}

func formatMatch(match map[string]string) string {
	keys := make([]string, 0, len(match))
	for k := range match {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%q", k, match[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// assertTraceContains checks that some event matches (subset match).
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, e := range trace {
		if matchEvent(e, assertion.Match) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: "event matching " + formatMatch(assertion.Match),
		Actual:   "no matching event",
		Trace:    trace,
	}
}

// assertTraceOrder checks that matchers are satisfied by events in order.
// Events between matches are allowed.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	pos := 0
	for i, m := range assertion.Sequence {
		found := false
		for pos < len(trace) {
			e := trace[pos]
			pos++
			if matchEvent(e, m) {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("sequence[%d] %s after sequence[%d]", i, formatMatch(m), i-1),
				Actual:   "not found in order",
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks the number of matching events.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	n := 0
	for _, e := range trace {
		if matchEvent(e, assertion.Match) {
			n++
		}
	}
	if n != *assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d events matching %s", *assertion.Count, formatMatch(assertion.Match)),
			Actual:   fmt.Sprintf("%d events", n),
		}
	}
	return nil
}

// assertFinalState filters rows of a table by column header and checks
// the row count and expected column values.
func assertFinalState(ctx context.Context, st store.Store, assertion Assertion) error {
	table := store.Table(assertion.Table)
	header, err := store.Header(table)
	if err != nil {
		return fmt.Errorf("final_state: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[h] = i
	}
	for _, m := range []map[string]string{assertion.Where, assertion.Expect} {
		for k := range m {
			if _, ok := col[k]; !ok {
				return fmt.Errorf("final_state: table %s has no column %q", table, k)
			}
		}
	}

	rows, err := st.Scan(ctx, table)
	if err != nil {
		return fmt.Errorf("final_state: scan %s: %w", table, err)
	}

	var matched []store.Row
	for _, r := range rows {
		ok := true
		for k, v := range assertion.Where {
			if r.Cell(col[k]) != v {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, r)
		}
	}

	where := formatMatch(assertion.Where)
	if assertion.Count != nil && len(matched) != *assertion.Count {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%d rows in %s where %s", *assertion.Count, table, where),
			Actual:   fmt.Sprintf("%d rows", len(matched)),
		}
	}
	if len(assertion.Expect) > 0 && len(matched) == 0 {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("rows in %s where %s", table, where),
			Actual:   "no rows",
		}
	}
	for _, r := range matched {
		for k, want := range assertion.Expect {
			if got := r.Cell(col[k]); got != want {
				return &AssertionError{
					Type:     AssertFinalState,
					Expected: fmt.Sprintf("%s.%s = %q where %s", table, k, want, where),
					Actual:   fmt.Sprintf("%q (row %d)", got, r.Key),
				}
			}
		}
	}
	return nil
}

func assertQueueLength(ctx context.Context, q *queue.Queue, assertion Assertion) error {
	n, err := q.Len(ctx)
	if err != nil {
		return fmt.Errorf("queue_length: %w", err)
	}
	if n != *assertion.Count {
		return &AssertionError{
			Type:     AssertQueueLength,
			Expected: fmt.Sprintf("%d queued entries", *assertion.Count),
			Actual:   fmt.Sprintf("%d", n),
		}
	}
	return nil
}

// AssertionContext provides state access for final_state and queue_length
// assertions.
type AssertionContext struct {
	Store store.Store
	Queue *queue.Queue
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertRuns:
			if result.Runs != *assertion.Count {
				err = &AssertionError{
					Type:     AssertRuns,
					Expected: fmt.Sprintf("%d runs", *assertion.Count),
					Actual:   fmt.Sprintf("%d runs", result.Runs),
				}
			}
		case AssertFinalState:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires store context", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.Store, assertion)
			}
		case AssertQueueLength:
			if actx == nil || actx.Queue == nil {
				err = fmt.Errorf("assertion[%d]: queue_length requires queue context", i)
			} else {
				err = assertQueueLength(actx.Ctx, actx.Queue, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
