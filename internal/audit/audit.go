// Package audit checks the break tables for states the processor should
// never produce: two live breaks for one user, usage above the daily limit,
// rows that do not decode, and more than one pending request per user.
//
// Findings indicate writes that bypassed the queue (a second writer, a
// manual edit, or a restore) and are reported, never repaired.
package audit

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/roach88/breakq/internal/breaks"
	"github.com/roach88/breakq/internal/catalog"
	"github.com/roach88/breakq/internal/store"
)

// Severity ranks findings.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
)

// Kind names a detector.
type Kind string

const (
	KindDuplicateActive  Kind = "DUPLICATE_ACTIVE_BREAK"
	KindDailyLimitBypass Kind = "DAILY_LIMIT_BYPASS"
	KindCorruption       Kind = "DATA_CORRUPTION"
	KindDuplicatePending Kind = "DUPLICATE_PENDING"
)

// Finding is one detected inconsistency.
type Finding struct {
	Kind     Kind        `json:"kind"`
	Severity Severity    `json:"severity"`
	Table    store.Table `json:"table"`
	Key      int64       `json:"key,omitempty"`
	Date     string      `json:"date,omitempty"`
	User     string      `json:"user,omitempty"`
	Code     string      `json:"code,omitempty"`
	Count    int         `json:"count,omitempty"`
	Limit    int         `json:"limit,omitempty"`
	Detail   string      `json:"detail"`
}

// Report is the result of one audit pass.
type Report struct {
	Date      string    `json:"date,omitempty"`
	LiveRows  int       `json:"live_rows"`
	LogRows   int       `json:"log_rows"`
	QueueRows int       `json:"queue_rows"`
	Findings  []Finding `json:"findings"`
}

// Clean reports whether no findings were made.
func (r Report) Clean() bool { return len(r.Findings) == 0 }

// Count returns the number of findings of kind k.
func (r Report) Count(k Kind) int {
	n := 0
	for _, f := range r.Findings {
		if f.Kind == k {
			n++
		}
	}
	return n
}

// Auditor runs every detector against one store.
type Auditor struct {
	store   store.Store
	catalog *catalog.Catalog
}

// New creates an auditor. Codes are checked against cat.
func New(s store.Store, cat *catalog.Catalog) *Auditor {
	return &Auditor{store: s, catalog: cat}
}

// Run audits the tables. A non-empty date (M/D/YYYY) restricts the
// duplicate and limit detectors to that day; corruption checks always cover
// every row.
func (a *Auditor) Run(ctx context.Context, date string) (Report, error) {
	live, err := a.store.Scan(ctx, store.TableLiveBreaks)
	if err != nil {
		return Report{}, fmt.Errorf("audit live breaks: %w", err)
	}
	logged, err := a.store.Scan(ctx, store.TablePunchLog)
	if err != nil {
		return Report{}, fmt.Errorf("audit punch log: %w", err)
	}
	queued, err := a.store.Scan(ctx, store.TableQueue)
	if err != nil {
		return Report{}, fmt.Errorf("audit queue: %w", err)
	}

	rep := Report{
		Date:      date,
		LiveRows:  len(live),
		LogRows:   len(logged),
		QueueRows: len(queued),
	}
	rep.Findings = append(rep.Findings, CorruptedRows(store.TableLiveBreaks, live, a.catalog)...)
	rep.Findings = append(rep.Findings, CorruptedRows(store.TablePunchLog, logged, a.catalog)...)
	rep.Findings = append(rep.Findings, DuplicateActiveBreaks(live, date)...)
	rep.Findings = append(rep.Findings, DailyLimitBypass(live, logged, a.catalog, date)...)
	rep.Findings = append(rep.Findings, DuplicatePending(queued)...)
	return rep, nil
}

// Break table columns shared by live_breaks and punch_log.
const (
	colDate = 0
	colTime = 1
	colName = 2
	colCode = 3
)

// Status column per table.
var statusCol = map[store.Table]int{
	store.TableLiveBreaks: 5,
	store.TablePunchLog:   6,
}

var wantStatus = map[store.Table]string{
	store.TableLiveBreaks: breaks.StatusOnBreak,
	store.TablePunchLog:   breaks.StatusCompleted,
}

var (
	dateRe = regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`)
	timeRe = regexp.MustCompile(`^\d{2}:\d{2}:\d{2}$`)
)

// CorruptedRows reports rows of a break table with missing fields, badly
// formatted dates or times, unknown codes, or an unexpected status.
func CorruptedRows(tbl store.Table, rows []store.Row, cat *catalog.Catalog) []Finding {
	var out []Finding
	add := func(r store.Row, detail string) {
		out = append(out, Finding{
			Kind:     KindCorruption,
			Severity: SeverityCritical,
			Table:    tbl,
			Key:      r.Key,
			User:     r.Cell(colName),
			Detail:   detail,
		})
	}

	for _, r := range rows {
		if r.Cell(colDate) == "" || r.Cell(colTime) == "" || r.Cell(colName) == "" || r.Cell(colCode) == "" {
			add(r, "missing required fields")
			continue
		}
		if d := r.Cell(colDate); !dateRe.MatchString(d) {
			add(r, fmt.Sprintf("invalid date format: %s", d))
		}
		if t := r.Cell(colTime); !timeRe.MatchString(t) {
			add(r, fmt.Sprintf("invalid time format: %s", t))
		}
		if code := r.Cell(colCode); cat != nil {
			if _, err := cat.Lookup(code); err != nil {
				add(r, fmt.Sprintf("invalid break code: %s", code))
			}
		}
		if s := r.Cell(statusCol[tbl]); s != wantStatus[tbl] {
			add(r, fmt.Sprintf("invalid status: %s", s))
		}
	}
	return out
}

// DuplicateActiveBreaks reports users holding more than one live break on
// the same date.
func DuplicateActiveBreaks(live []store.Row, date string) []Finding {
	type key struct{ date, user string }
	counts := make(map[key]int)
	for _, r := range live {
		d := r.Cell(colDate)
		if (date != "" && d != date) || r.Cell(statusCol[store.TableLiveBreaks]) != breaks.StatusOnBreak {
			continue
		}
		counts[key{d, r.Cell(colName)}]++
	}

	var out []Finding
	for k, n := range counts {
		if n > 1 {
			out = append(out, Finding{
				Kind:     KindDuplicateActive,
				Severity: SeverityCritical,
				Table:    store.TableLiveBreaks,
				Date:     k.date,
				User:     k.user,
				Count:    n,
				Detail:   fmt.Sprintf("%s holds %d live breaks", k.user, n),
			})
		}
	}
	sortFindings(out)
	return out
}

// DailyLimitBypass reports (user, code, date) groups whose completed plus
// live breaks exceed the code's daily limit. Unknown codes are counted
// against a limit of 1.
func DailyLimitBypass(live, logged []store.Row, cat *catalog.Catalog, date string) []Finding {
	type key struct{ date, user, code string }
	counts := make(map[key]int)

	for _, r := range logged {
		d := r.Cell(colDate)
		if (date != "" && d != date) || r.Cell(statusCol[store.TablePunchLog]) != breaks.StatusCompleted {
			continue
		}
		counts[key{d, r.Cell(colName), r.Cell(colCode)}]++
	}
	for _, r := range live {
		d := r.Cell(colDate)
		if (date != "" && d != date) || r.Cell(statusCol[store.TableLiveBreaks]) != breaks.StatusOnBreak {
			continue
		}
		counts[key{d, r.Cell(colName), r.Cell(colCode)}]++
	}

	var out []Finding
	for k, n := range counts {
		limit := 1
		if cat != nil {
			if def, err := cat.Lookup(k.code); err == nil {
				limit = def.DailyLimit
			}
		}
		if n > limit {
			out = append(out, Finding{
				Kind:     KindDailyLimitBypass,
				Severity: SeverityHigh,
				Table:    store.TablePunchLog,
				Date:     k.date,
				User:     k.user,
				Code:     k.code,
				Count:    n,
				Limit:    limit,
				Detail:   fmt.Sprintf("%s used %s %d times (limit %d)", k.user, k.code, n, limit),
			})
		}
	}
	sortFindings(out)
	return out
}

// DuplicatePending reports users with more than one queued request.
func DuplicatePending(queued []store.Row) []Finding {
	const colUser = 1
	counts := make(map[string]int)
	for _, r := range queued {
		counts[r.Cell(colUser)]++
	}

	var out []Finding
	for user, n := range counts {
		if n > 1 {
			out = append(out, Finding{
				Kind:     KindDuplicatePending,
				Severity: SeverityHigh,
				Table:    store.TableQueue,
				User:     user,
				Count:    n,
				Detail:   fmt.Sprintf("%s has %d pending requests", user, n),
			})
		}
	}
	sortFindings(out)
	return out
}

// sortFindings orders map-derived findings for stable output.
func sortFindings(fs []Finding) {
	sort.Slice(fs, func(i, j int) bool {
		if fs[i].Date != fs[j].Date {
			return fs[i].Date < fs[j].Date
		}
		if fs[i].User != fs[j].User {
			return fs[i].User < fs[j].User
		}
		return fs[i].Code < fs[j].Code
	})
}
