package breaks

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/breakq/internal/store"
)

// Persisted formats.
const (
	DateLayout = "1/2/2006"
	TimeLayout = "15:04:05"

	StatusOnBreak   = "ON BREAK"
	StatusCompleted = "COMPLETED"
)

// ErrCorruptRecord marks a break row that cannot be decoded.
var ErrCorruptRecord = errors.New("corrupt break record")

// ActiveRecord is one row of the live-breaks table.
type ActiveRecord struct {
	Key             int64
	Start           time.Time
	User            string
	Code            string
	ExpectedMinutes int
	Status          string
	ReplyChannel    string
}

// Date returns the calendar date of the break start.
func (r ActiveRecord) Date() string { return r.Start.Format(DateLayout) }

// CompletedRecord is one row of the punch log.
type CompletedRecord struct {
	Key          int64
	Start        time.Time
	End          time.Time
	User         string
	Code         string
	MinutesSpent int
	Status       string
	ReplyChannel string
}

// Date returns the calendar date of the break start.
func (r CompletedRecord) Date() string { return r.Start.Format(DateLayout) }

// Live-breaks columns.
const (
	activeDate = iota
	activeTime
	activeName
	activeCode
	activeExpected
	activeStatus
	activeChat
)

// Punch-log columns.
const (
	logDate = iota
	logTimeStart
	logName
	logCode
	logSpent
	logTimeEnd
	logStatus
	logChat
)

func (r ActiveRecord) cells() []string {
	return []string{
		r.Start.Format(DateLayout),
		r.Start.Format(TimeLayout),
		r.User,
		r.Code,
		strconv.Itoa(r.ExpectedMinutes),
		r.Status,
		r.ReplyChannel,
	}
}

func (r CompletedRecord) cells() []string {
	return []string{
		r.Start.Format(DateLayout),
		r.Start.Format(TimeLayout),
		r.User,
		r.Code,
		strconv.Itoa(r.MinutesSpent),
		r.End.Format(TimeLayout),
		r.Status,
		r.ReplyChannel,
	}
}

// ParseStamp reconstructs an instant from a stored date and time in loc.
func ParseStamp(date, clock string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout+" "+TimeLayout, strings.TrimSpace(date)+" "+strings.TrimSpace(clock), loc)
}

// DecodeActive decodes a live-breaks row.
func DecodeActive(row store.Row, loc *time.Location) (ActiveRecord, error) {
	start, err := ParseStamp(row.Cell(activeDate), row.Cell(activeTime), loc)
	if err != nil {
		return ActiveRecord{}, fmt.Errorf("%w: live_breaks row %d: %v", ErrCorruptRecord, row.Key, err)
	}
	expected, err := strconv.Atoi(row.Cell(activeExpected))
	if err != nil {
		return ActiveRecord{}, fmt.Errorf("%w: live_breaks row %d duration: %v", ErrCorruptRecord, row.Key, err)
	}
	r := ActiveRecord{
		Key:             row.Key,
		Start:           start,
		User:            row.Cell(activeName),
		Code:            row.Cell(activeCode),
		ExpectedMinutes: expected,
		Status:          row.Cell(activeStatus),
		ReplyChannel:    row.Cell(activeChat),
	}
	if r.User == "" || r.Code == "" {
		return ActiveRecord{}, fmt.Errorf("%w: live_breaks row %d missing name or code", ErrCorruptRecord, row.Key)
	}
	return r, nil
}

// DecodeCompleted decodes a punch-log row. A break that crossed midnight
// stores an end time earlier than its start; the end is moved to the next day.
func DecodeCompleted(row store.Row, loc *time.Location) (CompletedRecord, error) {
	start, err := ParseStamp(row.Cell(logDate), row.Cell(logTimeStart), loc)
	if err != nil {
		return CompletedRecord{}, fmt.Errorf("%w: punch_log row %d: %v", ErrCorruptRecord, row.Key, err)
	}
	end, err := ParseStamp(row.Cell(logDate), row.Cell(logTimeEnd), loc)
	if err != nil {
		return CompletedRecord{}, fmt.Errorf("%w: punch_log row %d end: %v", ErrCorruptRecord, row.Key, err)
	}
	if end.Before(start) {
		end = end.AddDate(0, 0, 1)
	}
	spent, err := strconv.Atoi(row.Cell(logSpent))
	if err != nil {
		return CompletedRecord{}, fmt.Errorf("%w: punch_log row %d time spent: %v", ErrCorruptRecord, row.Key, err)
	}
	r := CompletedRecord{
		Key:          row.Key,
		Start:        start,
		End:          end,
		User:         row.Cell(logName),
		Code:         row.Cell(logCode),
		MinutesSpent: spent,
		Status:       row.Cell(logStatus),
		ReplyChannel: row.Cell(logChat),
	}
	if r.User == "" || r.Code == "" {
		return CompletedRecord{}, fmt.Errorf("%w: punch_log row %d missing name or code", ErrCorruptRecord, row.Key)
	}
	return r, nil
}
