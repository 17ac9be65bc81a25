package harness

import "fmt"

// Trace event types.
const (
	EventSubmit  = "submit"
	EventProcess = "process"
	EventRun     = "run"
	EventAdvance = "advance"
)

// TraceEvent records one observable step of a scenario.
// Only the fields relevant to Type are set.
type TraceEvent struct {
	Seq  int64  `json:"seq"`
	Type string `json:"type"`

	User    string `json:"user,omitempty"`
	Text    string `json:"text,omitempty"`
	Status  string `json:"status,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code,omitempty"`
	EntryID string `json:"entry_id,omitempty"`
	Outcome string `json:"outcome,omitempty"`
	Message string `json:"message,omitempty"`

	Run       int64  `json:"run,omitempty"`
	Processed int    `json:"processed,omitempty"`
	Succeeded int    `json:"succeeded,omitempty"`
	Failed    int    `json:"failed,omitempty"`
	Remaining int    `json:"remaining,omitempty"`
	Skipped   bool   `json:"skipped,omitempty"`
	Duration  string `json:"duration,omitempty"`
}

// field returns the named field as a string for subset matching.
func (e TraceEvent) field(name string) (string, bool) {
	switch name {
	case "type":
		return e.Type, true
	case "user":
		return e.User, true
	case "text":
		return e.Text, true
	case "status":
		return e.Status, true
	case "reason":
		return e.Reason, true
	case "action":
		return e.Action, true
	case "code":
		return e.Code, true
	case "entry_id":
		return e.EntryID, true
	case "outcome":
		return e.Outcome, true
	case "message":
		return e.Message, true
	case "run":
		return fmt.Sprint(e.Run), true
	case "processed":
		return fmt.Sprint(e.Processed), true
	case "remaining":
		return fmt.Sprint(e.Remaining), true
	case "skipped":
		return fmt.Sprint(e.Skipped), true
	}
	return "", false
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step expectation and assertion matched.
	Pass bool `json:"pass"`

	// Trace contains submissions, processed entries and runs in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Runs counts batch runs executed by run and drain steps.
	Runs int `json:"runs"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// add appends an event, stamping the next sequence number.
func (r *Result) add(e TraceEvent) {
	e.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, e)
}
