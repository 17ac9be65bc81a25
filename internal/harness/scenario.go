package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario defines a break-tracking test scenario.
// Scenarios drive the real ingress gate and batch processor against an
// in-memory store and assert on the resulting trace and final tables.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Start is the RFC 3339 instant the manual clock starts at.
	// Defaults to DefaultStart.
	Start string `yaml:"start,omitempty"`

	// Timezone buckets break dates. Defaults to clock.DefaultZone.
	Timezone string `yaml:"timezone,omitempty"`

	// BatchSize is the processor batch size. Defaults to 10.
	BatchSize int `yaml:"batch_size,omitempty"`

	// Catalog is an optional catalog file, relative to the scenario file.
	Catalog string `yaml:"catalog,omitempty"`

	// Trace selects "full" (default) or "summary". Summary traces omit
	// per-entry events, for scenarios whose submission order is concurrent.
	Trace string `yaml:"trace,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	// Supported types: trace_contains, trace_order, trace_count,
	// final_state, queue_length, runs
	Assertions []Assertion `yaml:"assertions"`
}

// DefaultStart is the clock start used when a scenario has none:
// noon on a Monday in Dubai.
const DefaultStart = "2025-03-10T12:00:00+04:00"

// Trace modes.
const (
	TraceFull    = "full"
	TraceSummary = "summary"
)

// Step is one scenario action. Exactly one of Submit, Rush, Advance, Run
// or Drain is set.
type Step struct {
	// Submit sends one request through the ingress gate.
	Submit *SubmitStep `yaml:"submit,omitempty"`

	// Rush submits the same text for many users at once.
	Rush *RushStep `yaml:"rush,omitempty"`

	// Advance moves the manual clock forward (Go duration syntax).
	Advance string `yaml:"advance,omitempty"`

	// Run executes that many batch runs.
	Run int `yaml:"run,omitempty"`

	// Drain runs batches until the queue is empty.
	Drain bool `yaml:"drain,omitempty"`
}

// SubmitStep is a single submission.
type SubmitStep struct {
	User  string `yaml:"user"`
	Text  string `yaml:"text"`
	Reply string `yaml:"reply,omitempty"`

	// Expect is "queued", "duplicate" or "invalid". Empty skips the check.
	Expect string `yaml:"expect,omitempty"`
}

// RushStep is a burst of concurrent submissions from distinct users
// named Prefix-00, Prefix-01, ...
type RushStep struct {
	Users  int    `yaml:"users"`
	Prefix string `yaml:"prefix,omitempty"`
	Text   string `yaml:"text"`
}

// Submit expectations.
const (
	ExpectQueued    = "queued"
	ExpectDuplicate = "duplicate"
	ExpectInvalid   = "invalid"
)

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an event matches Match
	// - "trace_order": events matching each of Sequence appear in order
	// - "trace_count": exactly Count events match Match
	// - "final_state": rows of Table matching Where satisfy Expect / Count
	// - "queue_length": the queue holds exactly Count entries
	// - "runs": exactly Count batch runs were executed
	Type string `yaml:"type"`

	// Match is a subset of event fields (used by trace_contains, trace_count).
	Match map[string]string `yaml:"match,omitempty"`

	// Sequence lists event matchers in expected order (used by trace_order).
	Sequence []map[string]string `yaml:"sequence,omitempty"`

	// Table is the store table name (used by final_state).
	Table string `yaml:"table,omitempty"`

	// Where filters rows by column header (used by final_state).
	Where map[string]string `yaml:"where,omitempty"`

	// Expect contains expected column values for every matched row
	// (used by final_state).
	Expect map[string]string `yaml:"expect,omitempty"`

	// Count is the expected number of matches.
	Count *int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertQueueLength   = "queue_length"
	AssertRuns          = "runs"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// A relative catalog path is resolved against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Catalog != "" && !filepath.IsAbs(scenario.Catalog) {
		scenario.Catalog = filepath.Join(filepath.Dir(path), scenario.Catalog)
	}
	if scenario.Catalog != "" {
		if _, err := os.Stat(scenario.Catalog); err != nil {
			return nil, fmt.Errorf("invalid scenario: catalog file not found: %s", scenario.Catalog)
		}
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Start != "" {
		if _, err := time.Parse(time.RFC3339, s.Start); err != nil {
			return fmt.Errorf("start: %w", err)
		}
	}
	if s.BatchSize < 0 {
		return fmt.Errorf("batch_size must be positive")
	}
	switch s.Trace {
	case "", TraceFull, TraceSummary:
	default:
		return fmt.Errorf("trace must be %q or %q, got %q", TraceFull, TraceSummary, s.Trace)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateStep checks that exactly one action is set and is well formed.
func validateStep(index int, s *Step) error {
	set := 0
	if s.Submit != nil {
		set++
		if s.Submit.User == "" && s.Submit.Text == "" {
			return fmt.Errorf("steps[%d].submit: user or text is required", index)
		}
		switch s.Submit.Expect {
		case "", ExpectQueued, ExpectDuplicate, ExpectInvalid:
		default:
			return fmt.Errorf("steps[%d].submit: unknown expect %q", index, s.Submit.Expect)
		}
	}
	if s.Rush != nil {
		set++
		if s.Rush.Users < 1 {
			return fmt.Errorf("steps[%d].rush: users must be >= 1", index)
		}
	}
	if s.Advance != "" {
		set++
		d, err := time.ParseDuration(s.Advance)
		if err != nil {
			return fmt.Errorf("steps[%d].advance: %w", index, err)
		}
		if d <= 0 {
			return fmt.Errorf("steps[%d].advance: must be positive", index)
		}
	}
	if s.Run != 0 {
		set++
		if s.Run < 0 {
			return fmt.Errorf("steps[%d].run: must be positive", index)
		}
	}
	if s.Drain {
		set++
	}
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one of submit, rush, advance, run, drain is required", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if len(a.Match) == 0 {
			return fmt.Errorf("assertions[%d]: match is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Sequence) < 2 {
			return fmt.Errorf("assertions[%d]: sequence needs at least two matchers for trace_order", index)
		}
	case AssertTraceCount:
		if len(a.Match) == 0 || a.Count == nil {
			return fmt.Errorf("assertions[%d]: match and count are required for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 && a.Count == nil {
			return fmt.Errorf("assertions[%d]: expect or count is required for final_state", index)
		}
	case AssertQueueLength, AssertRuns:
		if a.Count == nil {
			return fmt.Errorf("assertions[%d]: count is required for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	if a.Count != nil && *a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}
	return nil
}
