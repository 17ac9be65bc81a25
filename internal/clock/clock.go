// Package clock abstracts wall time so that break durations, daily usage
// windows and queue ages can be computed deterministically in tests.
package clock

import (
	"fmt"
	"time"
	_ "time/tzdata" // zones resolve on hosts without a zoneinfo database
)

// DefaultZone is the zone break dates are bucketed in when none is configured.
const DefaultZone = "Asia/Dubai"

// Clock returns the current instant.
//
// Thread-safety: implementations must be safe for concurrent use. The ingress
// gate stamps entries from many goroutines while the processor reads the
// same clock.
type Clock interface {
	Now() time.Time
}

// System reads the host clock and reports instants in a fixed location.
type System struct {
	Location *time.Location
}

// NewSystem creates a system clock for the named IANA zone.
// An empty name selects DefaultZone.
func NewSystem(zone string) (System, error) {
	loc, err := LoadZone(zone)
	if err != nil {
		return System{}, err
	}
	return System{Location: loc}, nil
}

// Now returns time.Now() converted to the clock's location.
func (s System) Now() time.Time {
	if s.Location == nil {
		return time.Now()
	}
	return time.Now().In(s.Location)
}

// LoadZone resolves a zone name, defaulting to DefaultZone.
func LoadZone(zone string) (*time.Location, error) {
	if zone == "" {
		zone = DefaultZone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", zone, err)
	}
	return loc, nil
}

// Func adapts a plain function to the Clock interface.
type Func func() time.Time

// Now calls f.
func (f Func) Now() time.Time { return f() }
