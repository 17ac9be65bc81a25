// Package catalog maps break codes to their definitions.
//
// The catalog is populated once at startup and is read-only afterwards,
// so it is safe to share between the ingress gate and the processor
// without locking.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// ErrNotFound is returned by Lookup for codes outside the catalog.
var ErrNotFound = errors.New("break code not found")

// ErrInvalid is returned when a catalog fails validation.
var ErrInvalid = errors.New("invalid catalog")

// Definition describes one kind of break.
type Definition struct {
	Code            string `json:"code"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration"`
	DailyLimit      int    `json:"daily_limit"`
}

// Catalog is an immutable set of break definitions plus the words that
// request END and CANCEL.
type Catalog struct {
	defs           map[string]Definition
	order          []string
	backKeywords   map[string]struct{}
	cancelKeywords map[string]struct{}
}

// DefaultBackKeywords are the messages that end a break.
var DefaultBackKeywords = []string{"back", "b", "bk", "im back", "i'm back", "returned"}

// DefaultCancelKeywords are the messages that cancel a break.
var DefaultCancelKeywords = []string{"c", "cancel", "reset"}

// New builds a catalog from definitions and keyword lists.
// Nil keyword lists select the defaults.
func New(defs []Definition, back, cancel []string) (*Catalog, error) {
	if back == nil {
		back = DefaultBackKeywords
	}
	if cancel == nil {
		cancel = DefaultCancelKeywords
	}

	c := &Catalog{
		defs:           make(map[string]Definition, len(defs)),
		backKeywords:   make(map[string]struct{}, len(back)),
		cancelKeywords: make(map[string]struct{}, len(cancel)),
	}

	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: at least one break is required", ErrInvalid)
	}

	for _, d := range defs {
		d.Code = Normalize(d.Code)
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.defs[d.Code]; dup {
			return nil, fmt.Errorf("%w: duplicate code %q", ErrInvalid, d.Code)
		}
		c.defs[d.Code] = d
		c.order = append(c.order, d.Code)
	}
	sort.Strings(c.order)

	for _, k := range back {
		c.backKeywords[Normalize(k)] = struct{}{}
	}
	for _, k := range cancel {
		k = Normalize(k)
		if _, clash := c.backKeywords[k]; clash {
			return nil, fmt.Errorf("%w: keyword %q is both back and cancel", ErrInvalid, k)
		}
		c.cancelKeywords[k] = struct{}{}
	}
	for code := range c.defs {
		if c.IsBack(code) || c.IsCancel(code) {
			return nil, fmt.Errorf("%w: break code %q collides with a keyword", ErrInvalid, code)
		}
	}

	return c, nil
}

// Validate checks a single definition.
func (d Definition) Validate() error {
	switch {
	case d.Code == "":
		return fmt.Errorf("%w: empty break code", ErrInvalid)
	case strings.TrimSpace(d.Name) == "":
		return fmt.Errorf("%w: break %q has no name", ErrInvalid, d.Code)
	case d.DurationMinutes <= 0:
		return fmt.Errorf("%w: break %q duration must be positive", ErrInvalid, d.Code)
	case d.DailyLimit < 1:
		return fmt.Errorf("%w: break %q daily limit must be at least 1", ErrInvalid, d.Code)
	}
	return nil
}

// Lookup returns the definition for a code.
func (c *Catalog) Lookup(code string) (Definition, error) {
	d, ok := c.defs[Normalize(code)]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrNotFound, code)
	}
	return d, nil
}

// Codes returns every break code in sorted order.
func (c *Catalog) Codes() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Definitions returns every definition ordered by code.
func (c *Catalog) Definitions() []Definition {
	out := make([]Definition, 0, len(c.order))
	for _, code := range c.order {
		out = append(out, c.defs[code])
	}
	return out
}

// IsBack reports whether text is an END keyword.
func (c *Catalog) IsBack(text string) bool {
	_, ok := c.backKeywords[Normalize(text)]
	return ok
}

// IsCancel reports whether text is a CANCEL keyword.
func (c *Catalog) IsCancel(text string) bool {
	_, ok := c.cancelKeywords[Normalize(text)]
	return ok
}

var quotes = strings.NewReplacer("’", "'", "‘", "'", "`", "'")

// Normalize folds text into the form codes and keywords are matched in:
// NFKC, lower case, straight apostrophes, single spaces. Catalog entries and
// incoming messages both pass through it.
func Normalize(text string) string {
	s := norm.NFKC.String(text)
	s = cases.Lower(language.Und).String(s)
	s = quotes.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// Default returns the built-in catalog used when no file is configured.
func Default() *Catalog {
	c, err := New([]Definition{
		{Code: "cf+2", Name: "Lunch", DurationMinutes: 30, DailyLimit: 1},
		{Code: "cf", Name: "Coffee", DurationMinutes: 15, DailyLimit: 2},
		{Code: "wc", Name: "Restroom", DurationMinutes: 10, DailyLimit: 4},
		{Code: "nm", Name: "Prayer", DurationMinutes: 15, DailyLimit: 3},
		{Code: "sm", Name: "Smoke", DurationMinutes: 10, DailyLimit: 3},
	}, nil, nil)
	if err != nil {
		panic(fmt.Sprintf("catalog: default catalog invalid: %v", err))
	}
	return c
}
