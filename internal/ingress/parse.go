package ingress

import (
	"errors"

	"github.com/roach88/breakq/internal/breaks"
	"github.com/roach88/breakq/internal/catalog"
	"github.com/roach88/breakq/internal/queue"
)

// Gate rejections.
var (
	ErrInvalidCode      = errors.New("invalid break code")
	ErrDuplicatePending = errors.New("request already pending")
)

// Command is a classified request text.
type Command struct {
	Action queue.Action
	Code   string // set for queue.ActionStart
}

// Parse classifies text into END, CANCEL or START(code) using the catalog
// vocabulary. Text matching nothing yields ErrInvalidCode.
func Parse(cat *catalog.Catalog, text string) (Command, error) {
	s := catalog.Normalize(text)
	switch {
	case s == "":
		return Command{}, ErrInvalidCode
	case cat.IsBack(s):
		return Command{Action: queue.ActionEnd}, nil
	case cat.IsCancel(s):
		return Command{Action: queue.ActionCancel}, nil
	}

	def, err := cat.Lookup(s)
	if err != nil {
		return Command{}, ErrInvalidCode
	}
	return Command{Action: queue.ActionStart, Code: def.Code}, nil
}

// Classify extends breaks.Classify with the gate's own rejections.
func Classify(err error) breaks.Category {
	switch {
	case errors.Is(err, ErrInvalidCode):
		return breaks.Validation
	case errors.Is(err, ErrDuplicatePending), errors.Is(err, ErrUserBusy):
		return breaks.Conflict
	}
	return breaks.Classify(err)
}
