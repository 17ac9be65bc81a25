package breaks

import (
	"errors"
	"fmt"
	"strings"
)

func startedMessage(r StartResult) string {
	return fmt.Sprintf("@%s: %s started (%d min). %d/%d today.",
		r.Record.User, r.Definition.Name, r.Definition.DurationMinutes, r.Used, r.Limit)
}

func endedMessage(user string, r EndResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "@%s: welcome back from %s. %d min (expected %d).",
		user, r.Name, r.Record.MinutesSpent, r.ExpectedMinutes)
	if r.OverMinutes > 0 {
		fmt.Fprintf(&b, " Over by %d min.", r.OverMinutes)
	}
	return b.String()
}

func cancelledMessage(user string, r ActiveRecord) string {
	return fmt.Sprintf("@%s: %s break cancelled. Nothing was logged.", user, r.Code)
}

func rejectionMessage(user string, r *Rejection) string {
	switch {
	case errors.Is(r.Reason, ErrUnknownCode):
		return fmt.Sprintf("@%s: %q is not a break code.", user, r.Code)
	case errors.Is(r.Reason, ErrAlreadyActive):
		return fmt.Sprintf("@%s: you are already on a %s break. Send \"back\" first.", user, r.Code)
	case errors.Is(r.Reason, ErrDailyLimitReached):
		return fmt.Sprintf("@%s: daily limit reached for %s (%d/%d today).", user, r.Code, r.Used, r.Limit)
	case errors.Is(r.Reason, ErrNoActiveBreak):
		return fmt.Sprintf("@%s: you are not on a break.", user)
	}
	return fmt.Sprintf("@%s: %v", user, r.Reason)
}
