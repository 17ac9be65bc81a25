package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/breakq/internal/breaks"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Date string
}

// HistoryEntry is one completed break.
type HistoryEntry struct {
	Date         string `json:"date"`
	Start        string `json:"start"`
	End          string `json:"end"`
	Code         string `json:"code"`
	MinutesSpent int    `json:"minutes_spent"`
}

// HistoryResult is the JSON payload of the history command.
type HistoryResult struct {
	User   string         `json:"user"`
	Date   string         `json:"date"`
	Active *HistoryActive `json:"active,omitempty"`
	Breaks []HistoryEntry `json:"breaks"`
}

// HistoryActive is the user's break in progress, if any.
type HistoryActive struct {
	Code            string `json:"code"`
	Start           string `json:"start"`
	ExpectedMinutes int    `json:"expected_minutes"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history <user>",
		Short: "Show a user's breaks for a day",
		Long: `Show completed breaks from the punch log for one user and date,
plus the break in progress.

Examples:
  breakq history alice
  breakq history alice --date 3/10/2025`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Date, "date", "", "date as M/D/YYYY (default today)")

	return cmd
}

func runHistory(opts *HistoryOptions, user string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	svc, err := openService(opts.RootOptions, cmd, f, nil)
	if err != nil {
		return err
	}
	defer svc.Close()

	date := opts.Date
	if date == "" {
		date = svc.clock.Now().Format(breaks.DateLayout)
	}

	tables := svc.machine.Tables()
	done, err := tables.History(cmd.Context(), user, date)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to read punch log", err)
	}
	live, err := tables.ActiveFor(cmd.Context(), user)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to read live breaks", err)
	}

	res := HistoryResult{User: user, Date: date, Breaks: make([]HistoryEntry, 0, len(done))}
	for _, r := range done {
		res.Breaks = append(res.Breaks, HistoryEntry{
			Date:         r.Date(),
			Start:        r.Start.Format(breaks.TimeLayout),
			End:          r.End.Format(breaks.TimeLayout),
			Code:         r.Code,
			MinutesSpent: r.MinutesSpent,
		})
	}
	if len(live) > 0 {
		res.Active = &HistoryActive{
			Code:            live[0].Code,
			Start:           live[0].Start.Format(breaks.DateLayout + " " + breaks.TimeLayout),
			ExpectedMinutes: live[0].ExpectedMinutes,
		}
	}

	return f.Render(res, func(w io.Writer) { writeHistory(w, res) })
}

func writeHistory(w io.Writer, res HistoryResult) {
	fmt.Fprintf(w, "Breaks for %s on %s:\n", res.User, res.Date)
	if len(res.Breaks) == 0 {
		fmt.Fprintln(w, "  none")
	}
	total := 0
	for _, b := range res.Breaks {
		fmt.Fprintf(w, "  %s-%s  %-6s %3d min\n", b.Start, b.End, b.Code, b.MinutesSpent)
		total += b.MinutesSpent
	}
	if len(res.Breaks) > 0 {
		fmt.Fprintf(w, "  total %d min\n", total)
	}
	if res.Active != nil {
		fmt.Fprintf(w, "On break now: %s since %s (%d min expected)\n", res.Active.Code, res.Active.Start, res.Active.ExpectedMinutes)
	}
}
