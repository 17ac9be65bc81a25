package cli

import (
	"fmt"
	"io"
	"math"

	"github.com/spf13/cobra"
)

// statusPreview is how many entries status lists.
const statusPreview = 10

// QueueStatus is the JSON payload of the status command.
type QueueStatus struct {
	Total   int           `json:"total"`
	Entries []QueuedEntry `json:"entries"`
	More    int           `json:"more,omitempty"`
}

// QueuedEntry is one pending request.
type QueuedEntry struct {
	Position   int    `json:"position"`
	EntryID    string `json:"entry_id"`
	User       string `json:"user"`
	Action     string `json:"action"`
	Param      string `json:"param,omitempty"`
	AgeSeconds int64  `json:"age_seconds"`
	Malformed  bool   `json:"malformed,omitempty"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the pending queue",
		Long: `Show how many requests are waiting and the oldest ten, with their age.

Examples:
  breakq status
  breakq status --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	svc, err := openService(opts, cmd, f, nil)
	if err != nil {
		return err
	}
	defer svc.Close()

	head, total, err := svc.queue.Head(cmd.Context(), statusPreview)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to read queue", err)
	}

	now := svc.clock.Now()
	st := QueueStatus{Total: total, Entries: make([]QueuedEntry, 0, len(head))}
	if total > len(head) {
		st.More = total - len(head)
	}
	for i, e := range head {
		qe := QueuedEntry{
			Position:  i + 1,
			EntryID:   e.ID,
			User:      e.User,
			Action:    string(e.Action),
			Param:     e.Param,
			Malformed: e.Err != nil,
		}
		if !e.EnqueuedAt.IsZero() {
			qe.AgeSeconds = int64(math.Round(now.Sub(e.EnqueuedAt).Seconds()))
		}
		st.Entries = append(st.Entries, qe)
	}

	return f.Render(st, func(w io.Writer) { writeQueueStatus(w, st) })
}

func writeQueueStatus(w io.Writer, st QueueStatus) {
	fmt.Fprintf(w, "Total in queue: %d requests\n", st.Total)
	if len(st.Entries) == 0 {
		return
	}
	fmt.Fprintln(w, "Oldest entries:")
	for _, e := range st.Entries {
		suffix := ""
		if e.Malformed {
			suffix = " [malformed]"
		}
		fmt.Fprintf(w, "  %d. %s - %s %s (%ds ago)%s\n", e.Position, e.User, e.Action, e.Param, e.AgeSeconds, suffix)
	}
	if st.More > 0 {
		fmt.Fprintf(w, "  ... and %d more\n", st.More)
	}
}
