package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/breakq/internal/engine"
)

// BatchOptions holds flags for the batch command.
type BatchOptions struct {
	*RootOptions
	Drain   bool
	MaxRuns int
}

// BatchRun is the JSON form of one batch report.
type BatchRun struct {
	Run       int64        `json:"run"`
	Skipped   bool         `json:"skipped,omitempty"`
	QueueSize int          `json:"queue_size"`
	Processed int          `json:"processed"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Faulted   int          `json:"faulted"`
	Reclaimed int          `json:"reclaimed,omitempty"`
	Remaining int          `json:"remaining"`
	ElapsedMS int64        `json:"elapsed_ms"`
	Entries   []BatchEntry `json:"entries,omitempty"`
}

// BatchEntry is one processed entry.
type BatchEntry struct {
	EntryID string `json:"entry_id"`
	User    string `json:"user"`
	Action  string `json:"action"`
	Outcome string `json:"outcome"`
	Message string `json:"message"`
}

// NewBatchCommand creates the batch command.
func NewBatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Process one batch from the queue now",
		Long: `Run the batch processor once, outside the schedule.

With --drain, batches run back to back until the queue is empty.
A run is skipped when another processor holds the lock.

Examples:
  breakq batch
  breakq batch --drain --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Drain, "drain", false, "run until the queue is empty")
	cmd.Flags().IntVar(&opts.MaxRuns, "max-runs", 0, "stop draining after this many runs (0 = no limit)")

	return cmd
}

func runBatch(opts *BatchOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	svc, err := openService(opts.RootOptions, cmd, f, nil)
	if err != nil {
		return err
	}
	defer svc.Close()

	var reports []engine.Report
	if opts.Drain {
		reports, err = svc.processor.Drain(cmd.Context(), opts.MaxRuns)
	} else {
		var rep engine.Report
		rep, err = svc.processor.RunBatch(cmd.Context())
		reports = append(reports, rep)
	}
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "batch failed", err)
	}

	runs := make([]BatchRun, 0, len(reports))
	for _, rep := range reports {
		runs = append(runs, toBatchRun(rep))
	}
	return f.Render(runs, func(w io.Writer) {
		for _, r := range runs {
			writeBatchRun(w, r, opts.Verbose)
		}
	})
}

func toBatchRun(rep engine.Report) BatchRun {
	r := BatchRun{
		Run:       rep.Run,
		Skipped:   rep.Skipped,
		QueueSize: rep.QueueSize,
		Processed: rep.Processed,
		Succeeded: rep.Succeeded,
		Failed:    rep.Failed,
		Faulted:   rep.Faulted,
		Reclaimed: rep.Reclaimed,
		Remaining: rep.Remaining,
		ElapsedMS: rep.Elapsed.Milliseconds(),
	}
	for _, res := range rep.Results {
		r.Entries = append(r.Entries, BatchEntry{
			EntryID: res.Entry.ID,
			User:    res.Entry.User,
			Action:  string(res.Entry.Action),
			Outcome: string(res.Outcome),
			Message: res.Message,
		})
	}
	return r
}

func writeBatchRun(w io.Writer, r BatchRun, verbose bool) {
	switch {
	case r.Skipped:
		fmt.Fprintln(w, "Batch skipped: another processor holds the lock.")
		return
	case r.QueueSize == 0:
		fmt.Fprintf(w, "Run %d: queue is empty.\n", r.Run)
		return
	}
	fmt.Fprintf(w, "Run %d: processed %d (%d succeeded, %d failed, %d faulted), %d remaining.\n",
		r.Run, r.Processed, r.Succeeded, r.Failed, r.Faulted, r.Remaining)
	if verbose {
		for _, e := range r.Entries {
			fmt.Fprintf(w, "  %s %s %s: %s\n", e.User, e.Action, e.Outcome, e.Message)
		}
	}
}
