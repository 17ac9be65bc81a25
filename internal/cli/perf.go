package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/breakq/internal/engine"
)

// PerfOptions holds flags for the perf command.
type PerfOptions struct {
	*RootOptions
	Employees int
	Batch     int
	Interval  time.Duration
}

// NewPerfCommand creates the perf command.
func NewPerfCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PerfOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "perf",
		Short: "Estimate how long a rush takes to drain",
		Long: `Estimate queue drain time when many people ask at once.

cycles = ceil(employees / batch), total = cycles * interval,
average wait = total / 2, worst wait = total. Without --employees a
grid of common loads is printed.

Examples:
  breakq perf
  breakq perf --employees 60 --batch 10 --interval 10s`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPerf(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Employees, "employees", 0, "simultaneous requests")
	cmd.Flags().IntVar(&opts.Batch, "batch", engine.DefaultBatchSize, "entries per batch run")
	cmd.Flags().DurationVar(&opts.Interval, "interval", engine.DefaultInterval/engine.DefaultSubCycles, "time between batch runs")

	return cmd
}

func runPerf(opts *PerfOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	if opts.Batch < 1 || opts.Interval <= 0 || opts.Employees < 0 {
		return f.Fail(ExitCommandError, ErrCodeArguments, "batch and interval must be positive", nil)
	}

	loads := engine.DefaultLoads
	if cmd.Flags().Changed("employees") {
		loads = []engine.Load{{Employees: opts.Employees, BatchSize: opts.Batch}}
	}

	estimates := make([]engine.Estimate, 0, len(loads))
	for _, l := range loads {
		estimates = append(estimates, engine.EstimateDrain(l.Employees, l.BatchSize, opts.Interval))
	}

	return f.Render(estimates, func(w io.Writer) { writeEstimates(w, estimates) })
}

func writeEstimates(w io.Writer, estimates []engine.Estimate) {
	fmt.Fprintln(w, "Queue performance")
	for _, e := range estimates {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%d employees | batch %d | interval %s\n", e.Employees, e.BatchSize, e.Interval)
		fmt.Fprintf(w, "  cycles needed: %d\n", e.Cycles)
		fmt.Fprintf(w, "  total time:    %s (%.1f min)\n", e.Total, e.Total.Minutes())
		fmt.Fprintf(w, "  average wait:  %s\n", e.AvgWait)
		fmt.Fprintf(w, "  worst wait:    %s\n", e.MaxWait)
	}
}
