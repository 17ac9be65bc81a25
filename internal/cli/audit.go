package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/breakq/internal/audit"
)

// AuditOptions holds flags for the audit command.
type AuditOptions struct {
	*RootOptions
	Date string
}

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AuditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Check the tables for concurrency damage",
		Long: `Scan live breaks, the punch log and the queue for inconsistencies:
more than one live break per user, breaks over the daily limit, malformed
rows and more than one pending request per user.

Exit codes:
  0 - No findings
  1 - Findings reported
  2 - Command error

Examples:
  breakq audit
  breakq audit --date 3/10/2025 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Date, "date", "", "restrict duplicate and limit checks to one M/D/YYYY date")

	return cmd
}

func runAudit(opts *AuditOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	svc, err := openService(opts.RootOptions, cmd, f, nil)
	if err != nil {
		return err
	}
	defer svc.Close()

	rep, err := audit.New(svc.store, svc.catalog).Run(cmd.Context(), opts.Date)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "audit failed", err)
	}
	if rep.Findings == nil {
		rep.Findings = []audit.Finding{}
	}

	if err := f.Render(rep, func(w io.Writer) { writeAudit(w, rep) }); err != nil {
		return err
	}
	if !rep.Clean() {
		return NewExitError(ExitFailure, fmt.Sprintf("audit found %d issue(s)", len(rep.Findings)))
	}
	return nil
}

func writeAudit(w io.Writer, rep audit.Report) {
	scope := "all dates"
	if rep.Date != "" {
		scope = rep.Date
	}
	fmt.Fprintf(w, "Audited %d live, %d logged, %d queued rows (%s).\n", rep.LiveRows, rep.LogRows, rep.QueueRows, scope)
	if rep.Clean() {
		fmt.Fprintln(w, "No issues found.")
		return
	}
	for _, fd := range rep.Findings {
		fmt.Fprintf(w, "  [%s] %s: %s\n", fd.Severity, fd.Kind, fd.Detail)
	}
	fmt.Fprintf(w, "%d issue(s) found.\n", len(rep.Findings))
}
