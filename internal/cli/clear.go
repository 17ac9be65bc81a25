package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// ClearOptions holds flags for the clear command.
type ClearOptions struct {
	*RootOptions
	Yes bool
}

// NewClearCommand creates the clear command.
func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ClearOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every pending request (emergency use)",
		Long: `Delete every pending request from the queue.

Requesters are not notified. Live breaks and the punch log are untouched.
Requires --yes.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClear(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Yes, "yes", false, "confirm deleting all pending requests")

	return cmd
}

func runClear(opts *ClearOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	if !opts.Yes {
		return f.Fail(ExitCommandError, ErrCodeArguments, "refusing to clear the queue without --yes", nil)
	}

	svc, err := openService(opts.RootOptions, cmd, f, nil)
	if err != nil {
		return err
	}
	defer svc.Close()

	n, err := svc.queue.Clear(cmd.Context())
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to clear queue", err)
	}
	svc.logger.Warn("queue cleared", "removed", n)

	return f.Render(map[string]int{"removed": n}, func(w io.Writer) {
		fmt.Fprintf(w, "Queue cleared: %d requests removed.\n", n)
	})
}
