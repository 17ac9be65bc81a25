package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/breakq/internal/engine"
	"github.com/roach88/breakq/internal/ingress"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Stdin bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the batch processor on its schedule",
		Long: `Run the batch processor until interrupted.

Every interval the scheduler starts sub_cycles evenly spaced batch runs,
so the effective cadence is interval/sub_cycles (10s by default). With
--stdin, each input line "<user> <message>" is submitted through the gate.

Example:
  breakq serve --db ./breakq.db
  breakq serve --stdin --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Stdin, "stdin", false, `read "<user> <message>" lines from stdin`)

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	svc, err := openService(opts.RootOptions, cmd, f, nil)
	if err != nil {
		return err
	}
	defer svc.Close()

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			svc.logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	sched := engine.NewScheduler(svc.processor, svc.cfg.Interval, svc.cfg.SubCycles, svc.logger)

	if opts.Stdin {
		go func() {
			if err := readSubmissions(ctx, cmd.InOrStdin(), svc, sched); err != nil {
				svc.logger.Error("stdin reader stopped", "error", err)
			}
		}()
	}

	svc.logger.Info("processor starting",
		"db", svc.cfg.DBPath,
		"interval", svc.cfg.Interval,
		"sub_cycles", svc.cfg.SubCycles,
		"batch_size", svc.processor.BatchSize(),
		"lease_ttl", svc.cfg.LeaseTTL)
	fmt.Fprintf(cmd.OutOrStdout(), "Processor started. One batch every %s.\n", sched.Cadence())
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "scheduler error", err)
	}

	svc.logger.Info("processor stopped gracefully")
	return nil
}

// readSubmissions feeds "<user> <message>" lines to the gate. A queued
// request kicks the scheduler.
func readSubmissions(ctx context.Context, r io.Reader, svc *service, sched *engine.Scheduler) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		user, text, ok := strings.Cut(strings.TrimSpace(sc.Text()), " ")
		if !ok || user == "" {
			continue
		}
		out, err := svc.gate.Submit(ctx, ingress.Request{User: user, ReplyChannel: user, Text: text})
		if err == nil && out.Status == ingress.StatusQueued {
			sched.Kick()
		}
	}
	return sc.Err()
}
