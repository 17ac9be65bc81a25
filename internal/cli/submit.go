package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/breakq/internal/ingress"
)

// SubmitOptions holds flags for the submit command.
type SubmitOptions struct {
	*RootOptions
	Reply string
}

// SubmitResult is the JSON payload of the submit command.
type SubmitResult struct {
	Status    string `json:"status"`
	User      string `json:"user"`
	EntryID   string `json:"entry_id,omitempty"`
	Action    string `json:"action,omitempty"`
	Code      string `json:"code,omitempty"`
	Ack       string `json:"ack"`
	ErrorCode string `json:"error_code,omitempty"` // ErrCodeRejected when turned away
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "submit <user> <message...>",
		Short: "Send one chat message through the gate",
		Long: `Classify a chat message and queue it for the batch processor.

Break codes start a break, "back" ends one and "cancel" discards one.
Invalid codes and a second request while one is pending are rejected
with exit code 1.

Examples:
  breakq submit alice cf
  breakq submit alice "i'm back" --reply chat-42`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(opts, args[0], strings.Join(args[1:], " "), cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Reply, "reply", "", "reply channel (defaults to the user)")

	return cmd
}

func runSubmit(opts *SubmitOptions, user, text string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	svc, err := openService(opts.RootOptions, cmd, f, nil)
	if err != nil {
		return err
	}
	defer svc.Close()

	reply := opts.Reply
	if reply == "" {
		reply = user
	}

	out, err := svc.gate.Submit(cmd.Context(), ingress.Request{User: user, ReplyChannel: reply, Text: text})
	if err != nil && !isRejection(err) {
		return f.Fail(ExitCommandError, ErrCodeStore, "failed to queue request", err)
	}

	res := SubmitResult{
		Status:  string(out.Status),
		User:    out.User,
		EntryID: out.Entry.ID,
		Action:  string(out.Command.Action),
		Code:    out.Command.Code,
		Ack:     out.Ack,
	}
	if out.Status == ingress.StatusRejected {
		res.ErrorCode = ErrCodeRejected
	}
	if err := f.Render(res, func(w io.Writer) { fmt.Fprintln(w, out.Ack) }); err != nil {
		return err
	}
	if out.Status == ingress.StatusRejected {
		return WrapExitError(ExitFailure, "request rejected", out.Reason)
	}
	return nil
}

// isRejection reports whether the gate turned the request away, as opposed
// to failing to reach the store.
func isRejection(err error) bool {
	return errors.Is(err, ingress.ErrInvalidCode) ||
		errors.Is(err, ingress.ErrDuplicatePending) ||
		errors.Is(err, ingress.ErrUserBusy)
}
