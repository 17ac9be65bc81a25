// Package notify delivers result text to requesters.
//
// Delivery is fire-and-forget: a Notifier may fail, and the caller logs the
// failure and moves on. Nothing in the core waits on confirmation.
package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Notifier sends text to the channel a request arrived on.
type Notifier interface {
	Notify(ctx context.Context, replyChannel, text string) error
}

// Func adapts a plain function to the Notifier interface.
type Func func(ctx context.Context, replyChannel, text string) error

// Notify calls f.
func (f Func) Notify(ctx context.Context, replyChannel, text string) error {
	return f(ctx, replyChannel, text)
}

// Log writes every notification to a structured logger. It is the sink
// used by the CLI when no transport is attached.
type Log struct {
	Logger *slog.Logger
}

// Notify logs the message at Info level.
func (l Log) Notify(ctx context.Context, replyChannel, text string) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "notify", "reply_channel", replyChannel, "text", text)
	return nil
}

// Discard drops every notification.
var Discard Notifier = Func(func(context.Context, string, string) error { return nil })

// Message is one recorded notification.
type Message struct {
	ReplyChannel string `json:"reply_channel" yaml:"reply_channel"`
	Text         string `json:"text" yaml:"text"`
}

// Recorder keeps every notification in memory.
//
// Thread-safety: safe for concurrent use; the ingress gate notifies from
// many goroutines.
type Recorder struct {
	mu   sync.Mutex
	msgs []Message
}

// Notify records the message.
func (r *Recorder) Notify(_ context.Context, replyChannel, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, Message{ReplyChannel: replyChannel, Text: text})
	return nil
}

// Messages returns a copy of everything recorded so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.msgs))
	copy(out, r.msgs)
	return out
}

// For returns the messages sent to one reply channel, in order.
func (r *Recorder) For(replyChannel string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.msgs {
		if m.ReplyChannel == replyChannel {
			out = append(out, m.Text)
		}
	}
	return out
}

// Reset discards recorded messages.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = nil
}

// Send delivers through n and logs, rather than returns, any failure.
func Send(ctx context.Context, n Notifier, logger *slog.Logger, replyChannel, text string) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, replyChannel, text); err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.WarnContext(ctx, "notification failed", "reply_channel", replyChannel, "error", err)
	}
}
