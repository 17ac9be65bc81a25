package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	var r Recorder

	require.NoError(t, r.Notify(ctx, "chat-1", "one"))
	require.NoError(t, r.Notify(ctx, "chat-2", "two"))
	require.NoError(t, r.Notify(ctx, "chat-1", "three"))

	assert.Equal(t, []string{"one", "three"}, r.For("chat-1"))
	assert.Len(t, r.Messages(), 3)

	r.Reset()
	assert.Empty(t, r.Messages())
}

func TestRecorder_Concurrent(t *testing.T) {
	var r Recorder
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Notify(context.Background(), "c", "x")
		}()
	}
	wg.Wait()
	assert.Len(t, r.Messages(), 50)
}

func TestLog_WritesStructuredRecord(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	require.NoError(t, Log{Logger: logger}.Notify(context.Background(), "chat-7", "hello"))
	assert.Contains(t, buf.String(), "reply_channel=chat-7")
	assert.Contains(t, buf.String(), "text=hello")
}

func TestSend_LogsFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	failing := Func(func(context.Context, string, string) error { return errors.New("offline") })

	Send(context.Background(), failing, logger, "chat-1", "x")
	assert.Contains(t, buf.String(), "notification failed")

	// nil notifier is a no-op
	Send(context.Background(), nil, logger, "chat-1", "x")
}
