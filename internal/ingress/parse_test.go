package ingress

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/breakq/internal/breaks"
	"github.com/roach88/breakq/internal/catalog"
	"github.com/roach88/breakq/internal/queue"
)

func TestParse(t *testing.T) {
	cat := catalog.Default()

	tests := []struct {
		text   string
		action queue.Action
		code   string
	}{
		{"back", queue.ActionEnd, ""},
		{"I'm Back", queue.ActionEnd, ""},
		{"CANCEL", queue.ActionCancel, ""},
		{"cf", queue.ActionStart, "cf"},
		{" CF+2 ", queue.ActionStart, "cf+2"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			cmd, err := Parse(cat, tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.action, cmd.Action)
			assert.Equal(t, tt.code, cmd.Code)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	cat := catalog.Default()
	for _, text := range []string{"", "   ", "lunch please", "cf+9"} {
		_, err := Parse(cat, text)
		assert.ErrorIs(t, err, ErrInvalidCode, "text %q", text)
	}
}

func TestClassify_GateErrors(t *testing.T) {
	assert.Equal(t, breaks.Validation, Classify(ErrInvalidCode))
	assert.Equal(t, breaks.Conflict, Classify(fmt.Errorf("submit: %w", ErrDuplicatePending)))
}

func TestParse_ConfiguredKeywordsMatchLikeUserText(t *testing.T) {
	cat, err := catalog.New(catalog.Default().Definitions(), []string{"I’m  Back"}, []string{"Never Mind"})
	require.NoError(t, err)

	cmd, err := Parse(cat, "i'm back")
	require.NoError(t, err)
	assert.Equal(t, queue.ActionEnd, cmd.Action)

	cmd, err = Parse(cat, "  NEVER   mind ")
	require.NoError(t, err)
	assert.Equal(t, queue.ActionCancel, cmd.Action)
}
