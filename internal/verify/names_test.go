package verify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ernie/minebridge/internal/domain"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{"plain", "Steve_1", true},
		{"minimum length", "abc", true},
		{"maximum length", "abcdefghijklmnop", true},
		{"too short", "ab", false},
		{"too long", "this_name_is_way_too_long", false},
		{"punctuation", "bad!name", false},
		{"space", "bad name", false},
		{"non ascii letters", "Stévé", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			var ve *domain.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.input, ve.Input)
		})
	}
}

func TestWhitelistAccepted(t *testing.T) {
	tests := []struct {
		response string
		want     bool
	}{
		{"Added Steve_1 to the whitelist", true},
		{"Player is already whitelisted", true},
		{"Steve_1 is already on the whitelist", true},
		{"That player does not exist", false},
		{"Unknown or incomplete command", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, WhitelistAccepted(tt.response), "response %q", tt.response)
	}
}

func TestWhitelistSendsAddCommand(t *testing.T) {
	exec := &fakeExec{responses: []string{"That player does not exist\n"}}

	err := Whitelist(context.Background(), exec, "Nobody")

	require.ErrorIs(t, err, ErrWhitelistRejected)
	assert.Equal(t, "whitelist command rejected: That player does not exist", err.Error())
	assert.Equal(t, []string{"whitelist add Nobody"}, exec.commands)
}

func TestWhitelistPassesTransportErrorsThrough(t *testing.T) {
	boom := errors.New("connection refused")
	exec := &fakeExec{err: &domain.ExecutionError{Command: "whitelist add Steve", Err: boom}}

	err := Whitelist(context.Background(), exec, "Steve")

	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrWhitelistRejected)
}

func TestChannelName(t *testing.T) {
	m := domain.Member{ID: "123456789012", DisplayName: "Alex"}
	assert.Equal(t, "verify-Alex-789012", ChannelName(m))

	short := domain.Member{ID: "42", DisplayName: "Alex"}
	assert.Equal(t, "verify-Alex-42", ChannelName(short))

	long := domain.Member{ID: "123456789012", DisplayName: strings.Repeat("x", 100)}
	name := ChannelName(long)
	assert.Equal(t, 86, len(name))
	assert.True(t, strings.HasSuffix(name, "xxx789012"))
}

func TestStateTerminal(t *testing.T) {
	assert.False(t, StateAwaitingName.Terminal())
	assert.False(t, StateConfirming.Terminal())
	assert.True(t, StateCompleted.Terminal())
	assert.True(t, StateCancelled.Terminal())

	text, err := StateAwaitingConfirmation.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "awaiting_confirmation", string(text))
}
