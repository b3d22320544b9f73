package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnowflakeWritesNumericIDsAsNumbers(t *testing.T) {
	rec := NewMappingRecord("123456789012345678", "Steve_1", time.Date(2025, 3, 1, 12, 30, 0, 5000, time.UTC))

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"discord_id":123456789012345678,"minecraft_name":"Steve_1","timestamp":"2025-03-01T12:30:00.000005"}`, string(data))
}

func TestSnowflakeQuotesNonNumericIDs(t *testing.T) {
	data, err := json.Marshal(Snowflake("member-1"))
	require.NoError(t, err)
	assert.Equal(t, `"member-1"`, string(data))
}

func TestSnowflakeAcceptsNumberOrString(t *testing.T) {
	var m Mappings
	err := json.Unmarshal([]byte(`{
		"1": {"discord_id": 1, "minecraft_name": "a_b", "timestamp": "x"},
		"2": {"discord_id": "2", "minecraft_name": "c_d", "timestamp": "y"}
	}`), &m)
	require.NoError(t, err)
	assert.Equal(t, Snowflake("1"), m["1"].DiscordID)
	assert.Equal(t, Snowflake("2"), m["2"].DiscordID)
}

func TestMemberHasRole(t *testing.T) {
	m := Member{ID: "1", RoleIDs: []string{"a", "b"}}
	assert.True(t, m.HasRole("b"))
	assert.False(t, m.HasRole("c"))
	assert.Equal(t, "<@1>", m.Mention())
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("boom")

	var exec error = &ExecutionError{Command: "list", Err: cause}
	assert.ErrorIs(t, exec, cause)
	assert.Contains(t, exec.Error(), `"list"`)

	var pe *PersistenceError
	assert.True(t, errors.As(error(&PersistenceError{Op: "write", Err: cause}), &pe))
	assert.ErrorIs(t, &CollaborationError{Op: "send", Err: cause}, cause)
}

func TestGameEventEncode(t *testing.T) {
	data, err := Chat("Alice", "hello").Encode(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"chat","player":"Alice","text":"hello","timestamp":"2025-01-01T00:00:00Z"}`, string(data))
	assert.Equal(t, "unknown", EventKind(99).String())
}
