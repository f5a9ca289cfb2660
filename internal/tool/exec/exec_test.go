package exec

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteRunsCommandAndCapturesOutput(t *testing.T) {
	c := New(Config{DefaultTimeout: 5 * time.Second})
	out, err := c.Execute(context.Background(), "c1", json.RawMessage(`{"command":"echo hello"}`))
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.False(t, out.IsError)
	assert.Contains(t, out.Content, "hello")
}

func TestExecuteRejectsMissingCommand(t *testing.T) {
	c := New(Config{})
	out, err := c.Execute(context.Background(), "c1", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.True(t, out.IsError)
	assert.Contains(t, out.Content, "command is required")
}

func TestExecuteBlocksDeniedExecutable(t *testing.T) {
	c := New(Config{DenyPatterns: []string{"rm"}})
	out, err := c.Execute(context.Background(), "c1", json.RawMessage(`{"command":"rm -rf /"}`))
	require.NoError(t, err)
	assert.True(t, out.IsError)
	assert.Contains(t, out.Content, "blocked by policy")
}

func TestExecuteEnforcesAllowList(t *testing.T) {
	c := New(Config{AllowPatterns: []string{"echo"}})
	out, err := c.Execute(context.Background(), "c1", json.RawMessage(`{"command":"echo ok"}`))
	require.NoError(t, err)
	assert.False(t, out.IsError)

	out, err = c.Execute(context.Background(), "c2", json.RawMessage(`{"command":"ls"}`))
	require.NoError(t, err)
	assert.True(t, out.IsError)
}

func TestExecuteReportsNonZeroExit(t *testing.T) {
	c := New(Config{})
	out, err := c.Execute(context.Background(), "c1", json.RawMessage(`{"command":"exit 3"}`))
	require.NoError(t, err)
	assert.True(t, out.IsError)
	assert.Contains(t, out.Content, `"exit_code": 3`)
}

func TestExecuteTimesOutSlowCommands(t *testing.T) {
	c := New(Config{DefaultTimeout: 50 * time.Millisecond})
	out, err := c.Execute(context.Background(), "c1", json.RawMessage(`{"command":"sleep 5"}`))
	require.NoError(t, err)
	assert.True(t, out.IsError)
	assert.Contains(t, out.Content, `"timed_out": true`)
}

func TestExecuteAppliesRateLimit(t *testing.T) {
	c := New(Config{RatePerMinute: 60, BurstSize: 1, DefaultTimeout: time.Second})

	start := time.Now()
	_, err := c.Execute(context.Background(), "c1", json.RawMessage(`{"command":"echo one"}`))
	require.NoError(t, err)
	_, err = c.Execute(context.Background(), "c2", json.RawMessage(`{"command":"echo two"}`))
	require.NoError(t, err)
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 900*time.Millisecond, "second call should wait for the token bucket to refill")
}
