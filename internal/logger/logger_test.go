package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	prev := L
	buf := &bytes.Buffer{}
	L = zerolog.New(buf)
	t.Cleanup(func() { L = prev })
	return buf
}

func TestWithTask(t *testing.T) {
	buf := captureOutput(t)

	// 链式调用必须可用（级别方法是指针接收者）
	WithTask("t-1", "p-1", "u-1").Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "t-1", entry["task_id"])
	assert.Equal(t, "p-1", entry["project_id"])
	assert.Equal(t, "u-1", entry["user_id"])
	assert.Equal(t, "hello", entry["message"])
}

func TestWithTaskID(t *testing.T) {
	buf := captureOutput(t)

	log := WithTaskID("t-2")
	log.Warn().Str("actor", "watchdog").Msg("迁移被拒")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "t-2", entry["task_id"])
	assert.Equal(t, "watchdog", entry["actor"])
}

func TestWithRequestID(t *testing.T) {
	buf := captureOutput(t)

	WithRequestID("req-1").Error().Msg("boom")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "error", entry["level"])
}
