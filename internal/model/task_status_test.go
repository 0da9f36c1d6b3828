package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskStatus_ActiveTerminal(t *testing.T) {
	active := []TaskStatus{TaskStatusQueued, TaskStatusProcessing}
	terminal := []TaskStatus{TaskStatusCompleted, TaskStatusFailed, TaskStatusDismissed}

	for _, s := range active {
		assert.True(t, s.Valid(), "活跃状态应合法: %s", s)
		assert.True(t, s.IsActive(), "应为活跃状态: %s", s)
		assert.False(t, s.IsTerminal(), "活跃状态不应是终态: %s", s)
	}
	for _, s := range terminal {
		assert.True(t, s.Valid(), "终态应合法: %s", s)
		assert.False(t, s.IsActive(), "终态不应是活跃状态: %s", s)
		assert.True(t, s.IsTerminal(), "应为终态: %s", s)
	}

	assert.False(t, TaskStatus("running").Valid(), "未注册的状态不应合法")
	assert.False(t, TaskStatus("").Valid())
}

func TestStatusEventType(t *testing.T) {
	assert.Equal(t, EventTypeCompleted, StatusEventType(TaskStatusCompleted))
	assert.Equal(t, EventTypeFailed, StatusEventType(TaskStatusFailed))
	assert.Equal(t, EventTypeDismissed, StatusEventType(TaskStatusDismissed))
	assert.Equal(t, EventType(""), StatusEventType(TaskStatusQueued), "非终态没有对应的终态事件")
	assert.Equal(t, EventType(""), StatusEventType(TaskStatusProcessing))
}

func TestEventType_IsLifecycle(t *testing.T) {
	lifecycle := []EventType{EventTypeCreated, EventTypeProcessing, EventTypeCompleted, EventTypeFailed, EventTypeDismissed}
	for _, e := range lifecycle {
		assert.True(t, e.IsLifecycle(), "应为生命周期事件: %s", e)
	}
	assert.False(t, EventTypeStream.IsLifecycle(), "stream 不是生命周期事件")
	assert.False(t, EventType("unknown").IsLifecycle())
}
