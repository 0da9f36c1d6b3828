package model

import (
	"encoding/json"
	"time"
)

// EventType 事件类型。
// 生命周期事件（created/processing/completed/failed/dismissed）必须持久化且有序；
// stream 事件是高频增量输出，默认只做实时广播，可选落库，允许丢失。
type EventType string

const (
	EventTypeCreated    EventType = "created"
	EventTypeProcessing EventType = "processing"
	EventTypeCompleted  EventType = "completed"
	EventTypeFailed     EventType = "failed"
	EventTypeDismissed  EventType = "dismissed"
	EventTypeStream     EventType = "stream"
)

// IsLifecycle 判断是否为生命周期里程碑事件
func (t EventType) IsLifecycle() bool {
	switch t {
	case EventTypeCreated, EventTypeProcessing, EventTypeCompleted, EventTypeFailed, EventTypeDismissed:
		return true
	default:
		return false
	}
}

// StatusEventType 把终态映射为对应的生命周期事件类型。
// 不是终态时返回空串。
func StatusEventType(s TaskStatus) EventType {
	switch s {
	case TaskStatusCompleted:
		return EventTypeCompleted
	case TaskStatusFailed:
		return EventTypeFailed
	case TaskStatusDismissed:
		return EventTypeDismissed
	default:
		return ""
	}
}

// TaskEvent 追加式事件日志中的一行。
// id 为 bigserial，严格递增，即订阅端的 replay 游标；行创建后不再修改。
type TaskEvent struct {
	ID        int64           `json:"id"`
	TaskID    string          `json:"task_id"`
	ProjectID string          `json:"project_id"`
	UserID    string          `json:"user_id"`
	EventType EventType       `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
