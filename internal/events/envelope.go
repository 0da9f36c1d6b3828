package events

import (
	"encoding/json"
	"time"

	"github.com/azhengyongqin/genhub/internal/model"
)

// 事件家族
const (
	FamilyLifecycle = "lifecycle"
	FamilyStream    = "stream"
)

// 对账原因
const (
	ReconcileTerminalMismatch = "terminal_event_mismatch"
	ReconcileTerminalMissing  = "terminal_event_missing"
)

// Envelope 下发给订阅端的事件信封。
// 任务元信息（类型/目标/剧集/流水线阶段）已反规范化进来，
// 回放消费者不需要二次查询。
type Envelope struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"` // lifecycle | stream
	Event     model.EventType `json:"event"`
	TaskID    string          `json:"task_id"`
	ProjectID string          `json:"project_id"`
	UserID    string          `json:"user_id"`
	TS        time.Time       `json:"ts"`

	TaskType   string          `json:"task_type,omitempty"`
	TargetType string          `json:"target_type,omitempty"`
	TargetID   string          `json:"target_id,omitempty"`
	EpisodeID  string          `json:"episode_id,omitempty"`
	Flow       *model.FlowMeta `json:"flow,omitempty"`

	Progress        *int            `json:"progress,omitempty"`
	Result          json.RawMessage `json:"result,omitempty"`
	ErrorCode       string          `json:"error_code,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	Chunk           json.RawMessage `json:"chunk,omitempty"`
	ReconcileReason string          `json:"reconcile_reason,omitempty"`
}

// eventBody 持久化在 task_event.payload 里的信封主体
// （id/task_id/project_id/user_id/event_type/created_at 是独立列）
type eventBody struct {
	TaskType        string          `json:"task_type,omitempty"`
	TargetType      string          `json:"target_type,omitempty"`
	TargetID        string          `json:"target_id,omitempty"`
	EpisodeID       string          `json:"episode_id,omitempty"`
	Flow            *model.FlowMeta `json:"flow,omitempty"`
	Progress        *int            `json:"progress,omitempty"`
	Result          json.RawMessage `json:"result,omitempty"`
	ErrorCode       string          `json:"error_code,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	Chunk           json.RawMessage `json:"chunk,omitempty"`
	ReconcileReason string          `json:"reconcile_reason,omitempty"`
}

func familyOf(t model.EventType) string {
	if t.IsLifecycle() {
		return FamilyLifecycle
	}
	return FamilyStream
}

// FromTaskEvent 从持久化行重建信封
func FromTaskEvent(ev model.TaskEvent) Envelope {
	env := Envelope{
		ID:        ev.ID,
		Type:      familyOf(ev.EventType),
		Event:     ev.EventType,
		TaskID:    ev.TaskID,
		ProjectID: ev.ProjectID,
		UserID:    ev.UserID,
		TS:        ev.CreatedAt,
	}
	if len(ev.Payload) > 0 {
		var body eventBody
		if err := json.Unmarshal(ev.Payload, &body); err == nil {
			env.TaskType = body.TaskType
			env.TargetType = body.TargetType
			env.TargetID = body.TargetID
			env.EpisodeID = body.EpisodeID
			env.Flow = body.Flow
			env.Progress = body.Progress
			env.Result = body.Result
			env.ErrorCode = body.ErrorCode
			env.ErrorMessage = body.ErrorMessage
			env.Chunk = body.Chunk
			env.ReconcileReason = body.ReconcileReason
		}
	}
	return env
}
