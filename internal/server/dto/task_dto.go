package dto

import (
	"encoding/json"
	"time"

	"github.com/azhengyongqin/genhub/internal/model"
)

// SubmitTaskRequest 提交任务请求
type SubmitTaskRequest struct {
	UserID     string          `json:"user_id" binding:"required" example:"u-1001"`
	ProjectID  string          `json:"project_id" binding:"required" example:"p-2001"`
	EpisodeID  string          `json:"episode_id" example:"ep-3001"`
	Type       string          `json:"type" binding:"required" example:"script_generation"`
	TargetType string          `json:"target_type" example:"episode"`
	TargetID   string          `json:"target_id" example:"ep-3001"`
	Payload    json.RawMessage `json:"payload" binding:"required"`
	DedupeKey  string          `json:"dedupe_key" example:"script:ep-3001"`
	Priority   string          `json:"priority" example:"default"` // critical, default, low
}

// SubmitTaskResponse 提交任务响应。
// Deduped=true 表示命中了同 key 的活跃任务，返回的是已有任务
type SubmitTaskResponse struct {
	Success bool   `json:"success" example:"true"`
	TaskID  string `json:"task_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Status  string `json:"status" example:"queued"`
	Deduped bool   `json:"deduped" example:"false"`
}

// TaskResponse 任务详情响应
type TaskResponse struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	ProjectID  string `json:"project_id"`
	EpisodeID  string `json:"episode_id,omitempty"`
	Type       string `json:"type"`
	TargetType string `json:"target_type,omitempty"`
	TargetID   string `json:"target_id,omitempty"`

	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Attempt  int    `json:"attempt"`
	Priority string `json:"priority"`

	Result       json.RawMessage `json:"result,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`

	QueuedAt   time.Time  `json:"queued_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// FromTask 从任务实体构造详情响应（payload 和计费快照不对外暴露）
func FromTask(t *model.Task) TaskResponse {
	return TaskResponse{
		ID:           t.ID,
		UserID:       t.UserID,
		ProjectID:    t.ProjectID,
		EpisodeID:    t.EpisodeID,
		Type:         t.Type,
		TargetType:   t.TargetType,
		TargetID:     t.TargetID,
		Status:       string(t.Status),
		Progress:     t.Progress,
		Attempt:      t.Attempt,
		Priority:     t.Priority,
		Result:       t.Result,
		ErrorCode:    t.ErrorCode,
		ErrorMessage: t.ErrorMessage,
		QueuedAt:     t.QueuedAt,
		StartedAt:    t.StartedAt,
		FinishedAt:   t.FinishedAt,
	}
}

// CancelTaskRequest 取消任务请求
type CancelTaskRequest struct {
	Reason string `json:"reason" example:"user cancelled from editor"`
}

// DismissTasksRequest 批量归档失败任务请求
type DismissTasksRequest struct {
	UserID  string   `json:"user_id" binding:"required" example:"u-1001"`
	TaskIDs []string `json:"task_ids" binding:"required"`
}

// DismissTasksResponse 批量归档响应，返回实际生效的任务 id
type DismissTasksResponse struct {
	Dismissed []string `json:"dismissed"`
}

// ProcessingRequest worker 上报开始处理
type ProcessingRequest struct {
	ExternalID string `json:"external_id" example:"asynq-abc123"`
}

// ProgressRequest worker 上报进度
type ProgressRequest struct {
	Progress int `json:"progress" binding:"min=0,max=100" example:"42"`
}

// CompleteRequest worker 上报成功结束
type CompleteRequest struct {
	Result json.RawMessage `json:"result" binding:"required"`
}

// FailRequest worker 上报执行失败
type FailRequest struct {
	ErrorCode    string `json:"error_code" binding:"required" example:"MODEL_TIMEOUT"`
	ErrorMessage string `json:"error_message" example:"generation backend timed out"`
}

// StreamChunkRequest worker 上报增量输出
type StreamChunkRequest struct {
	Chunk   json.RawMessage `json:"chunk" binding:"required"`
	Persist bool            `json:"persist" example:"false"`
}

// ExternalIDRequest worker 上报外部运行时任务 ID
type ExternalIDRequest struct {
	ExternalID string `json:"external_id" binding:"required" example:"asynq-abc123"`
}

// AppliedResponse 条件更新结果。Applied=false 表示迁移输给了并发方
// （任务已被取消/判死/结束），worker 应停止产生副作用
type AppliedResponse struct {
	Applied bool `json:"applied" example:"true"`
}
