package model

import (
	"encoding/json"
	"time"
)

// 任务终态错误码。
// 带 _ROLLBACK_FAILED 后缀的变体表示任务已失败、且退款补偿也失败，
// 需要运营人工对账；不能因为补偿失败就让任务停留在活跃状态。
const (
	ErrCodeTaskCancelled     = "TASK_CANCELLED"
	ErrCodeWatchdogTimeout   = "WATCHDOG_TIMEOUT"
	ErrCodeEnqueueFailed     = "ENQUEUE_FAILED"
	ErrCodeInsufficientFunds = "INSUFFICIENT_BALANCE"
	ErrCodeMissingLocale     = "MISSING_LOCALE"
	ErrCodeInvalidTaskType   = "INVALID_TASK_TYPE"
	ErrCodeReconcileOrphan   = "RECONCILE_ORPHAN"
	ErrCodeFreezeFailed      = "BILLING_FREEZE_FAILED"

	ErrCodeSuffixRollbackFailed = "_ROLLBACK_FAILED"
)

// BillingStatus 冻结资金的结算状态
type BillingStatus string

const (
	BillingStatusPending    BillingStatus = "pending"
	BillingStatusSettled    BillingStatus = "settled"
	BillingStatusRolledBack BillingStatus = "rolled_back"
)

// BillingInfo 任务创建时的计费快照，整体以 jsonb 存储在 task 行上。
// 不变量：status 一旦进入 settled/rolled_back，或 mode_snapshot 表明免计费，
// 后续 rollback 必须是 no-op（见 billing.RollbackOnce）。
type BillingInfo struct {
	Billable     bool          `json:"billable"`
	FreezeID     string        `json:"freeze_id,omitempty"`
	ModeSnapshot string        `json:"mode_snapshot,omitempty"`
	Status       BillingStatus `json:"status,omitempty"`
}

// NeedsRollback 判断是否还存在未补偿的冻结
func (b BillingInfo) NeedsRollback() bool {
	if !b.Billable || b.FreezeID == "" {
		return false
	}
	if b.ModeSnapshot == BillingModeFree {
		return false
	}
	return b.Status == BillingStatusPending || b.Status == ""
}

// BillingModeFree 免计费模式快照值（例如内测项目），rollback 直接跳过
const BillingModeFree = "free"

// Task 任务实体，authoritative store 中的一行。
// 状态只能通过 TaskRepository 的条件更新操作修改，禁止盲写。
type Task struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	ProjectID  string `json:"project_id"`
	EpisodeID  string `json:"episode_id,omitempty"`
	Type       string `json:"type"`
	TargetType string `json:"target_type,omitempty"`
	TargetID   string `json:"target_id,omitempty"`

	Status   TaskStatus `json:"status"`
	Progress int        `json:"progress"`

	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"max_attempts"`
	Priority    string `json:"priority"`

	// DedupeKey 仅在活跃任务之间唯一；任务进入终态时置空释放，
	// 以便新的活跃任务复用同一个 key。
	DedupeKey string `json:"dedupe_key,omitempty"`

	Payload json.RawMessage `json:"payload,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`

	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	Billing BillingInfo `json:"billing"`

	QueuedAt         time.Time  `json:"queued_at"`
	EnqueuedAt       *time.Time `json:"enqueued_at,omitempty"`
	EnqueueAttempts  int        `json:"enqueue_attempts"`
	LastEnqueueError string     `json:"last_enqueue_error,omitempty"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	HeartbeatAt      *time.Time `json:"heartbeat_at,omitempty"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`

	// ExternalID 外部任务运行时（asynq）内部的任务 ID，首写优先
	ExternalID string `json:"external_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
