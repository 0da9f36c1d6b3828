package repository

import (
	"encoding/json"
	"time"
)

// TaskModel GORM 模型 - 对应 task 表。
// gorm 只负责建表/迁移，运行时读写全部走 pgx（见 task_repo.go）。
type TaskModel struct {
	ID         string  `gorm:"primaryKey;column:id;type:text"`
	UserID     string  `gorm:"column:user_id;type:text;not null;index:idx_task_user_status"`
	ProjectID  string  `gorm:"column:project_id;type:text;not null;index:idx_task_project_created_at;uniqueIndex:idx_task_dedupe_active,priority:1"`
	EpisodeID  *string `gorm:"column:episode_id;type:text"`
	Type       string  `gorm:"column:type;type:text;not null"`
	TargetType *string `gorm:"column:target_type;type:text"`
	TargetID   *string `gorm:"column:target_id;type:text"`

	Status   string `gorm:"column:status;type:text;not null;index:idx_task_user_status;index:idx_task_status_heartbeat;index:idx_task_status_enqueued"`
	Progress int    `gorm:"column:progress;default:0"`

	Attempt     int    `gorm:"column:attempt;default:0"`
	MaxAttempts int    `gorm:"column:max_attempts;default:5"`
	Priority    string `gorm:"column:priority;type:text;default:default"`

	// 同一 project 的活跃任务间唯一：终态迁移时 key 置空，
	// 部分唯一索引只覆盖非空行。作用域必须与 GetByDedupeKey 的查询一致，
	// 否则跨 project 的同名 key 会让插入竞争的重试永远收敛不了
	DedupeKey *string `gorm:"column:dedupe_key;type:text;uniqueIndex:idx_task_dedupe_active,priority:2,where:dedupe_key is not null"`

	Payload json.RawMessage `gorm:"column:payload;type:jsonb"`
	Result  json.RawMessage `gorm:"column:result;type:jsonb"`

	ErrorCode    *string `gorm:"column:error_code;type:text"`
	ErrorMessage *string `gorm:"column:error_message;type:text"`

	Billing json.RawMessage `gorm:"column:billing;type:jsonb;not null"`

	QueuedAt         time.Time  `gorm:"column:queued_at;not null"`
	EnqueuedAt       *time.Time `gorm:"column:enqueued_at;index:idx_task_status_enqueued"`
	EnqueueAttempts  int        `gorm:"column:enqueue_attempts;default:0"`
	LastEnqueueError *string    `gorm:"column:last_enqueue_error;type:text"`
	StartedAt        *time.Time `gorm:"column:started_at"`
	HeartbeatAt      *time.Time `gorm:"column:heartbeat_at;index:idx_task_status_heartbeat"`
	FinishedAt       *time.Time `gorm:"column:finished_at"`

	ExternalID *string `gorm:"column:external_id;type:text"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index:idx_task_project_created_at,sort:desc"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName 指定表名
func (TaskModel) TableName() string { return "task" }

// TaskEventModel GORM 模型 - 对应 task_event 表。
// 追加式日志：行只插入不更新；id 为 bigserial，是订阅端的回放游标。
type TaskEventModel struct {
	ID        int64           `gorm:"primaryKey;autoIncrement;column:id"`
	TaskID    string          `gorm:"column:task_id;type:text;not null;index:idx_event_task"`
	ProjectID string          `gorm:"column:project_id;type:text;not null;index:idx_event_project_id,priority:1"`
	UserID    string          `gorm:"column:user_id;type:text;not null"`
	EventType string          `gorm:"column:event_type;type:text;not null"`
	Payload   json.RawMessage `gorm:"column:payload;type:jsonb"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// TableName 指定表名
func (TaskEventModel) TableName() string { return "task_event" }

// CreditAccountModel GORM 模型 - 对应 credit_account 表（内置账本）。
// balance 只通过带条件的 UPDATE 变动，禁止盲写。
type CreditAccountModel struct {
	UserID    string    `gorm:"primaryKey;column:user_id;type:text"`
	Balance   int64     `gorm:"column:balance;not null;default:0"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName 指定表名
func (CreditAccountModel) TableName() string { return "credit_account" }

// CreditFreezeModel GORM 模型 - 对应 credit_freeze 表。
// status: frozen -> settled | rolled_back，迁移同样走条件更新，保证退款恰好一次。
type CreditFreezeModel struct {
	ID        string    `gorm:"primaryKey;column:id;type:text"`
	UserID    string    `gorm:"column:user_id;type:text;not null;index:idx_freeze_user"`
	ProjectID string    `gorm:"column:project_id;type:text;not null"`
	Amount    int64     `gorm:"column:amount;not null"`
	Status    string    `gorm:"column:status;type:text;not null;default:frozen"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName 指定表名
func (CreditFreezeModel) TableName() string { return "credit_freeze" }
