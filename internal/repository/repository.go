package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/azhengyongqin/genhub/internal/model"
)

// ErrDedupeKeyConflict 活跃任务唯一键冲突（并发提交同一 dedupe_key 时输掉插入竞争）。
// 调用方应重新按 key 查询赢家并重走去重判定。
var ErrDedupeKeyConflict = errors.New("dedupe key held by an active task")

// ErrTaskNotFound 任务不存在
var ErrTaskNotFound = errors.New("task not found")

// TaskRepository 任务仓储接口。
// 所有状态迁移都是条件更新（"仅当当前状态在允许集合内才生效"），
// 返回的 applied=false 表示命中 0 行，由实现负责记录迁移被拒的完整上下文。
// 这是唯一的并发正确性机制：不依赖任何进程内或分布式锁。
type TaskRepository interface {
	// CreateQueued 插入一个 queued 状态的新任务；
	// dedupe_key 撞上活跃唯一索引时返回 ErrDedupeKeyConflict
	CreateQueued(ctx context.Context, task *model.Task) error

	// GetTask 根据 id 获取任务
	GetTask(ctx context.Context, taskID string) (*model.Task, error)

	// GetByDedupeKey 获取持有该 key 的最近一个任务（终态任务的 key 已释放，
	// 正常只会命中活跃任务；命中终态任务说明需要防御性清理）
	GetByDedupeKey(ctx context.Context, projectID, dedupeKey string) (*model.Task, error)

	// ListByIDs 批量获取任务（回放对账用）
	ListByIDs(ctx context.Context, taskIDs []string) ([]model.Task, error)

	// ReleaseDedupeKey 防御性清理：释放终态任务仍然持有的 key
	ReleaseDedupeKey(ctx context.Context, taskID string) error

	// MarkEnqueued 记录入队成功；源状态 {queued}
	MarkEnqueued(ctx context.Context, actor, taskID, externalID string) (bool, error)

	// MarkEnqueueFailed 记录一次入队失败（诊断信息，任务保持 queued 等待重试）；
	// 源状态 {queued}
	MarkEnqueueFailed(ctx context.Context, actor, taskID, enqueueErr string) (bool, error)

	// MarkProcessing worker 开始处理；源状态 {queued, processing}（幂等重入），
	// 设置 started_at/heartbeat_at，attempt+1
	MarkProcessing(ctx context.Context, actor, taskID, externalID string) (bool, error)

	// SetExternalID 首写优先地记录外部运行时任务 ID；源状态 {processing} 且当前为空
	SetExternalID(ctx context.Context, actor, taskID, externalID string) (bool, error)

	// TouchHeartbeat 心跳续约；源状态 {processing}
	TouchHeartbeat(ctx context.Context, actor, taskID string) (bool, error)

	// UpdateProgress 更新进度（0-100）；源状态 {processing}
	UpdateProgress(ctx context.Context, actor, taskID string, progress int) (bool, error)

	// MarkCompleted 成功结束；源状态 {processing}，progress=100，清心跳，释放 key
	MarkCompleted(ctx context.Context, actor, taskID string, result json.RawMessage) (bool, error)

	// MarkFailed 失败结束；源状态 {queued, processing}，清心跳，释放 key
	MarkFailed(ctx context.Context, actor, taskID, errCode, errMsg string) (bool, error)

	// Requeue 重置回 queued（看门狗重试）；源状态 {processing}，
	// 清 started_at/heartbeat_at/enqueued_at，attempt 保持不变
	Requeue(ctx context.Context, actor, taskID string) (bool, error)

	// Dismiss 用户确认失败任务；源状态 {failed}，按 user_id 限定归属，
	// 返回实际迁移成功的任务 id
	Dismiss(ctx context.Context, actor string, taskIDs []string, userID string) ([]string, error)

	// SetBillingFreeze 提交期冻结成功后持久化计费快照；
	// 仅对仍处于 queued 的行生效（任务暴露给队列之前快照必须就位）
	SetBillingFreeze(ctx context.Context, taskID string, info model.BillingInfo) (bool, error)

	// UpdateBillingStatus 持久化计费补偿结果（settled/rolled_back）
	UpdateBillingStatus(ctx context.Context, taskID string, status model.BillingStatus) error

	// ListOrphanQueued 查询从未完成入队的 queued 任务（看门狗恢复用），
	// grace 避免扫到刚创建、入队还在途中的行
	ListOrphanQueued(ctx context.Context, grace time.Duration, limit int) ([]model.Task, error)

	// ListStaleProcessing 查询心跳超时的 processing 任务
	ListStaleProcessing(ctx context.Context, timeout time.Duration, limit int) ([]model.Task, error)
}

// EventRepository 事件日志仓储接口
type EventRepository interface {
	// Append 追加一条事件，返回分配的游标 id
	Append(ctx context.Context, ev *model.TaskEvent) error

	// ListPage 按 id 升序返回 project 下游标之后的一页原始事件行，
	// 类型过滤由上层完成（回放扫描以页为单位推进）
	ListPage(ctx context.Context, projectID string, afterID int64, pageSize int) ([]model.TaskEvent, error)
}
