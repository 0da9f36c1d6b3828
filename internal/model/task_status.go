package model

// TaskStatus 任务状态枚举（API/PG/前端筛选共用）。
// 约定：
// - queued: 已创建（等待入队或等待被 worker 消费）
// - processing: worker 开始处理
// - completed: 成功结束
// - failed: 失败结束（入队失败/执行失败/看门狗超时/取消）
// - dismissed: 用户确认失败后的归档状态
//
// queued/processing 为活跃状态；completed/failed/dismissed 为终态。
// 终态不允许再发生任何状态迁移。
type TaskStatus string

const (
	TaskStatusQueued     TaskStatus = "queued"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusDismissed  TaskStatus = "dismissed"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusQueued, TaskStatusProcessing, TaskStatusCompleted, TaskStatusFailed, TaskStatusDismissed:
		return true
	default:
		return false
	}
}

// IsActive 判断是否为活跃状态（尚未结束）
func (s TaskStatus) IsActive() bool {
	return s == TaskStatusQueued || s == TaskStatusProcessing
}

// IsTerminal 判断是否为终态
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusDismissed:
		return true
	default:
		return false
	}
}
