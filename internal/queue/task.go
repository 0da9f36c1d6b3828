package asynqx

import (
	"time"

	"github.com/hibiken/asynq"
)

// 任务优先级，映射到独立的 asynq 队列
const (
	PriorityCritical = "critical"
	PriorityDefault  = "default"
	PriorityLow      = "low"
)

// DefaultQueuePriorities asynq server 端的队列权重配置
var DefaultQueuePriorities = map[string]int{
	PriorityCritical: 50,
	PriorityDefault:  30,
	PriorityLow:      10,
}

// QueueForPriority 把任务优先级映射为 asynq 队列名；未知值落到 default
func QueueForPriority(priority string) string {
	switch priority {
	case PriorityCritical, PriorityDefault, PriorityLow:
		return priority
	default:
		return PriorityDefault
	}
}

// EnqueueParams 入队参数
type EnqueueParams struct {
	TaskID         string
	TaskType       string
	Priority       string
	TimeoutSeconds int
	Payload        []byte
}

// EnqueueOptions 组装 asynq 入队选项。
// TaskID 用任务行的 id：asynq 对同一 TaskID 的重复入队返回 ErrTaskIDConflict，
// 与存储层的活跃唯一约束互为兜底。
// 重试由看门狗统一负责（requeue + 重新入队），asynq 自身不重试。
func EnqueueOptions(p EnqueueParams) []asynq.Option {
	opts := []asynq.Option{
		asynq.Queue(QueueForPriority(p.Priority)),
		asynq.MaxRetry(0),
	}
	if p.TaskID != "" {
		opts = append(opts, asynq.TaskID(p.TaskID))
	}
	if p.TimeoutSeconds > 0 {
		opts = append(opts, asynq.Timeout(time.Duration(p.TimeoutSeconds)*time.Second))
	}
	return opts
}
