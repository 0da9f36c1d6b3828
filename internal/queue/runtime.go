package asynqx

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
)

// Runtime 对外部任务运行时（asynq）的封装：入队 + 存活探测。
type Runtime struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

// NewRuntime 创建 Runtime。redisURI 形如 redis://localhost:6379/0，
// 统一走 asynq.ParseRedisURI，不手工拆 addr/db。
func NewRuntime(redisURI string) (*Runtime, error) {
	opt, err := asynq.ParseRedisURI(redisURI)
	if err != nil {
		return nil, fmt.Errorf("parse redis uri: %w", err)
	}
	return &Runtime{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
	}, nil
}

// Close 关闭底层连接
func (r *Runtime) Close() error {
	ierr := r.inspector.Close()
	cerr := r.client.Close()
	if cerr != nil {
		return cerr
	}
	return ierr
}

// Enqueue 提交任务到外部队列
func (r *Runtime) Enqueue(ctx context.Context, p EnqueueParams) error {
	task := asynq.NewTask(p.TaskType, p.Payload)
	if _, err := r.client.EnqueueContext(ctx, task, EnqueueOptions(p)...); err != nil {
		return fmt.Errorf("enqueue task %s: %w", p.TaskID, err)
	}
	return nil
}

// IsJobAlive 探测外部运行时里该任务是否还存在且未结束。
// 约定（对上游是硬性的）：探测本身失败时必须把错误上抛，
// 绝不允许把"查不到存活信息"当成"已死亡"来猜。
func (r *Runtime) IsJobAlive(ctx context.Context, taskID, priority string) (bool, error) {
	info, err := r.inspector.GetTaskInfo(QueueForPriority(priority), taskID)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("inspect task %s: %w", taskID, err)
	}

	switch info.State {
	case asynq.TaskStateActive, asynq.TaskStatePending, asynq.TaskStateScheduled,
		asynq.TaskStateRetry, asynq.TaskStateAggregating:
		return true, nil
	default:
		// archived / completed：运行时已经放弃或收尾，对核心来说等同于不存在
		return false, nil
	}
}
