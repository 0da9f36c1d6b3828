package lifecycle

import (
	"context"
	"errors"

	"github.com/azhengyongqin/genhub/internal/billing"
	"github.com/azhengyongqin/genhub/internal/events"
	"github.com/azhengyongqin/genhub/internal/logger"
	"github.com/azhengyongqin/genhub/internal/metrics"
	"github.com/azhengyongqin/genhub/internal/model"
	asynqx "github.com/azhengyongqin/genhub/internal/queue"
	"github.com/azhengyongqin/genhub/internal/repository"
)

// 状态迁移的操作来源，用于迁移被拒日志和计数
const (
	ActorSubmit   = "submit"
	ActorWorker   = "worker"
	ActorWatchdog = "watchdog"
	ActorCancel   = "cancel"
	ActorAPI      = "api"
)

// 输入类错误：快速失败，不重试
var (
	ErrInvalidTaskType = errors.New("unknown task type")
	ErrMissingLocale   = errors.New("payload missing required locale")
)

// ErrLivenessUnknown 存活探测不可达。基础设施类错误：必须上抛给调用方重试，
// 绝不猜测任务死活。
var ErrLivenessUnknown = errors.New("job liveness check unavailable")

// ErrEnqueueFailed 入队失败（资金已按补偿结果处理，任务已进入终态）
var ErrEnqueueFailed = errors.New("enqueue failed")

// QueueRuntime 核心对外部队列运行时的全部要求
type QueueRuntime interface {
	Enqueue(ctx context.Context, p asynqx.EnqueueParams) error
	// IsJobAlive 探测失败时必须返回 err，不允许降级为 false
	IsJobAlive(ctx context.Context, taskID, priority string) (bool, error)
}

// Service 任务生命周期核心：提交/去重、入队协调、worker 回调面、取消/归档。
// 不持有任何进程内锁 —— 并发正确性全部来自仓储层的条件更新。
type Service struct {
	tasks     repository.TaskRepository
	queue     QueueRuntime
	ledger    billing.Ledger
	comp      *billing.Compensator
	publisher *events.Publisher

	defaultMaxAttempts int
}

func NewService(tasks repository.TaskRepository, queue QueueRuntime, ledger billing.Ledger, publisher *events.Publisher) *Service {
	return &Service{
		tasks:              tasks,
		queue:              queue,
		ledger:             ledger,
		comp:               billing.NewCompensator(ledger, tasks),
		publisher:          publisher,
		defaultMaxAttempts: 5,
	}
}

// failWithCompensation 失败路径的统一收口：先补偿资金，再条件更新到 failed，
// 最后发布 failed 生命周期事件。
// 补偿失败时任务仍然走向终态，错误码追加 _ROLLBACK_FAILED 后缀，
// 运营据此人工对账 —— 任务绝不因为补偿失败而停留在活跃状态。
// 返回 applied=false 表示终态迁移输给了并发方（任务已在别处结束）。
func (s *Service) failWithCompensation(ctx context.Context, actor string, t *model.Task, errCode, errMsg string) (bool, error) {
	if _, rbErr := s.comp.RollbackOnce(ctx, t); rbErr != nil {
		errCode += model.ErrCodeSuffixRollbackFailed
	}

	applied, err := s.tasks.MarkFailed(ctx, actor, t.ID, errCode, errMsg)
	if err != nil {
		return false, err
	}
	if !applied {
		return false, nil
	}

	t.Status = model.TaskStatusFailed
	t.ErrorCode = errCode
	t.ErrorMessage = errMsg
	t.DedupeKey = ""

	metrics.RecordTaskTerminal(t.Type, string(model.TaskStatusFailed))
	if _, err := s.publisher.PublishLifecycle(ctx, t, model.EventTypeFailed, events.LifecycleOpts{}); err != nil {
		logger.WithTask(t.ID, t.ProjectID, t.UserID).Error().Err(err).Msg("发布 failed 事件失败")
	}
	return true, nil
}
