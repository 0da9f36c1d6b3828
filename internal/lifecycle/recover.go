package lifecycle

import (
	"context"

	"github.com/azhengyongqin/genhub/internal/events"
	"github.com/azhengyongqin/genhub/internal/logger"
	"github.com/azhengyongqin/genhub/internal/model"
)

// 看门狗恢复路径。扫描本身在 internal/watchdog，这里是对单个任务的处置，
// 与其他路径共用同一套条件更新和失败收口，两次扫描撞上同一个任务时
// 只有一次会生效。

// RecoverOrphanQueued 处置从未完成入队的 queued 任务（入队步骤没走完，
// 或进程在建行与入队交接之间崩溃）。
// 校验类问题（坏类型/缺 locale）不可重试，直接失败；
// 瞬态入队失败只记录诊断信息，任务保持 queued 等下一轮。
func (s *Service) RecoverOrphanQueued(ctx context.Context, t *model.Task) error {
	if _, ok := model.LookupType(t.Type); !ok {
		_, err := s.failWithCompensation(ctx, ActorWatchdog, t, model.ErrCodeInvalidTaskType, "unknown task type: "+t.Type)
		return err
	}
	if !model.ValidatePayload(t.Type, t.Payload) {
		_, err := s.failWithCompensation(ctx, ActorWatchdog, t, model.ErrCodeMissingLocale, "payload missing required locale")
		return err
	}
	return s.enqueueTask(ctx, ActorWatchdog, t)
}

// ExpireStaleProcessing 处置心跳超时的 processing 任务：
// 还有重试额度就重置回 queued（attempt 不变，由下一次 MarkProcessing 递增），
// 额度耗尽则带补偿地失败。两条路都发生命周期事件，订阅端能看到恢复过程。
func (s *Service) ExpireStaleProcessing(ctx context.Context, t *model.Task) error {
	if t.Attempt >= t.MaxAttempts {
		_, err := s.failWithCompensation(ctx, ActorWatchdog, t, model.ErrCodeWatchdogTimeout, "heartbeat expired, attempts exhausted")
		return err
	}

	applied, err := s.tasks.Requeue(ctx, ActorWatchdog, t.ID)
	if err != nil {
		return err
	}
	if !applied {
		// 并发方（worker 收尾或另一轮扫描）先动了手，本轮不再处置
		return nil
	}

	t.Status = model.TaskStatusQueued
	t.StartedAt = nil
	t.HeartbeatAt = nil
	t.EnqueuedAt = nil
	t.Progress = 0

	if _, perr := s.publisher.PublishLifecycle(ctx, t, model.EventTypeCreated, events.LifecycleOpts{}); perr != nil {
		logger.WithTask(t.ID, t.ProjectID, t.UserID).Error().Err(perr).Msg("发布重排队事件失败")
	}
	return nil
}
