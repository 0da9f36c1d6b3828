package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/azhengyongqin/genhub/internal/billing"
	"github.com/azhengyongqin/genhub/internal/events"
	"github.com/azhengyongqin/genhub/internal/logger"
	"github.com/azhengyongqin/genhub/internal/model"
	asynqx "github.com/azhengyongqin/genhub/internal/queue"
)

// createAndEnqueue 入队协调：建行 → 冻结 → created 事件 → 入队。
// 任何一步失败都把任务送进终态并完成补偿，绝不留下"钱冻着、任务却不存在
// 于队列"的悬挂状态。
func (s *Service) createAndEnqueue(ctx context.Context, req SubmitRequest, spec model.TypeSpec) (*model.Task, error) {
	t := &model.Task{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		ProjectID:   req.ProjectID,
		EpisodeID:   req.EpisodeID,
		Type:        req.Type,
		TargetType:  req.TargetType,
		TargetID:    req.TargetID,
		Status:      model.TaskStatusQueued,
		MaxAttempts: s.defaultMaxAttempts,
		Priority:    req.Priority,
		DedupeKey:   req.DedupeKey,
		Payload:     req.Payload,
		Billing:     model.BillingInfo{Billable: spec.Billable},
	}

	if err := s.tasks.CreateQueued(ctx, t); err != nil {
		return nil, err
	}
	log := logger.WithTask(t.ID, t.ProjectID, t.UserID)

	// 冻结资金；快照必须在任务暴露给队列之前就位
	if spec.Billable {
		freezeID, err := s.ledger.Freeze(ctx, t.UserID, t.ProjectID, spec.FreezeAmount)
		if err != nil {
			if errors.Is(err, billing.ErrInsufficientBalance) {
				// 余额不足：输入类错误，无冻结可补偿，直接失败，不入队
				if _, ferr := s.failWithCompensation(ctx, ActorSubmit, t, model.ErrCodeInsufficientFunds, "insufficient balance"); ferr != nil {
					log.Error().Err(ferr).Msg("标记余额不足失败")
				}
				return nil, fmt.Errorf("freeze %d credits: %w", spec.FreezeAmount, err)
			}
			if _, ferr := s.failWithCompensation(ctx, ActorSubmit, t, model.ErrCodeFreezeFailed, err.Error()); ferr != nil {
				log.Error().Err(ferr).Msg("标记冻结失败失败")
			}
			return nil, fmt.Errorf("freeze %d credits: %w", spec.FreezeAmount, err)
		}

		t.Billing = model.BillingInfo{
			Billable: true,
			FreezeID: freezeID,
			Status:   model.BillingStatusPending,
		}
		applied, err := s.tasks.SetBillingFreeze(ctx, t.ID, t.Billing)
		if err != nil || !applied {
			// 快照写不进去（行已不在 queued）：补偿冻结，保持资金守恒
			if _, rbErr := s.comp.RollbackOnce(ctx, t); rbErr != nil {
				log.Error().Err(rbErr).Str("freeze_id", freezeID).Msg("冻结快照持久化失败且补偿失败，需人工对账")
			}
			if err != nil {
				return nil, fmt.Errorf("persist billing snapshot: %w", err)
			}
			return nil, fmt.Errorf("persist billing snapshot: task %s no longer queued", t.ID)
		}
	}

	if _, err := s.publisher.PublishLifecycle(ctx, t, model.EventTypeCreated, events.LifecycleOpts{}); err != nil {
		log.Error().Err(err).Msg("发布 created 事件失败")
	}

	if err := s.enqueueTask(ctx, ActorSubmit, t); err != nil {
		return nil, err
	}
	return t, nil
}

// enqueueTask 把任务交给外部队列并记录结果。看门狗的 queued 恢复复用此路径。
// 失败时：记录入队错误（独立于终态标记的诊断信息）→ 补偿 → 标记失败，
// 错误码区分"钱已退回"与"补偿也失败"。
func (s *Service) enqueueTask(ctx context.Context, actor string, t *model.Task) error {
	log := logger.WithTask(t.ID, t.ProjectID, t.UserID)

	err := s.queue.Enqueue(ctx, asynqx.EnqueueParams{
		TaskID:   t.ID,
		TaskType: t.Type,
		Priority: t.Priority,
		Payload:  t.Payload,
	})
	if err == nil {
		if _, merr := s.tasks.MarkEnqueued(ctx, actor, t.ID, ""); merr != nil {
			return fmt.Errorf("mark enqueued: %w", merr)
		}
		return nil
	}

	log.Error().Err(err).Msg("入队失败")
	if _, merr := s.tasks.MarkEnqueueFailed(ctx, actor, t.ID, err.Error()); merr != nil {
		log.Error().Err(merr).Msg("记录入队错误失败")
	}

	if actor == ActorWatchdog {
		// 看门狗路径：瞬态入队失败留给下一轮重试，任务保持 queued
		return fmt.Errorf("%w: %v", ErrEnqueueFailed, err)
	}

	if _, ferr := s.failWithCompensation(ctx, actor, t, model.ErrCodeEnqueueFailed, err.Error()); ferr != nil {
		return fmt.Errorf("mark enqueue-failed task: %w", ferr)
	}
	return fmt.Errorf("%w: %v", ErrEnqueueFailed, err)
}
