package lifecycle

import (
	"context"
	"fmt"

	"github.com/azhengyongqin/genhub/internal/events"
	"github.com/azhengyongqin/genhub/internal/logger"
	"github.com/azhengyongqin/genhub/internal/metrics"
	"github.com/azhengyongqin/genhub/internal/model"
)

// Cancel 用户取消任务。
// 协作式取消：这里翻转存储状态并补偿资金，但无法强行打断执行中的 worker ——
// worker 在产生昂贵副作用前应检查任务是否仍活跃（回调面 applied=false 即停）。
// 检测延迟以看门狗扫描周期为上界。
// 已终态的任务取消是成功的 no-op。
func (s *Service) Cancel(ctx context.Context, taskID, reason string) error {
	t, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if t.Status.IsTerminal() {
		return nil
	}
	if reason == "" {
		reason = "cancelled by user"
	}

	applied, err := s.failWithCompensation(ctx, ActorCancel, t, model.ErrCodeTaskCancelled, reason)
	if err != nil {
		return fmt.Errorf("cancel task %s: %w", taskID, err)
	}
	if !applied {
		// 取消和 worker 自己的收尾竞争，输了就是输了：任务已经结束
		logger.WithTask(t.ID, t.ProjectID, t.UserID).Info().Msg("取消未生效（任务已先一步结束）")
	}
	return nil
}

// Dismiss 用户确认（归档）失败任务，按归属限定。
// 返回实际生效的任务 id 列表。
func (s *Service) Dismiss(ctx context.Context, userID string, taskIDs []string) ([]string, error) {
	applied, err := s.tasks.Dismiss(ctx, ActorAPI, taskIDs, userID)
	if err != nil {
		return nil, err
	}
	if len(applied) == 0 {
		return nil, nil
	}

	// 只对本次真正迁移到 dismissed 的行发事件
	tasks, err := s.tasks.ListByIDs(ctx, applied)
	if err != nil {
		return applied, err
	}
	for i := range tasks {
		t := &tasks[i]
		metrics.RecordTaskTerminal(t.Type, string(model.TaskStatusDismissed))
		if _, perr := s.publisher.PublishLifecycle(ctx, t, model.EventTypeDismissed, events.LifecycleOpts{}); perr != nil {
			logger.WithTask(t.ID, t.ProjectID, t.UserID).Error().Err(perr).Msg("发布 dismissed 事件失败")
		}
	}
	return applied, nil
}

// GetTask 查询任务详情
func (s *Service) GetTask(ctx context.Context, taskID string) (*model.Task, error) {
	return s.tasks.GetTask(ctx, taskID)
}
