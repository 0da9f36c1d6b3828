package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/azhengyongqin/genhub/internal/events"
	"github.com/azhengyongqin/genhub/internal/logger"
	"github.com/azhengyongqin/genhub/internal/metrics"
	"github.com/azhengyongqin/genhub/internal/model"
)

// worker 回调面：job handler 在执行过程中通过这些操作上报状态。
// 所有操作都是条件更新，applied=false 表示输给了并发方（例如看门狗
// 已经判死），worker 应停止继续产生副作用。

// MarkProcessing worker 开始处理（幂等重入安全）
func (s *Service) MarkProcessing(ctx context.Context, taskID, externalID string) (bool, error) {
	applied, err := s.tasks.MarkProcessing(ctx, ActorWorker, taskID, externalID)
	if err != nil || !applied {
		return applied, err
	}

	t, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return true, fmt.Errorf("load task after mark processing: %w", err)
	}
	if _, perr := s.publisher.PublishLifecycle(ctx, t, model.EventTypeProcessing, events.LifecycleOpts{}); perr != nil {
		logger.WithTask(t.ID, t.ProjectID, t.UserID).Error().Err(perr).Msg("发布 processing 事件失败")
	}
	return true, nil
}

// TouchHeartbeat 心跳续约。心跳是 processing 任务唯一的存活信号，
// 停止心跳超过阈值后看门狗会接管。
func (s *Service) TouchHeartbeat(ctx context.Context, taskID string) (bool, error) {
	return s.tasks.TouchHeartbeat(ctx, ActorWorker, taskID)
}

// UpdateProgress 更新进度并广播一条进度 stream 事件（不落库）
func (s *Service) UpdateProgress(ctx context.Context, taskID string, progress int) (bool, error) {
	applied, err := s.tasks.UpdateProgress(ctx, ActorWorker, taskID, progress)
	if err != nil || !applied {
		return applied, err
	}

	t, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return true, nil
	}
	chunk, _ := json.Marshal(map[string]int{"progress": t.Progress})
	if _, perr := s.publisher.PublishStream(ctx, t, chunk, false); perr != nil {
		logger.WithTask(t.ID, t.ProjectID, t.UserID).Warn().Err(perr).Msg("广播进度事件失败")
	}
	return true, nil
}

// SetExternalID 首写优先记录外部运行时任务 ID
func (s *Service) SetExternalID(ctx context.Context, taskID, externalID string) (bool, error) {
	return s.tasks.SetExternalID(ctx, ActorWorker, taskID, externalID)
}

// PublishStream 广播一条增量输出（token 级 chunk）。
// persist=true 时同时落库；绝大多数 chunk 是瞬态的，丢了也没关系 ——
// 最终结果总是由 completed 生命周期事件完整携带。
func (s *Service) PublishStream(ctx context.Context, taskID string, chunk json.RawMessage, persist bool) error {
	t, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if !t.Status.IsActive() {
		// 任务已结束，不再产生 stream 事件
		return nil
	}
	_, err = s.publisher.PublishStream(ctx, t, chunk, persist)
	return err
}

// MarkCompleted worker 上报成功结束
func (s *Service) MarkCompleted(ctx context.Context, taskID string, result json.RawMessage) (bool, error) {
	applied, err := s.tasks.MarkCompleted(ctx, ActorWorker, taskID, result)
	if err != nil || !applied {
		return applied, err
	}

	t, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return true, fmt.Errorf("load task after completion: %w", err)
	}
	metrics.RecordTaskTerminal(t.Type, string(model.TaskStatusCompleted))
	if _, perr := s.publisher.PublishLifecycle(ctx, t, model.EventTypeCompleted, events.LifecycleOpts{}); perr != nil {
		logger.WithTask(t.ID, t.ProjectID, t.UserID).Error().Err(perr).Msg("发布 completed 事件失败")
	}
	return true, nil
}

// MarkFailed worker 上报执行失败（走完整的失败收口：补偿 + 终态 + 事件）
func (s *Service) MarkFailed(ctx context.Context, taskID, errCode, errMsg string) (bool, error) {
	t, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return false, err
	}
	return s.failWithCompensation(ctx, ActorWorker, t, errCode, errMsg)
}
