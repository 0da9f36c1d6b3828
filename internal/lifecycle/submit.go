package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/azhengyongqin/genhub/internal/logger"
	"github.com/azhengyongqin/genhub/internal/metrics"
	"github.com/azhengyongqin/genhub/internal/model"
	asynqx "github.com/azhengyongqin/genhub/internal/queue"
	"github.com/azhengyongqin/genhub/internal/repository"
)

// SubmitRequest 提交请求
type SubmitRequest struct {
	UserID     string
	ProjectID  string
	EpisodeID  string
	Type       string
	TargetType string
	TargetID   string
	Payload    json.RawMessage
	DedupeKey  string
	Priority   string
}

// SubmitResult 提交结果
type SubmitResult struct {
	Task    *model.Task
	Deduped bool
}

// dedupeRetries 插入竞争的重试上限。同 key 并发提交时输家按赢家的行
// 重走去重判定，正常一两轮内收敛。
const dedupeRetries = 3

// Submit 提交/去重解析：把一个工作请求变成任务行。
// 同一 dedupe_key 至多存在一个活跃任务：
// - 命中活跃且外部任务存活 → 返回已有任务，deduped=true
// - 命中活跃但 payload 损坏或外部任务已丢（孤儿）→ 补偿并失败旧任务，再建新任务
// - 存活探测不可达 → 硬错误上抛（可重试），绝不猜
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	spec, ok := model.LookupType(req.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTaskType, req.Type)
	}
	if spec.RequiresLocale && model.PayloadLocale(req.Payload) == "" {
		return nil, ErrMissingLocale
	}
	if req.Priority == "" {
		req.Priority = asynqx.PriorityDefault
	}

	if req.DedupeKey == "" {
		task, err := s.createAndEnqueue(ctx, req, spec)
		if err != nil {
			return nil, err
		}
		metrics.RecordTaskSubmitted(req.Type, false)
		return &SubmitResult{Task: task}, nil
	}

	for attempt := 0; attempt < dedupeRetries; attempt++ {
		existing, err := s.tasks.GetByDedupeKey(ctx, req.ProjectID, req.DedupeKey)
		switch {
		case errors.Is(err, repository.ErrTaskNotFound):
			// 无人持有该 key，直接创建
		case err != nil:
			return nil, fmt.Errorf("lookup dedupe key: %w", err)
		case existing.Status.IsTerminal():
			// 终态任务不应再持有 key；防御性清理后创建
			if rerr := s.tasks.ReleaseDedupeKey(ctx, existing.ID); rerr != nil {
				return nil, fmt.Errorf("release stale dedupe key: %w", rerr)
			}
		default:
			deduped, err := s.resolveActiveHolder(ctx, existing)
			if err != nil {
				return nil, err
			}
			if deduped {
				metrics.RecordTaskSubmitted(req.Type, true)
				return &SubmitResult{Task: existing, Deduped: true}, nil
			}
			// 旧任务已被失败掉，落到创建路径
		}

		task, err := s.createAndEnqueue(ctx, req, spec)
		if errors.Is(err, repository.ErrDedupeKeyConflict) {
			// 输掉插入竞争：对赢家的行重走判定
			continue
		}
		if err != nil {
			return nil, err
		}
		metrics.RecordTaskSubmitted(req.Type, false)
		return &SubmitResult{Task: task}, nil
	}

	return nil, fmt.Errorf("dedupe key %q: insertion race not converging", req.DedupeKey)
}

// resolveActiveHolder 判定活跃持有者的去留。
// 返回 true 表示去重命中（持有者继续活着）；返回 false 表示持有者已被
// 失败掉（损坏或孤儿），调用方应创建新任务。
// 判定顺序：先查 payload 完整性，再问外部运行时死活 —— payload 损坏的
// 任务不值得探测。
func (s *Service) resolveActiveHolder(ctx context.Context, holder *model.Task) (bool, error) {
	log := logger.WithTask(holder.ID, holder.ProjectID, holder.UserID)

	if !model.ValidatePayload(holder.Type, holder.Payload) {
		log.Warn().Msg("活跃任务 payload 损坏（缺少 locale），失败并替换")
		if _, err := s.failWithCompensation(ctx, ActorSubmit, holder, model.ErrCodeMissingLocale, "payload missing required locale"); err != nil {
			return false, err
		}
		return false, nil
	}

	alive, err := s.queue.IsJobAlive(ctx, holder.ID, holder.Priority)
	if err != nil {
		// 硬错误：不允许把探测失败当成死亡，上抛让调用方重试
		return false, fmt.Errorf("%w: %v", ErrLivenessUnknown, err)
	}
	if alive {
		return true, nil
	}

	// 孤儿：数据库认为活跃，但队列已经弄丢了任务
	log.Warn().Msg("检测到孤儿任务（外部运行时已丢失），失败并替换")
	if _, err := s.failWithCompensation(ctx, ActorSubmit, holder, model.ErrCodeReconcileOrphan, "external queue lost the job"); err != nil {
		return false, err
	}
	return false, nil
}
