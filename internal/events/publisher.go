package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/azhengyongqin/genhub/internal/logger"
	"github.com/azhengyongqin/genhub/internal/metrics"
	"github.com/azhengyongqin/genhub/internal/model"
	"github.com/azhengyongqin/genhub/internal/repository"
)

// DefaultChannelPrefix 实时广播的 Redis 频道前缀，按 project 分频道
const DefaultChannelPrefix = "genhub:events:"

// Publisher 事件发布器：先落库（生命周期事件），再向 Redis 广播。
// 广播失败绝不反向影响已提交的状态迁移 —— 订阅端总能通过回放+对账补齐，
// 这里只计数并记日志。
type Publisher struct {
	events repository.EventRepository
	rdb    redis.UniversalClient
	prefix string
}

func NewPublisher(events repository.EventRepository, rdb redis.UniversalClient, channelPrefix string) *Publisher {
	if channelPrefix == "" {
		channelPrefix = DefaultChannelPrefix
	}
	return &Publisher{events: events, rdb: rdb, prefix: channelPrefix}
}

// Channel 返回 project 的广播频道名
func (p *Publisher) Channel(projectID string) string {
	return p.prefix + projectID
}

// LifecycleOpts 生命周期事件的可选覆盖项
type LifecycleOpts struct {
	// Flow 为空时按任务类型从注册表解析
	Flow *model.FlowMeta
	// ReconcileReason 对账合成事件专用
	ReconcileReason string
}

// PublishLifecycle 发布一个生命周期里程碑：持久化 + 广播。
// 事件主体从任务行反规范化（completed 带 result，failed 带错误码/信息）。
func (p *Publisher) PublishLifecycle(ctx context.Context, t *model.Task, typ model.EventType, opts LifecycleOpts) (Envelope, error) {
	if !typ.IsLifecycle() {
		return Envelope{}, fmt.Errorf("not a lifecycle event type: %s", typ)
	}

	body := eventBody{
		TaskType:        t.Type,
		TargetType:      t.TargetType,
		TargetID:        t.TargetID,
		EpisodeID:       t.EpisodeID,
		Flow:            opts.Flow,
		ReconcileReason: opts.ReconcileReason,
	}
	if body.Flow == nil {
		if spec, ok := model.LookupType(t.Type); ok && spec.Flow.FlowID != "" {
			flow := spec.Flow
			body.Flow = &flow
		}
	}
	switch typ {
	case model.EventTypeCompleted:
		body.Result = t.Result
		progress := 100
		body.Progress = &progress
	case model.EventTypeFailed:
		body.ErrorCode = t.ErrorCode
		body.ErrorMessage = t.ErrorMessage
	case model.EventTypeProcessing:
		progress := t.Progress
		body.Progress = &progress
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal event body: %w", err)
	}

	ev := &model.TaskEvent{
		TaskID:    t.ID,
		ProjectID: t.ProjectID,
		UserID:    t.UserID,
		EventType: typ,
		Payload:   payload,
	}
	if err := p.events.Append(ctx, ev); err != nil {
		return Envelope{}, fmt.Errorf("append lifecycle event: %w", err)
	}

	env := FromTaskEvent(*ev)
	p.fanOut(ctx, env)
	return env, nil
}

// PublishStream 发布一个高频增量事件。
// 默认只广播（允许丢失）；persist=true 时也落库（最终结果始终由
// completed 生命周期事件兜底，不依赖 stream 落库）。
func (p *Publisher) PublishStream(ctx context.Context, t *model.Task, chunk json.RawMessage, persist bool) (Envelope, error) {
	body := eventBody{
		TaskType:   t.Type,
		TargetType: t.TargetType,
		TargetID:   t.TargetID,
		EpisodeID:  t.EpisodeID,
		Chunk:      chunk,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal event body: %w", err)
	}

	ev := &model.TaskEvent{
		TaskID:    t.ID,
		ProjectID: t.ProjectID,
		UserID:    t.UserID,
		EventType: model.EventTypeStream,
		Payload:   payload,
	}

	var env Envelope
	if persist {
		if err := p.events.Append(ctx, ev); err != nil {
			return Envelope{}, fmt.Errorf("append stream event: %w", err)
		}
		env = FromTaskEvent(*ev)
	} else {
		// 不落库的 stream 事件没有日志游标，id 置 0
		ev.CreatedAt = time.Now()
		env = FromTaskEvent(*ev)
	}

	p.fanOut(ctx, env)
	return env, nil
}

// fanOut 向订阅端广播，尽力而为
func (p *Publisher) fanOut(ctx context.Context, env Envelope) {
	if p.rdb == nil {
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		metrics.RecordPublishFailure(string(env.Event))
		return
	}
	if err := p.rdb.Publish(ctx, p.Channel(env.ProjectID), data).Err(); err != nil {
		metrics.RecordPublishFailure(string(env.Event))
		logger.WithTask(env.TaskID, env.ProjectID, env.UserID).Warn().
			Err(err).
			Str("event", string(env.Event)).
			Msg("实时广播失败（订阅端可通过回放补齐）")
	}
}
