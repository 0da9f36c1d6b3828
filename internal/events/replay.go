package events

import (
	"context"
	"fmt"

	"github.com/azhengyongqin/genhub/internal/logger"
	"github.com/azhengyongqin/genhub/internal/metrics"
	"github.com/azhengyongqin/genhub/internal/model"
	"github.com/azhengyongqin/genhub/internal/repository"
)

// Replayer 回答"给我 project P 游标 N 之后的全部事件"，
// 并在到达日志末尾时对账：日志与权威状态不一致就合成纠正事件。
type Replayer struct {
	events    repository.EventRepository
	tasks     repository.TaskRepository
	publisher *Publisher

	pageSize        int
	defaultLimit    int
	scanBoundFactor int
}

func NewReplayer(events repository.EventRepository, tasks repository.TaskRepository, publisher *Publisher) *Replayer {
	return &Replayer{
		events:          events,
		tasks:           tasks,
		publisher:       publisher,
		pageSize:        200,
		defaultLimit:    100,
		scanBoundFactor: 10,
	}
}

// SetDefaultLimit 调整未显式传 limit 时的单次回放条数
func (r *Replayer) SetDefaultLimit(limit int) {
	if limit > 0 && limit <= 500 {
		r.defaultLimit = limit
	}
}

// SetScanBoundFactor 调整扫描上界系数（上界 = limit * factor）
func (r *Replayer) SetScanBoundFactor(factor int) {
	if factor > 0 {
		r.scanBoundFactor = factor
	}
}

// Replay 按 id 升序返回游标之后的事件信封。
// userID 非空时只保留该用户的事件。扫描有上界（limit*factor 行），
// 防止极陈旧的游标触发无界扫描；命中上界时返回已找到的部分，
// 客户端用最后一个 id 作为新游标继续即可。
func (r *Replayer) Replay(ctx context.Context, projectID string, afterID int64, userID string, limit int) ([]Envelope, error) {
	if limit <= 0 || limit > 500 {
		limit = r.defaultLimit
	}
	scanBound := limit * r.scanBoundFactor

	var batch []Envelope
	cursor := afterID
	scanned := 0
	reachedEnd := false
	stoppedEarly := false

	for len(batch) < limit && scanned < scanBound {
		page, err := r.events.ListPage(ctx, projectID, cursor, r.pageSize)
		if err != nil {
			return nil, fmt.Errorf("scan event log: %w", err)
		}
		if len(page) == 0 {
			reachedEnd = true
			break
		}
		for _, ev := range page {
			cursor = ev.ID
			scanned++
			if ev.EventType.IsLifecycle() || ev.EventType == model.EventTypeStream {
				if userID == "" || ev.UserID == userID {
					batch = append(batch, FromTaskEvent(ev))
				}
			}
			if len(batch) >= limit || scanned >= scanBound {
				stoppedEarly = true
				break
			}
		}
		if stoppedEarly {
			break
		}
		// 页未满：日志到头了
		if len(page) < r.pageSize {
			reachedEnd = true
			break
		}
	}

	// 在上界处截断的批次可能恰好落在日志末尾。再探一行把"截断"和
	// "到头"区分开：读到末尾的客户端必须得到对账结果，否则批次大小
	// 刚好整除日志长度时，终态纠正事件会永远发不出去
	if stoppedEarly && !reachedEnd {
		peek, err := r.events.ListPage(ctx, projectID, cursor, 1)
		if err != nil {
			return nil, fmt.Errorf("scan event log: %w", err)
		}
		reachedEnd = len(peek) == 0
	}

	// 只有真正读到日志末尾时才对账：
	// 中途截断的批次缺少后续事件，误判不一致会合成重复的纠正事件
	if reachedEnd {
		extra, err := r.reconcile(ctx, batch)
		if err != nil {
			// 对账失败不影响已取得的回放结果
			logger.L.Error().Err(err).Str("project_id", projectID).Msg("回放对账失败")
		}
		batch = append(batch, extra...)
	}

	return batch, nil
}

// reconcile 自愈机制：对批次中引用到的每个任务，核对权威终态与
// 日志中最后一个终态事件。不一致（或终态事件缺失，例如落库与广播
// 之间进程崩溃）就合成一条携带权威状态的纠正事件并追加到日志。
// 保证：回放到日志末尾的客户端看到的终态一定与数据库一致。
func (r *Replayer) reconcile(ctx context.Context, batch []Envelope) ([]Envelope, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	// 每个任务在批次中最后一个终态事件
	lastTerminal := make(map[string]model.EventType)
	var taskIDs []string
	seen := make(map[string]bool)
	for _, env := range batch {
		if !seen[env.TaskID] {
			seen[env.TaskID] = true
			taskIDs = append(taskIDs, env.TaskID)
		}
		if env.Type == FamilyLifecycle {
			switch env.Event {
			case model.EventTypeCompleted, model.EventTypeFailed, model.EventTypeDismissed:
				lastTerminal[env.TaskID] = env.Event
			}
		}
	}

	tasks, err := r.tasks.ListByIDs(ctx, taskIDs)
	if err != nil {
		return nil, fmt.Errorf("load authoritative tasks: %w", err)
	}

	var extra []Envelope
	for i := range tasks {
		t := &tasks[i]
		if !t.Status.IsTerminal() {
			continue
		}
		want := model.StatusEventType(t.Status)

		got, ok := lastTerminal[t.ID]
		if ok && got == want {
			continue
		}
		reason := ReconcileTerminalMissing
		if ok {
			reason = ReconcileTerminalMismatch
		}

		env, err := r.publisher.PublishLifecycle(ctx, t, want, LifecycleOpts{ReconcileReason: reason})
		if err != nil {
			logger.WithTask(t.ID, t.ProjectID, t.UserID).Error().
				Err(err).
				Str("reason", reason).
				Msg("合成纠正事件失败")
			continue
		}
		metrics.RecordTerminalMismatch(reason)
		logger.WithTask(t.ID, t.ProjectID, t.UserID).Warn().
			Str("reason", reason).
			Str("status", string(t.Status)).
			Msg("日志与权威状态不一致，已合成纠正事件")
		extra = append(extra, env)
	}
	return extra, nil
}
