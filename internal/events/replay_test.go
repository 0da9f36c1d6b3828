package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azhengyongqin/genhub/internal/model"
	"github.com/azhengyongqin/genhub/internal/repository"
)

// memEventRepo 内存追加式事件日志
type memEventRepo struct {
	nextID int64
	rows   []model.TaskEvent
}

func (r *memEventRepo) Append(ctx context.Context, ev *model.TaskEvent) error {
	r.nextID++
	ev.ID = r.nextID
	ev.CreatedAt = time.Now()
	r.rows = append(r.rows, *ev)
	return nil
}

func (r *memEventRepo) ListPage(ctx context.Context, projectID string, afterID int64, pageSize int) ([]model.TaskEvent, error) {
	var out []model.TaskEvent
	for _, ev := range r.rows {
		if ev.ProjectID == projectID && ev.ID > afterID {
			out = append(out, ev)
			if len(out) >= pageSize {
				break
			}
		}
	}
	return out, nil
}

// memTaskRepo 只提供对账需要的 ListByIDs，其余方法不应被触碰
type memTaskRepo struct {
	repository.TaskRepository
	tasks map[string]model.Task
}

func (r *memTaskRepo) ListByIDs(ctx context.Context, taskIDs []string) ([]model.Task, error) {
	var out []model.Task
	for _, id := range taskIDs {
		if t, ok := r.tasks[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func newReplayEnv() (*Replayer, *memEventRepo, *memTaskRepo, *Publisher) {
	evRepo := &memEventRepo{}
	taskRepo := &memTaskRepo{tasks: make(map[string]model.Task)}
	pub := NewPublisher(evRepo, nil, "")
	return NewReplayer(evRepo, taskRepo, pub), evRepo, taskRepo, pub
}

func appendLifecycle(t *testing.T, pub *Publisher, task *model.Task, typ model.EventType) Envelope {
	t.Helper()
	env, err := pub.PublishLifecycle(context.Background(), task, typ, LifecycleOpts{})
	require.NoError(t, err)
	return env
}

func sampleTask(id, userID string) *model.Task {
	return &model.Task{
		ID:        id,
		UserID:    userID,
		ProjectID: "p-1",
		Type:      "script_generation",
		Status:    model.TaskStatusQueued,
	}
}

func TestReplay_CursorOrderAndLimit(t *testing.T) {
	r, _, taskRepo, pub := newReplayEnv()
	ctx := context.Background()

	t1 := sampleTask("t-1", "u-1")
	taskRepo.tasks["t-1"] = *t1
	appendLifecycle(t, pub, t1, model.EventTypeCreated)
	appendLifecycle(t, pub, t1, model.EventTypeProcessing)
	t1.Status = model.TaskStatusCompleted
	t1.Result = json.RawMessage(`{"ok":true}`)
	appendLifecycle(t, pub, t1, model.EventTypeCompleted)
	taskRepo.tasks["t-1"] = *t1

	batch, err := r.Replay(ctx, "p-1", 0, "", 10)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	assert.Equal(t, model.EventTypeCreated, batch[0].Event)
	assert.Equal(t, model.EventTypeCompleted, batch[2].Event)
	for i := 1; i < len(batch); i++ {
		assert.Greater(t, batch[i].ID, batch[i-1].ID, "回放必须按日志 id 严格升序")
	}

	// 从游标续读
	tail, err := r.Replay(ctx, "p-1", batch[0].ID, "", 10)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, batch[1].ID, tail[0].ID, "游标之后的第一条应紧接上次")

	// limit 截断
	limited, err := r.Replay(ctx, "p-1", 0, "", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestReplay_DefaultLimit(t *testing.T) {
	r, _, taskRepo, pub := newReplayEnv()
	r.SetDefaultLimit(3)
	ctx := context.Background()

	task := sampleTask("t-1", "u-1")
	taskRepo.tasks["t-1"] = *task
	for i := 0; i < 5; i++ {
		appendLifecycle(t, pub, task, model.EventTypeCreated)
	}

	// 未显式传 limit 时使用配置的默认值
	batch, err := r.Replay(ctx, "p-1", 0, "", 0)
	require.NoError(t, err)
	assert.Len(t, batch, 3)
}

func TestReplay_UserFilter(t *testing.T) {
	r, _, taskRepo, pub := newReplayEnv()
	ctx := context.Background()

	mine := sampleTask("t-mine", "u-1")
	other := sampleTask("t-other", "u-2")
	taskRepo.tasks["t-mine"] = *mine
	taskRepo.tasks["t-other"] = *other
	appendLifecycle(t, pub, mine, model.EventTypeCreated)
	appendLifecycle(t, pub, other, model.EventTypeCreated)

	batch, err := r.Replay(ctx, "p-1", 0, "u-1", 10)
	require.NoError(t, err)
	require.Len(t, batch, 1, "user 过滤只保留本人事件")
	assert.Equal(t, "t-mine", batch[0].TaskID)
}

func TestReplay_ReconcileTerminalMissing(t *testing.T) {
	r, evRepo, taskRepo, pub := newReplayEnv()
	ctx := context.Background()

	// 任务在数据库已 failed，但终态事件没写进日志（落库与发布之间崩溃）
	task := sampleTask("t-1", "u-1")
	appendLifecycle(t, pub, task, model.EventTypeCreated)
	appendLifecycle(t, pub, task, model.EventTypeProcessing)
	task.Status = model.TaskStatusFailed
	task.ErrorCode = model.ErrCodeWatchdogTimeout
	task.ErrorMessage = "heartbeat expired"
	taskRepo.tasks["t-1"] = *task

	batch, err := r.Replay(ctx, "p-1", 0, "", 10)
	require.NoError(t, err)
	require.Len(t, batch, 3, "对账应合成缺失的终态事件")

	last := batch[2]
	assert.Equal(t, model.EventTypeFailed, last.Event)
	assert.Equal(t, ReconcileTerminalMissing, last.ReconcileReason)
	assert.Equal(t, model.ErrCodeWatchdogTimeout, last.ErrorCode, "纠正事件应携带权威错误码")
	assert.Len(t, evRepo.rows, 3, "纠正事件必须追加落库")

	// 纠正事件落库后，再次回放不应重复合成
	again, err := r.Replay(ctx, "p-1", 0, "", 10)
	require.NoError(t, err)
	assert.Len(t, again, 3, "已对齐的日志不应再合成事件")
}

func TestReplay_ReconcileTerminalMismatch(t *testing.T) {
	r, _, taskRepo, pub := newReplayEnv()
	ctx := context.Background()

	// 日志里最后的终态是 completed，但权威状态是 failed
	task := sampleTask("t-1", "u-1")
	appendLifecycle(t, pub, task, model.EventTypeCreated)
	task.Status = model.TaskStatusCompleted
	appendLifecycle(t, pub, task, model.EventTypeCompleted)
	task.Status = model.TaskStatusFailed
	task.ErrorCode = model.ErrCodeTaskCancelled
	taskRepo.tasks["t-1"] = *task

	batch, err := r.Replay(ctx, "p-1", 0, "", 10)
	require.NoError(t, err)
	require.Len(t, batch, 3)

	last := batch[2]
	assert.Equal(t, model.EventTypeFailed, last.Event, "纠正事件应以权威状态为准")
	assert.Equal(t, ReconcileTerminalMismatch, last.ReconcileReason)
}

func TestReplay_ReconcileWhenBatchFillsAtLogEnd(t *testing.T) {
	r, evRepo, taskRepo, pub := newReplayEnv()
	ctx := context.Background()

	// 批次大小恰好整除日志长度：limit=2 刚好吃掉仅有的两条事件。
	// 任务在数据库已 completed 但终态事件缺失 —— 即使批次在上界处截断，
	// 读到日志末尾的客户端也必须拿到纠正事件
	task := sampleTask("t-1", "u-1")
	appendLifecycle(t, pub, task, model.EventTypeCreated)
	appendLifecycle(t, pub, task, model.EventTypeProcessing)
	task.Status = model.TaskStatusCompleted
	task.Result = json.RawMessage(`{"ok":true}`)
	taskRepo.tasks["t-1"] = *task

	batch, err := r.Replay(ctx, "p-1", 0, "", 2)
	require.NoError(t, err)
	require.Len(t, batch, 3, "批次在日志末尾填满时仍须对账")

	last := batch[2]
	assert.Equal(t, model.EventTypeCompleted, last.Event)
	assert.Equal(t, ReconcileTerminalMissing, last.ReconcileReason)
	assert.Len(t, evRepo.rows, 3, "纠正事件必须追加落库")

	// 续读游标之后只剩纠正事件本身，不再重复合成
	tail, err := r.Replay(ctx, "p-1", batch[1].ID, "", 2)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, model.EventTypeCompleted, tail[0].Event)
}

func TestReplay_NoReconcileForActiveTask(t *testing.T) {
	r, evRepo, taskRepo, pub := newReplayEnv()
	ctx := context.Background()

	task := sampleTask("t-1", "u-1")
	appendLifecycle(t, pub, task, model.EventTypeCreated)
	taskRepo.tasks["t-1"] = *task

	batch, err := r.Replay(ctx, "p-1", 0, "", 10)
	require.NoError(t, err)
	assert.Len(t, batch, 1, "活跃任务无需对账")
	assert.Len(t, evRepo.rows, 1)
}

func TestReplay_ScanBoundStopsRunawayScan(t *testing.T) {
	r, _, taskRepo, pub := newReplayEnv()
	r.SetScanBoundFactor(2)
	ctx := context.Background()

	// 大量别人的事件夹着一条目标用户的事件：
	// 扫描上界命中后返回部分结果，不做对账
	other := sampleTask("t-other", "u-2")
	taskRepo.tasks["t-other"] = *other
	for i := 0; i < 30; i++ {
		appendLifecycle(t, pub, other, model.EventTypeCreated)
	}
	mine := sampleTask("t-mine", "u-1")
	mine.Status = model.TaskStatusFailed
	taskRepo.tasks["t-mine"] = *mine
	appendLifecycle(t, pub, mine, model.EventTypeCreated)

	batch, err := r.Replay(ctx, "p-1", 0, "u-1", 5)
	require.NoError(t, err)
	// 上界 = 5*2 = 10 行，目标事件在第 31 行，扫描应提前停止
	assert.Empty(t, batch, "命中扫描上界应返回已找到的部分（此处为空）")
}
