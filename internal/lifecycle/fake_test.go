package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/azhengyongqin/genhub/internal/billing"
	"github.com/azhengyongqin/genhub/internal/events"
	"github.com/azhengyongqin/genhub/internal/model"
	asynqx "github.com/azhengyongqin/genhub/internal/queue"
	"github.com/azhengyongqin/genhub/internal/repository"
)

// fakeRepo 内存版 TaskRepository，忠实复刻条件更新语义：
// 每个守卫操作只在源状态匹配时生效，否则 applied=false。
type fakeRepo struct {
	mu    sync.Mutex
	tasks map[string]*model.Task
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{tasks: make(map[string]*model.Task)}
}

func (r *fakeRepo) put(t *model.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.tasks[t.ID] = &cp
}

func (r *fakeRepo) get(id string) *model.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[id]; ok {
		cp := *t
		return &cp
	}
	return nil
}

func (r *fakeRepo) CreateQueued(ctx context.Context, task *model.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if task.DedupeKey != "" {
		for _, t := range r.tasks {
			if t.DedupeKey == task.DedupeKey && t.ProjectID == task.ProjectID && t.Status.IsActive() {
				return repository.ErrDedupeKeyConflict
			}
		}
	}
	now := time.Now()
	task.Status = model.TaskStatusQueued
	task.QueuedAt = now
	task.CreatedAt = now
	task.UpdatedAt = now
	cp := *task
	r.tasks[task.ID] = &cp
	return nil
}

func (r *fakeRepo) GetTask(ctx context.Context, taskID string) (*model.Task, error) {
	if t := r.get(taskID); t != nil {
		return t, nil
	}
	return nil, repository.ErrTaskNotFound
}

func (r *fakeRepo) GetByDedupeKey(ctx context.Context, projectID, dedupeKey string) (*model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found *model.Task
	for _, t := range r.tasks {
		if t.ProjectID == projectID && t.DedupeKey == dedupeKey {
			if found == nil || t.CreatedAt.After(found.CreatedAt) {
				found = t
			}
		}
	}
	if found == nil {
		return nil, repository.ErrTaskNotFound
	}
	cp := *found
	return &cp, nil
}

func (r *fakeRepo) ListByIDs(ctx context.Context, taskIDs []string) ([]model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Task
	for _, id := range taskIDs {
		if t, ok := r.tasks[id]; ok {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *fakeRepo) ReleaseDedupeKey(ctx context.Context, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[taskID]; ok {
		t.DedupeKey = ""
	}
	return nil
}

// guard 源状态匹配才执行 mutate
func (r *fakeRepo) guard(taskID string, allowed []model.TaskStatus, mutate func(*model.Task)) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return false, nil
	}
	match := false
	for _, s := range allowed {
		if t.Status == s {
			match = true
			break
		}
	}
	if !match {
		return false, nil
	}
	mutate(t)
	t.UpdatedAt = time.Now()
	return true, nil
}

func (r *fakeRepo) MarkEnqueued(ctx context.Context, actor, taskID, externalID string) (bool, error) {
	return r.guard(taskID, []model.TaskStatus{model.TaskStatusQueued}, func(t *model.Task) {
		now := time.Now()
		t.EnqueuedAt = &now
		if externalID != "" {
			t.ExternalID = externalID
		}
	})
}

func (r *fakeRepo) MarkEnqueueFailed(ctx context.Context, actor, taskID, enqueueErr string) (bool, error) {
	return r.guard(taskID, []model.TaskStatus{model.TaskStatusQueued}, func(t *model.Task) {
		t.EnqueueAttempts++
		t.LastEnqueueError = enqueueErr
	})
}

func (r *fakeRepo) MarkProcessing(ctx context.Context, actor, taskID, externalID string) (bool, error) {
	return r.guard(taskID, []model.TaskStatus{model.TaskStatusQueued, model.TaskStatusProcessing}, func(t *model.Task) {
		now := time.Now()
		t.Status = model.TaskStatusProcessing
		t.Attempt++
		t.StartedAt = &now
		t.HeartbeatAt = &now
		if externalID != "" && t.ExternalID == "" {
			t.ExternalID = externalID
		}
	})
}

func (r *fakeRepo) SetExternalID(ctx context.Context, actor, taskID, externalID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok || t.Status != model.TaskStatusProcessing || t.ExternalID != "" {
		return false, nil
	}
	t.ExternalID = externalID
	return true, nil
}

func (r *fakeRepo) TouchHeartbeat(ctx context.Context, actor, taskID string) (bool, error) {
	return r.guard(taskID, []model.TaskStatus{model.TaskStatusProcessing}, func(t *model.Task) {
		now := time.Now()
		t.HeartbeatAt = &now
	})
}

func (r *fakeRepo) UpdateProgress(ctx context.Context, actor, taskID string, progress int) (bool, error) {
	return r.guard(taskID, []model.TaskStatus{model.TaskStatusProcessing}, func(t *model.Task) {
		t.Progress = progress
	})
}

func (r *fakeRepo) MarkCompleted(ctx context.Context, actor, taskID string, result json.RawMessage) (bool, error) {
	return r.guard(taskID, []model.TaskStatus{model.TaskStatusProcessing}, func(t *model.Task) {
		now := time.Now()
		t.Status = model.TaskStatusCompleted
		t.Progress = 100
		t.Result = result
		t.FinishedAt = &now
		t.HeartbeatAt = nil
		t.DedupeKey = ""
	})
}

func (r *fakeRepo) MarkFailed(ctx context.Context, actor, taskID, errCode, errMsg string) (bool, error) {
	return r.guard(taskID, []model.TaskStatus{model.TaskStatusQueued, model.TaskStatusProcessing}, func(t *model.Task) {
		now := time.Now()
		t.Status = model.TaskStatusFailed
		t.ErrorCode = errCode
		t.ErrorMessage = errMsg
		t.FinishedAt = &now
		t.HeartbeatAt = nil
		t.DedupeKey = ""
	})
}

func (r *fakeRepo) Requeue(ctx context.Context, actor, taskID string) (bool, error) {
	return r.guard(taskID, []model.TaskStatus{model.TaskStatusProcessing}, func(t *model.Task) {
		t.Status = model.TaskStatusQueued
		t.StartedAt = nil
		t.HeartbeatAt = nil
		t.EnqueuedAt = nil
		t.Progress = 0
	})
}

func (r *fakeRepo) Dismiss(ctx context.Context, actor string, taskIDs []string, userID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var applied []string
	for _, id := range taskIDs {
		t, ok := r.tasks[id]
		if !ok || t.Status != model.TaskStatusFailed || t.UserID != userID {
			continue
		}
		now := time.Now()
		t.Status = model.TaskStatusDismissed
		t.FinishedAt = &now
		applied = append(applied, id)
	}
	return applied, nil
}

func (r *fakeRepo) SetBillingFreeze(ctx context.Context, taskID string, info model.BillingInfo) (bool, error) {
	return r.guard(taskID, []model.TaskStatus{model.TaskStatusQueued}, func(t *model.Task) {
		t.Billing = info
	})
}

func (r *fakeRepo) UpdateBillingStatus(ctx context.Context, taskID string, status model.BillingStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[taskID]; ok {
		t.Billing.Status = status
	}
	return nil
}

func (r *fakeRepo) ListOrphanQueued(ctx context.Context, grace time.Duration, limit int) ([]model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Task
	for _, t := range r.tasks {
		if t.Status == model.TaskStatusQueued && t.EnqueuedAt == nil && time.Since(t.QueuedAt) >= grace {
			out = append(out, *t)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeRepo) ListStaleProcessing(ctx context.Context, timeout time.Duration, limit int) ([]model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Task
	for _, t := range r.tasks {
		if t.Status == model.TaskStatusProcessing && t.HeartbeatAt != nil && time.Since(*t.HeartbeatAt) >= timeout {
			out = append(out, *t)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// fakeLedger 内存账本，记录调用次数
type fakeLedger struct {
	mu            sync.Mutex
	nextFreeze    int
	freezeErr     error
	rollbackErr   error
	FreezeCalls   int
	RollbackCalls int
	SettleCalls   int
}

func (l *fakeLedger) Freeze(ctx context.Context, userID, projectID string, amount int64) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.FreezeCalls++
	if l.freezeErr != nil {
		return "", l.freezeErr
	}
	l.nextFreeze++
	return fmt.Sprintf("frz-%d", l.nextFreeze), nil
}

func (l *fakeLedger) Settle(ctx context.Context, freezeID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.SettleCalls++
	return nil
}

func (l *fakeLedger) Rollback(ctx context.Context, freezeID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.RollbackCalls++
	if l.rollbackErr != nil {
		return false, l.rollbackErr
	}
	return true, nil
}

// fakeQueue 内存队列运行时
type fakeQueue struct {
	mu          sync.Mutex
	enqueued    map[string]asynqx.EnqueueParams
	enqueueErr  error
	alive       map[string]bool
	livenessErr error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{
		enqueued: make(map[string]asynqx.EnqueueParams),
		alive:    make(map[string]bool),
	}
}

func (q *fakeQueue) Enqueue(ctx context.Context, p asynqx.EnqueueParams) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.enqueued[p.TaskID] = p
	q.alive[p.TaskID] = true
	return nil
}

func (q *fakeQueue) IsJobAlive(ctx context.Context, taskID, priority string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.livenessErr != nil {
		return false, q.livenessErr
	}
	return q.alive[taskID], nil
}

// fakeEventRepo 内存追加式事件日志
type fakeEventRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   []model.TaskEvent
}

func (r *fakeEventRepo) Append(ctx context.Context, ev *model.TaskEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	ev.ID = r.nextID
	ev.CreatedAt = time.Now()
	r.rows = append(r.rows, *ev)
	return nil
}

func (r *fakeEventRepo) ListPage(ctx context.Context, projectID string, afterID int64, pageSize int) ([]model.TaskEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
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

// byType 返回指定任务的全部事件类型序列
func (r *fakeEventRepo) typesFor(taskID string) []model.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.EventType
	for _, ev := range r.rows {
		if ev.TaskID == taskID {
			out = append(out, ev.EventType)
		}
	}
	return out
}

type testEnv struct {
	svc     *Service
	repo    *fakeRepo
	ledger  *fakeLedger
	queue   *fakeQueue
	evRepo  *fakeEventRepo
	billing *billing.Compensator
}

func newTestEnv() *testEnv {
	repo := newFakeRepo()
	ledger := &fakeLedger{}
	queue := newFakeQueue()
	evRepo := &fakeEventRepo{}
	publisher := events.NewPublisher(evRepo, nil, "")
	svc := NewService(repo, queue, ledger, publisher)
	return &testEnv{
		svc:     svc,
		repo:    repo,
		ledger:  ledger,
		queue:   queue,
		evRepo:  evRepo,
		billing: billing.NewCompensator(ledger, repo),
	}
}

func validSubmit(dedupeKey string) SubmitRequest {
	return SubmitRequest{
		UserID:     "u-1",
		ProjectID:  "p-1",
		EpisodeID:  "ep-1",
		Type:       "script_generation",
		TargetType: "episode",
		TargetID:   "ep-1",
		Payload:    json.RawMessage(`{"locale":"zh-CN","prompt":"一个雨夜"}`),
		DedupeKey:  dedupeKey,
	}
}
