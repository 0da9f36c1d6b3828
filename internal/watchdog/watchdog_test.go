package watchdog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azhengyongqin/genhub/internal/model"
	"github.com/azhengyongqin/genhub/internal/repository"
)

// stubTasks 只实现看门狗用到的两个扫描方法；其余方法不应被触碰
type stubTasks struct {
	repository.TaskRepository
	orphans []model.Task
	stale   []model.Task

	gotGrace   time.Duration
	gotTimeout time.Duration
	gotLimit   int
}

func (s *stubTasks) ListOrphanQueued(ctx context.Context, grace time.Duration, limit int) ([]model.Task, error) {
	s.gotGrace = grace
	s.gotLimit = limit
	if len(s.orphans) > limit {
		return s.orphans[:limit], nil
	}
	return s.orphans, nil
}

func (s *stubTasks) ListStaleProcessing(ctx context.Context, timeout time.Duration, limit int) ([]model.Task, error) {
	s.gotTimeout = timeout
	if len(s.stale) > limit {
		return s.stale[:limit], nil
	}
	return s.stale, nil
}

type recorderRecoverer struct {
	recovered []string
	expired   []string
	err       error
}

func (r *recorderRecoverer) RecoverOrphanQueued(ctx context.Context, t *model.Task) error {
	r.recovered = append(r.recovered, t.ID)
	return r.err
}

func (r *recorderRecoverer) ExpireStaleProcessing(ctx context.Context, t *model.Task) error {
	r.expired = append(r.expired, t.ID)
	return r.err
}

func TestSweep_DispatchesBothScans(t *testing.T) {
	tasks := &stubTasks{
		orphans: []model.Task{{ID: "q-1"}, {ID: "q-2"}},
		stale:   []model.Task{{ID: "p-1", Attempt: 1, MaxAttempts: 5}},
	}
	rec := &recorderRecoverer{}
	wd := New(tasks, rec, Options{
		SweepInterval:    30 * time.Second,
		HeartbeatTimeout: 90 * time.Second,
		BatchSize:        100,
	})

	wd.Sweep(context.Background())

	assert.Equal(t, []string{"q-1", "q-2"}, rec.recovered, "未入队的 queued 任务应逐个恢复")
	assert.Equal(t, []string{"p-1"}, rec.expired, "心跳超时的 processing 任务应逐个处置")
	assert.Equal(t, 30*time.Second, tasks.gotGrace, "queued 恢复的宽限期应为扫描周期")
	assert.Equal(t, 90*time.Second, tasks.gotTimeout)
	assert.Equal(t, 100, tasks.gotLimit)
}

func TestSweep_BatchBounded(t *testing.T) {
	var orphans []model.Task
	for i := 0; i < 10; i++ {
		orphans = append(orphans, model.Task{ID: string(rune('a' + i))})
	}
	tasks := &stubTasks{orphans: orphans}
	rec := &recorderRecoverer{}
	wd := New(tasks, rec, Options{BatchSize: 3})

	wd.Sweep(context.Background())

	assert.Len(t, rec.recovered, 3, "单轮处理行数应受 batch 上界约束")
}

func TestSweep_RecovererErrorDoesNotAbortBatch(t *testing.T) {
	tasks := &stubTasks{
		orphans: []model.Task{{ID: "q-1"}, {ID: "q-2"}},
	}
	rec := &recorderRecoverer{err: assert.AnError}
	wd := New(tasks, rec, Options{})

	wd.Sweep(context.Background())

	assert.Len(t, rec.recovered, 2, "单个任务失败不应中断整批扫描")
}

func TestOptions_Defaults(t *testing.T) {
	opts := Options{}
	opts.withDefaults()

	require.Equal(t, 30*time.Second, opts.SweepInterval)
	require.Equal(t, 90*time.Second, opts.HeartbeatTimeout)
	require.Equal(t, 100, opts.BatchSize)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	tasks := &stubTasks{}
	rec := &recorderRecoverer{}
	wd := New(tasks, rec, Options{SweepInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		wd.Run(ctx)
		close(done)
	}()

	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("看门狗应在 ctx 取消后退出")
	}
}
