package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azhengyongqin/genhub/internal/model"
)

func newRedisEnv(t *testing.T) (*memEventRepo, redis.UniversalClient, *Publisher) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	evRepo := &memEventRepo{}
	return evRepo, rdb, NewPublisher(evRepo, rdb, "")
}

func TestPublishLifecycle_PersistsAndDenormalizes(t *testing.T) {
	evRepo, _, pub := newRedisEnv(t)
	ctx := context.Background()

	task := sampleTask("t-1", "u-1")
	task.TargetType = "episode"
	task.TargetID = "ep-1"
	task.EpisodeID = "ep-1"
	task.Status = model.TaskStatusCompleted
	task.Result = json.RawMessage(`{"url":"s3://out"}`)

	env, err := pub.PublishLifecycle(ctx, task, model.EventTypeCompleted, LifecycleOpts{})
	require.NoError(t, err)

	assert.Equal(t, int64(1), env.ID, "生命周期事件必须分配日志游标")
	assert.Equal(t, FamilyLifecycle, env.Type)
	assert.Equal(t, "script_generation", env.TaskType, "任务元信息应反规范化进信封")
	assert.Equal(t, "ep-1", env.EpisodeID)
	require.NotNil(t, env.Flow, "注册了流水线的类型应携带 flow 元信息")
	assert.Equal(t, "episode_pipeline", env.Flow.FlowID)
	require.NotNil(t, env.Progress)
	assert.Equal(t, 100, *env.Progress, "completed 事件进度应为 100")
	assert.JSONEq(t, `{"url":"s3://out"}`, string(env.Result))

	require.Len(t, evRepo.rows, 1)
}

func TestPublishLifecycle_RejectsStreamType(t *testing.T) {
	_, _, pub := newRedisEnv(t)

	_, err := pub.PublishLifecycle(context.Background(), sampleTask("t-1", "u-1"), model.EventTypeStream, LifecycleOpts{})
	assert.Error(t, err, "stream 不允许走生命周期发布口")
}

func TestPublishStream_EphemeralByDefault(t *testing.T) {
	evRepo, _, pub := newRedisEnv(t)
	ctx := context.Background()
	task := sampleTask("t-1", "u-1")

	env, err := pub.PublishStream(ctx, task, json.RawMessage(`{"delta":"雨"}`), false)
	require.NoError(t, err)
	assert.Zero(t, env.ID, "不落库的 stream 事件没有日志游标")
	assert.Empty(t, evRepo.rows, "默认 stream 事件不落库")

	env, err = pub.PublishStream(ctx, task, json.RawMessage(`{"delta":"夜"}`), true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), env.ID, "persist=true 时应分配游标")
	assert.Len(t, evRepo.rows, 1)
}

func TestHub_SubscribeReceivesFanOut(t *testing.T) {
	_, rdb, pub := newRedisEnv(t)
	hub := NewHub(rdb, "")
	defer hub.Close()
	ctx := context.Background()

	ch, cancel := hub.Subscribe(ctx, "p-1")
	defer cancel()
	// 等订阅生效
	time.Sleep(50 * time.Millisecond)

	task := sampleTask("t-1", "u-1")
	_, err := pub.PublishLifecycle(ctx, task, model.EventTypeCreated, LifecycleOpts{})
	require.NoError(t, err)

	select {
	case env := <-ch:
		assert.Equal(t, model.EventTypeCreated, env.Event)
		assert.Equal(t, "t-1", env.TaskID)
		assert.Equal(t, "p-1", env.ProjectID)
	case <-time.After(2 * time.Second):
		t.Fatal("订阅者应收到广播事件")
	}
}

func TestHub_ProjectIsolation(t *testing.T) {
	_, rdb, pub := newRedisEnv(t)
	hub := NewHub(rdb, "")
	defer hub.Close()
	ctx := context.Background()

	ch, cancel := hub.Subscribe(ctx, "p-other")
	defer cancel()
	time.Sleep(50 * time.Millisecond)

	_, err := pub.PublishLifecycle(ctx, sampleTask("t-1", "u-1"), model.EventTypeCreated, LifecycleOpts{})
	require.NoError(t, err)

	select {
	case env := <-ch:
		t.Fatalf("不应收到其他 project 的事件: %+v", env)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestHub_CancelClosesChannel(t *testing.T) {
	_, rdb, _ := newRedisEnv(t)
	hub := NewHub(rdb, "")
	defer hub.Close()

	ch, cancel := hub.Subscribe(context.Background(), "p-1")
	cancel()

	_, ok := <-ch
	assert.False(t, ok, "取消订阅后 channel 应关闭")
}
