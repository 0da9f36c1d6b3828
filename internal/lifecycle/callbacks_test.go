package lifecycle

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azhengyongqin/genhub/internal/model"
)

func TestCallbacks_HappyPath(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	res, err := env.svc.Submit(ctx, validSubmit(""))
	require.NoError(t, err)
	id := res.Task.ID

	applied, err := env.svc.MarkProcessing(ctx, id, "asynq-1")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 1, env.repo.get(id).Attempt, "开始处理应递增 attempt")

	applied, err = env.svc.TouchHeartbeat(ctx, id)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = env.svc.UpdateProgress(ctx, id, 60)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 60, env.repo.get(id).Progress)

	applied, err = env.svc.MarkCompleted(ctx, id, json.RawMessage(`{"url":"s3://out"}`))
	require.NoError(t, err)
	assert.True(t, applied)

	got := env.repo.get(id)
	assert.Equal(t, model.TaskStatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress, "完成时进度应为 100")
	assert.JSONEq(t, `{"url":"s3://out"}`, string(got.Result))
	assert.Nil(t, got.HeartbeatAt, "终态应清除心跳")

	assert.Equal(t,
		[]model.EventType{model.EventTypeCreated, model.EventTypeProcessing, model.EventTypeCompleted},
		env.evRepo.typesFor(id), "生命周期事件应按序落库")
	assert.Zero(t, env.ledger.RollbackCalls, "成功结束不应触发补偿")
}

func TestCallbacks_MarkProcessingIdempotent(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	res, err := env.svc.Submit(ctx, validSubmit(""))
	require.NoError(t, err)

	applied, err := env.svc.MarkProcessing(ctx, res.Task.ID, "")
	require.NoError(t, err)
	assert.True(t, applied)

	// asynq 重投递导致的重入：仍然 applied，attempt 再次递增
	applied, err = env.svc.MarkProcessing(ctx, res.Task.ID, "")
	require.NoError(t, err)
	assert.True(t, applied, "processing 重入应是安全的")
	assert.Equal(t, 2, env.repo.get(res.Task.ID).Attempt)
}

func TestCallbacks_DeniedAfterTerminal(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	res, err := env.svc.Submit(ctx, validSubmit(""))
	require.NoError(t, err)
	id := res.Task.ID
	_, err = env.svc.MarkProcessing(ctx, id, "")
	require.NoError(t, err)

	// 并发方（取消）先一步结束了任务
	require.NoError(t, env.svc.Cancel(ctx, id, ""))

	applied, err := env.svc.TouchHeartbeat(ctx, id)
	require.NoError(t, err)
	assert.False(t, applied, "终态后的心跳必须被拒，worker 据此停止")

	applied, err = env.svc.UpdateProgress(ctx, id, 90)
	require.NoError(t, err)
	assert.False(t, applied)

	applied, err = env.svc.MarkCompleted(ctx, id, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.False(t, applied, "终态不允许再迁移")
	assert.Equal(t, model.TaskStatusFailed, env.repo.get(id).Status, "取消结果应保持")
}

func TestCallbacks_SetExternalIDFirstWriterWins(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	res, err := env.svc.Submit(ctx, validSubmit(""))
	require.NoError(t, err)
	_, err = env.svc.MarkProcessing(ctx, res.Task.ID, "")
	require.NoError(t, err)

	applied, err := env.svc.SetExternalID(ctx, res.Task.ID, "ext-1")
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = env.svc.SetExternalID(ctx, res.Task.ID, "ext-2")
	require.NoError(t, err)
	assert.False(t, applied, "外部 ID 首写优先，后写被拒")
	assert.Equal(t, "ext-1", env.repo.get(res.Task.ID).ExternalID)
}

func TestCallbacks_StreamSkippedAfterTerminal(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	res, err := env.svc.Submit(ctx, validSubmit(""))
	require.NoError(t, err)
	id := res.Task.ID
	_, err = env.svc.MarkProcessing(ctx, id, "")
	require.NoError(t, err)

	// 活跃期的持久化 chunk 落库
	require.NoError(t, env.svc.PublishStream(ctx, id, json.RawMessage(`{"delta":"曾经"}`), true))

	_, err = env.svc.MarkCompleted(ctx, id, json.RawMessage(`{}`))
	require.NoError(t, err)

	// 终态后 worker 迟到的 chunk 被静默丢弃
	require.NoError(t, env.svc.PublishStream(ctx, id, json.RawMessage(`{"delta":"迟到"}`), true))

	streams := 0
	for _, typ := range env.evRepo.typesFor(id) {
		if typ == model.EventTypeStream {
			streams++
		}
	}
	assert.Equal(t, 1, streams, "终态后的 stream 事件不应落库")
}

func TestCallbacks_MarkFailedCompensates(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	res, err := env.svc.Submit(ctx, validSubmit(""))
	require.NoError(t, err)
	_, err = env.svc.MarkProcessing(ctx, res.Task.ID, "")
	require.NoError(t, err)

	applied, err := env.svc.MarkFailed(ctx, res.Task.ID, "MODEL_TIMEOUT", "backend timed out")
	require.NoError(t, err)
	assert.True(t, applied)

	got := env.repo.get(res.Task.ID)
	assert.Equal(t, model.TaskStatusFailed, got.Status)
	assert.Equal(t, "MODEL_TIMEOUT", got.ErrorCode)
	assert.Equal(t, model.BillingStatusRolledBack, got.Billing.Status, "执行失败必须退回冻结")
}
