package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/azhengyongqin/genhub/internal/logger"
	"github.com/azhengyongqin/genhub/internal/metrics"
	"github.com/azhengyongqin/genhub/internal/model"
)

// TaskRepo TaskRepository 的 pgx 实现。
// 并发控制完全依赖条件更新 + 受影响行数检查（status 列上的原子 compare-and-set），
// 单条 update 语句的行级原子性由数据库保证。
type TaskRepo struct {
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

const taskColumns = `id, user_id, project_id, coalesce(episode_id,''), type, coalesce(target_type,''), coalesce(target_id,''),
status, progress, attempt, max_attempts, priority, coalesce(dedupe_key,''),
payload, result, coalesce(error_code,''), coalesce(error_message,''), billing,
queued_at, enqueued_at, enqueue_attempts, coalesce(last_enqueue_error,''),
started_at, heartbeat_at, finished_at, coalesce(external_id,''), created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*model.Task, error) {
	var t model.Task
	var billing []byte
	if err := row.Scan(
		&t.ID, &t.UserID, &t.ProjectID, &t.EpisodeID, &t.Type, &t.TargetType, &t.TargetID,
		&t.Status, &t.Progress, &t.Attempt, &t.MaxAttempts, &t.Priority, &t.DedupeKey,
		&t.Payload, &t.Result, &t.ErrorCode, &t.ErrorMessage, &billing,
		&t.QueuedAt, &t.EnqueuedAt, &t.EnqueueAttempts, &t.LastEnqueueError,
		&t.StartedAt, &t.HeartbeatAt, &t.FinishedAt, &t.ExternalID, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(billing) > 0 {
		if err := json.Unmarshal(billing, &t.Billing); err != nil {
			return nil, fmt.Errorf("unmarshal billing snapshot: %w", err)
		}
	}
	return &t, nil
}

func (r *TaskRepo) CreateQueued(ctx context.Context, t *model.Task) error {
	if t.ID == "" {
		return errors.New("task id 不能为空")
	}
	billing, err := json.Marshal(t.Billing)
	if err != nil {
		return fmt.Errorf("marshal billing snapshot: %w", err)
	}

	var dedupeKey *string
	if t.DedupeKey != "" {
		dedupeKey = &t.DedupeKey
	}
	var episodeID *string
	if t.EpisodeID != "" {
		episodeID = &t.EpisodeID
	}

	_, err = r.pool.Exec(ctx, `
insert into task(id, user_id, project_id, episode_id, type, target_type, target_id,
                 status, progress, attempt, max_attempts, priority, dedupe_key,
                 payload, billing, queued_at)
values ($1,$2,$3,$4,$5,$6,$7,$8,0,0,$9,$10,$11,$12,$13,now())
`, t.ID, t.UserID, t.ProjectID, episodeID, t.Type, nullIfEmpty(t.TargetType), nullIfEmpty(t.TargetID),
		string(model.TaskStatusQueued), t.MaxAttempts, t.Priority, dedupeKey, t.Payload, billing)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && strings.Contains(pgErr.ConstraintName, "dedupe") {
			return ErrDedupeKeyConflict
		}
		return err
	}
	return nil
}

func (r *TaskRepo) GetTask(ctx context.Context, taskID string) (*model.Task, error) {
	row := r.pool.QueryRow(ctx, `select `+taskColumns+` from task where id=$1`, taskID)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	return t, err
}

func (r *TaskRepo) GetByDedupeKey(ctx context.Context, projectID, dedupeKey string) (*model.Task, error) {
	row := r.pool.QueryRow(ctx, `
select `+taskColumns+`
from task
where project_id=$1 and dedupe_key=$2
order by created_at desc
limit 1
`, projectID, dedupeKey)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	return t, err
}

func (r *TaskRepo) ListByIDs(ctx context.Context, taskIDs []string) ([]model.Task, error) {
	if len(taskIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `select `+taskColumns+` from task where id = any($1)`, taskIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// ReleaseDedupeKey 只清理终态行的 key；活跃行的 key 必须通过终态迁移释放
func (r *TaskRepo) ReleaseDedupeKey(ctx context.Context, taskID string) error {
	_, err := r.pool.Exec(ctx, `
update task
set dedupe_key=null, updated_at=now()
where id=$1 and status in ('completed','failed','dismissed')
`, taskID)
	return err
}

func (r *TaskRepo) MarkEnqueued(ctx context.Context, actor, taskID, externalID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
update task
set enqueued_at=now(),
    external_id=coalesce(nullif(external_id,''), nullif($2,'')),
    updated_at=now()
where id=$1 and status='queued'
`, taskID, externalID)
	if err != nil {
		return false, err
	}
	return r.checkApplied(ctx, tag, actor, "mark_enqueued", taskID, model.TaskStatusQueued), nil
}

func (r *TaskRepo) MarkEnqueueFailed(ctx context.Context, actor, taskID, enqueueErr string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
update task
set enqueue_attempts=enqueue_attempts+1,
    last_enqueue_error=$2,
    updated_at=now()
where id=$1 and status='queued'
`, taskID, enqueueErr)
	if err != nil {
		return false, err
	}
	return r.checkApplied(ctx, tag, actor, "mark_enqueue_failed", taskID, model.TaskStatusQueued), nil
}

func (r *TaskRepo) MarkProcessing(ctx context.Context, actor, taskID, externalID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
update task
set status='processing',
    started_at=now(),
    heartbeat_at=now(),
    attempt=attempt+1,
    external_id=coalesce(nullif(external_id,''), nullif($2,'')),
    updated_at=now()
where id=$1 and status in ('queued','processing')
`, taskID, externalID)
	if err != nil {
		return false, err
	}
	return r.checkApplied(ctx, tag, actor, "mark_processing", taskID, model.TaskStatusQueued, model.TaskStatusProcessing), nil
}

// SetExternalID 首写优先：已有 external_id 的行不再覆盖
func (r *TaskRepo) SetExternalID(ctx context.Context, actor, taskID, externalID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
update task
set external_id=$2, updated_at=now()
where id=$1 and status='processing' and (external_id is null or external_id='')
`, taskID, externalID)
	if err != nil {
		return false, err
	}
	// 首写竞争输掉时同样命中 0 行，属于预期，不计入迁移被拒
	return tag.RowsAffected() > 0, nil
}

func (r *TaskRepo) TouchHeartbeat(ctx context.Context, actor, taskID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
update task
set heartbeat_at=now(), updated_at=now()
where id=$1 and status='processing'
`, taskID)
	if err != nil {
		return false, err
	}
	return r.checkApplied(ctx, tag, actor, "touch_heartbeat", taskID, model.TaskStatusProcessing), nil
}

func (r *TaskRepo) UpdateProgress(ctx context.Context, actor, taskID string, progress int) (bool, error) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	tag, err := r.pool.Exec(ctx, `
update task
set progress=$2, heartbeat_at=now(), updated_at=now()
where id=$1 and status='processing'
`, taskID, progress)
	if err != nil {
		return false, err
	}
	return r.checkApplied(ctx, tag, actor, "update_progress", taskID, model.TaskStatusProcessing), nil
}

func (r *TaskRepo) MarkCompleted(ctx context.Context, actor, taskID string, result json.RawMessage) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
update task
set status='completed',
    progress=100,
    result=$2,
    heartbeat_at=null,
    finished_at=now(),
    dedupe_key=null,
    updated_at=now()
where id=$1 and status='processing'
`, taskID, result)
	if err != nil {
		return false, err
	}
	return r.checkApplied(ctx, tag, actor, "mark_completed", taskID, model.TaskStatusProcessing), nil
}

func (r *TaskRepo) MarkFailed(ctx context.Context, actor, taskID, errCode, errMsg string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
update task
set status='failed',
    error_code=$2,
    error_message=$3,
    heartbeat_at=null,
    finished_at=now(),
    dedupe_key=null,
    updated_at=now()
where id=$1 and status in ('queued','processing')
`, taskID, errCode, errMsg)
	if err != nil {
		return false, err
	}
	return r.checkApplied(ctx, tag, actor, "mark_failed", taskID, model.TaskStatusQueued, model.TaskStatusProcessing), nil
}

// Requeue attempt 不变：attempt 只在 MarkProcessing 时递增
func (r *TaskRepo) Requeue(ctx context.Context, actor, taskID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
update task
set status='queued',
    started_at=null,
    heartbeat_at=null,
    enqueued_at=null,
    progress=0,
    updated_at=now()
where id=$1 and status='processing'
`, taskID)
	if err != nil {
		return false, err
	}
	return r.checkApplied(ctx, tag, actor, "requeue", taskID, model.TaskStatusProcessing), nil
}

func (r *TaskRepo) Dismiss(ctx context.Context, actor string, taskIDs []string, userID string) ([]string, error) {
	if len(taskIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
update task
set status='dismissed', finished_at=now(), updated_at=now()
where id = any($1) and user_id=$2 and status='failed'
returning id
`, taskIDs, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var applied []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		applied = append(applied, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(applied) < len(taskIDs) {
		logger.L.Warn().
			Str("actor", actor).
			Str("user_id", userID).
			Int("requested", len(taskIDs)).
			Int("applied", len(applied)).
			Msg("部分任务未能归档（非 failed 状态或归属不符）")
	}
	return applied, nil
}

func (r *TaskRepo) SetBillingFreeze(ctx context.Context, taskID string, info model.BillingInfo) (bool, error) {
	billing, err := json.Marshal(info)
	if err != nil {
		return false, fmt.Errorf("marshal billing snapshot: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
update task
set billing=$2, updated_at=now()
where id=$1 and status='queued'
`, taskID, billing)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *TaskRepo) UpdateBillingStatus(ctx context.Context, taskID string, status model.BillingStatus) error {
	_, err := r.pool.Exec(ctx, `
update task
set billing = jsonb_set(billing, '{status}', to_jsonb($2::text)),
    updated_at=now()
where id=$1
`, taskID, string(status))
	return err
}

func (r *TaskRepo) ListOrphanQueued(ctx context.Context, grace time.Duration, limit int) ([]model.Task, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
select `+taskColumns+`
from task
where status='queued' and enqueued_at is null and created_at < now() - $1::interval
order by created_at asc
limit $2
`, grace, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (r *TaskRepo) ListStaleProcessing(ctx context.Context, timeout time.Duration, limit int) ([]model.Task, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
select `+taskColumns+`
from task
where status='processing' and heartbeat_at < now() - $1::interval
order by heartbeat_at asc
limit $2
`, timeout, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

func collectTasks(rows pgx.Rows) ([]model.Task, error) {
	var out []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// checkApplied 条件更新命中 0 行时记录完整上下文并计数。
// 迁移被拒在合法竞争下属于预期现象（例如 worker 上报完成与看门狗判死竞争），
// 对调用方不是错误，但必须可观测。
func (r *TaskRepo) checkApplied(ctx context.Context, tag pgconn.CommandTag, actor, op, taskID string, expected ...model.TaskStatus) bool {
	if tag.RowsAffected() > 0 {
		return true
	}

	reason := "status_mismatch"
	actual := ""
	if err := r.pool.QueryRow(ctx, `select status from task where id=$1`, taskID).Scan(&actual); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			reason = "task_missing"
		} else {
			actual = "unknown: " + err.Error()
		}
	}

	expectedStrs := make([]string, len(expected))
	for i, s := range expected {
		expectedStrs[i] = string(s)
	}

	logger.WithTaskID(taskID).Warn().
		Str("actor", actor).
		Str("op", op).
		Strs("expected_status", expectedStrs).
		Str("actual_status", actual).
		Str("reason", reason).
		Msg("状态迁移被拒（条件更新命中 0 行）")
	metrics.RecordTransitionDenied(actor, reason)
	return false
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
