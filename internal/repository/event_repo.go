package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/azhengyongqin/genhub/internal/metrics"
	"github.com/azhengyongqin/genhub/internal/model"
)

// EventRepo EventRepository 的 pgx 实现。
// task_event 是 per-project 的追加式日志：insert returning id 分配游标，行永不更新。
type EventRepo struct {
	pool *pgxpool.Pool
}

func NewEventRepo(pool *pgxpool.Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

func (r *EventRepo) Append(ctx context.Context, ev *model.TaskEvent) error {
	if ev.TaskID == "" || ev.ProjectID == "" {
		return errors.New("task_id / project_id 不能为空")
	}
	err := r.pool.QueryRow(ctx, `
insert into task_event(task_id, project_id, user_id, event_type, payload)
values ($1,$2,$3,$4,$5)
returning id, created_at
`, ev.TaskID, ev.ProjectID, ev.UserID, string(ev.EventType), ev.Payload).Scan(&ev.ID, &ev.CreatedAt)
	if err != nil {
		return err
	}
	metrics.RecordEventPersisted(string(ev.EventType))
	return nil
}

func (r *EventRepo) ListPage(ctx context.Context, projectID string, afterID int64, pageSize int) ([]model.TaskEvent, error) {
	if pageSize <= 0 || pageSize > 1000 {
		pageSize = 200
	}
	rows, err := r.pool.Query(ctx, `
select id, task_id, project_id, user_id, event_type, payload, created_at
from task_event
where project_id=$1 and id>$2
order by id asc
limit $3
`, projectID, afterID, pageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TaskEvent
	for rows.Next() {
		var ev model.TaskEvent
		if err := rows.Scan(&ev.ID, &ev.TaskID, &ev.ProjectID, &ev.UserID, &ev.EventType, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
