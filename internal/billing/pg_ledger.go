package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgLedger 内置的 Postgres 账本实现。
// 余额扣减与冻结单状态迁移都是条件更新，Rollback 天然幂等：
// 冻结单只有从 frozen 状态迁出的那一次会触发退款。
type PgLedger struct {
	pool *pgxpool.Pool
}

func NewPgLedger(pool *pgxpool.Pool) *PgLedger {
	return &PgLedger{pool: pool}
}

// Freeze 冻结额度：扣减余额并开冻结单，同一事务内完成。
// 余额不足（条件更新命中 0 行）返回 ErrInsufficientBalance。
func (l *PgLedger) Freeze(ctx context.Context, userID, projectID string, amount int64) (string, error) {
	if amount <= 0 {
		return "", nil
	}

	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", fmt.Errorf("begin freeze tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		update credit_account
		set balance = balance - $2, updated_at = now()
		where user_id = $1 and balance >= $2`,
		userID, amount)
	if err != nil {
		return "", fmt.Errorf("debit balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return "", fmt.Errorf("user %s amount %d: %w", userID, amount, ErrInsufficientBalance)
	}

	freezeID := uuid.NewString()
	_, err = tx.Exec(ctx, `
		insert into credit_freeze (id, user_id, project_id, amount, status, created_at, updated_at)
		values ($1, $2, $3, $4, 'frozen', now(), now())`,
		freezeID, userID, projectID, amount)
	if err != nil {
		return "", fmt.Errorf("insert freeze: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit freeze tx: %w", err)
	}
	return freezeID, nil
}

// Settle 结算冻结单（业务成功后由业务侧触发），不退回余额
func (l *PgLedger) Settle(ctx context.Context, freezeID string) error {
	tag, err := l.pool.Exec(ctx, `
		update credit_freeze
		set status = 'settled', updated_at = now()
		where id = $1 and status = 'frozen'`,
		freezeID)
	if err != nil {
		return fmt.Errorf("settle freeze %s: %w", freezeID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("settle freeze %s: not in frozen state", freezeID)
	}
	return nil
}

// Rollback 解冻退款。幂等：只有把冻结单从 frozen 迁出的那一次调用
// 会退回余额，其余调用返回 (false, nil)。
func (l *PgLedger) Rollback(ctx context.Context, freezeID string) (bool, error) {
	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("begin rollback tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var userID string
	var amount int64
	err = tx.QueryRow(ctx, `
		update credit_freeze
		set status = 'rolled_back', updated_at = now()
		where id = $1 and status = 'frozen'
		returning user_id, amount`,
		freezeID).Scan(&userID, &amount)
	if errors.Is(err, pgx.ErrNoRows) {
		// 已结算或已退款，不重复动账
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("release freeze %s: %w", freezeID, err)
	}

	_, err = tx.Exec(ctx, `
		update credit_account
		set balance = balance + $2, updated_at = now()
		where user_id = $1`,
		userID, amount)
	if err != nil {
		return false, fmt.Errorf("refund balance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit rollback tx: %w", err)
	}
	return true, nil
}
