package billing

import (
	"context"
	"fmt"

	"github.com/azhengyongqin/genhub/internal/logger"
	"github.com/azhengyongqin/genhub/internal/metrics"
	"github.com/azhengyongqin/genhub/internal/model"
	"github.com/azhengyongqin/genhub/internal/repository"
)

// Compensator 在任务失败路径上执行退款补偿。
// 不变量：每个冻结单至多请求一次 rollback —— 调用账本前先检查 billing 快照，
// 账本返回后立即持久化结果状态。账本侧的 Rollback 本身幂等，双保险。
type Compensator struct {
	ledger Ledger
	tasks  repository.TaskRepository
}

func NewCompensator(ledger Ledger, tasks repository.TaskRepository) *Compensator {
	return &Compensator{ledger: ledger, tasks: tasks}
}

// RollbackOnce 对任务的冻结资金做一次补偿。
// 返回值含义：
// - (false, nil): 无需补偿（免计费 / 无冻结 / 已结算或已退款）
// - (true, nil):  本次补偿成功并已持久化
// - (false, err): 账本调用失败；资金状态未知，任务仍须走向终态，
//   由调用方用带 _ROLLBACK_FAILED 后缀的错误码标记以便人工对账
func (c *Compensator) RollbackOnce(ctx context.Context, t *model.Task) (bool, error) {
	if !t.Billing.NeedsRollback() {
		metrics.RecordBillingRollback("skipped")
		return false, nil
	}

	log := logger.WithTask(t.ID, t.ProjectID, t.UserID)

	rolledBack, err := c.ledger.Rollback(ctx, t.Billing.FreezeID)
	if err != nil {
		metrics.RecordBillingRollback("failed")
		log.Error().Err(err).
			Str("freeze_id", t.Billing.FreezeID).
			Msg("退款补偿失败，资金需要人工对账")
		return false, fmt.Errorf("rollback freeze %s: %w", t.Billing.FreezeID, err)
	}

	// 账本答复后立即持久化，后续失败路径看到 rolled_back 即跳过
	if err := c.tasks.UpdateBillingStatus(ctx, t.ID, model.BillingStatusRolledBack); err != nil {
		// 账本已退款，仅持久化失败；账本幂等保证重复补偿安全
		log.Error().Err(err).Msg("持久化退款状态失败")
		return true, err
	}
	t.Billing.Status = model.BillingStatusRolledBack

	metrics.RecordBillingRollback("ok")
	log.Info().
		Str("freeze_id", t.Billing.FreezeID).
		Bool("rolled_back", rolledBack).
		Msg("退款补偿完成")
	return true, nil
}

// Settle 结算冻结资金并持久化状态。业务成功路径由核心之外触发，这里只做透传。
func (c *Compensator) Settle(ctx context.Context, t *model.Task) error {
	if !t.Billing.Billable || t.Billing.FreezeID == "" {
		return nil
	}
	if t.Billing.Status == model.BillingStatusSettled || t.Billing.Status == model.BillingStatusRolledBack {
		return nil
	}
	if err := c.ledger.Settle(ctx, t.Billing.FreezeID); err != nil {
		return fmt.Errorf("settle freeze %s: %w", t.Billing.FreezeID, err)
	}
	if err := c.tasks.UpdateBillingStatus(ctx, t.ID, model.BillingStatusSettled); err != nil {
		return err
	}
	t.Billing.Status = model.BillingStatusSettled
	return nil
}
