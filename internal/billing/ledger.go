package billing

import (
	"context"
	"errors"
)

// ErrInsufficientBalance 余额不足。输入类错误：不重试，任务直接失败且不入队。
var ErrInsufficientBalance = errors.New("insufficient balance")

// Ledger 外部资金账本的契约。真实账本在核心之外，这里只约定核心需要的三个调用：
// - Freeze 在提交时冻结额度，返回冻结单 ID
// - Settle 业务成功后结算（由核心之外的业务侧触发）
// - Rollback 解冻退款，账本侧保证幂等（重复调用安全）
type Ledger interface {
	Freeze(ctx context.Context, userID, projectID string, amount int64) (freezeID string, err error)
	Settle(ctx context.Context, freezeID string) error
	Rollback(ctx context.Context, freezeID string) (rolledBack bool, err error)
}
