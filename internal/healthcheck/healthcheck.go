package healthcheck

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// HealthChecker 健康检查器：任务存储（Postgres）、外部队列（Asynq/Redis）、
// 事件广播通道（Redis pub/sub 所在实例）
type HealthChecker struct {
	pgPool    *pgxpool.Pool
	redisAddr string
	rdb       redis.UniversalClient
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(pgPool *pgxpool.Pool, redisAddr string, rdb redis.UniversalClient) *HealthChecker {
	return &HealthChecker{
		pgPool:    pgPool,
		redisAddr: redisAddr,
		rdb:       rdb,
	}
}

// CheckResult 健康检查结果
type CheckResult struct {
	Status  string            `json:"status"` // "ok" or "error"
	Checks  map[string]string `json:"checks"`
	Version string            `json:"version,omitempty"`
}

// LivenessCheck 存活检查（快速返回，不检查依赖）
func (h *HealthChecker) LivenessCheck() CheckResult {
	return CheckResult{
		Status: "ok",
		Checks: map[string]string{
			"service": "running",
		},
	}
}

// ReadinessCheck 就绪检查（检查所有依赖）
func (h *HealthChecker) ReadinessCheck(ctx context.Context) CheckResult {
	result := CheckResult{
		Checks: make(map[string]string),
	}

	if h.pgPool != nil {
		if err := h.checkPostgres(ctx); err != nil {
			result.Checks["postgres"] = "error: " + err.Error()
			result.Status = "error"
		} else {
			result.Checks["postgres"] = "ok"
		}
	}

	if h.redisAddr != "" {
		if err := h.checkQueue(); err != nil {
			result.Checks["queue"] = "error: " + err.Error()
			result.Status = "error"
		} else {
			result.Checks["queue"] = "ok"
		}
	}

	if h.rdb != nil {
		if err := h.checkEventBus(ctx); err != nil {
			result.Checks["event_bus"] = "error: " + err.Error()
			result.Status = "error"
		} else {
			result.Checks["event_bus"] = "ok"
		}
	}

	if result.Status == "" {
		result.Status = "ok"
	}

	return result
}

// checkPostgres 检查 PostgreSQL 连接
func (h *HealthChecker) checkPostgres(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return h.pgPool.Ping(ctx)
}

// checkQueue 检查外部队列（通过 Asynq Inspector 列队列）
func (h *HealthChecker) checkQueue() error {
	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: h.redisAddr})
	defer inspector.Close()

	_, err := inspector.Queues()
	return err
}

// checkEventBus 检查事件广播所在的 Redis 实例
func (h *HealthChecker) checkEventBus(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return h.rdb.Ping(ctx).Err()
}
