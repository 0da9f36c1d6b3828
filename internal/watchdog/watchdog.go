package watchdog

import (
	"context"
	"time"

	"github.com/azhengyongqin/genhub/internal/logger"
	"github.com/azhengyongqin/genhub/internal/metrics"
	"github.com/azhengyongqin/genhub/internal/model"
	"github.com/azhengyongqin/genhub/internal/repository"
)

// Recoverer 看门狗对生命周期核心的全部要求
type Recoverer interface {
	RecoverOrphanQueued(ctx context.Context, t *model.Task) error
	ExpireStaleProcessing(ctx context.Context, t *model.Task) error
}

// Options 看门狗配置
type Options struct {
	// SweepInterval 扫描周期，默认 30s
	SweepInterval time.Duration
	// HeartbeatTimeout processing 任务心跳超时阈值，默认 90s
	HeartbeatTimeout time.Duration
	// BatchSize 单次扫描处理的最大行数，默认 100
	BatchSize int
}

func (o *Options) withDefaults() {
	if o.SweepInterval <= 0 {
		o.SweepInterval = 30 * time.Second
	}
	if o.HeartbeatTimeout <= 0 {
		o.HeartbeatTimeout = 90 * time.Second
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
}

// Watchdog 周期性扫描：恢复从未入队的 queued 任务、接管心跳超时的
// processing 任务。独立于请求链路运行；与 worker/取消请求的竞争全部
// 交给存储层的条件更新裁决，因此多实例或重复扫描都是安全的。
type Watchdog struct {
	tasks repository.TaskRepository
	rec   Recoverer
	opts  Options
}

func New(tasks repository.TaskRepository, rec Recoverer, opts Options) *Watchdog {
	opts.withDefaults()
	return &Watchdog{tasks: tasks, rec: rec, opts: opts}
}

// Run 以固定周期执行扫描，直到 ctx 结束
func (w *Watchdog) Run(ctx context.Context) {
	logger.L.Info().
		Dur("interval", w.opts.SweepInterval).
		Dur("heartbeat_timeout", w.opts.HeartbeatTimeout).
		Msg("看门狗启动")

	ticker := time.NewTicker(w.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.L.Info().Msg("看门狗退出")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep 单轮扫描：先恢复 queued，再处置 processing。
// 每轮处理行数有上界，故障恢复后的大积压分多轮消化。
func (w *Watchdog) Sweep(ctx context.Context) {
	start := time.Now()
	defer func() {
		metrics.WatchdogSweepDuration.Observe(time.Since(start).Seconds())
	}()

	w.recoverQueued(ctx)
	w.sweepProcessing(ctx)
}

// recoverQueued 恢复 status=queued 且 enqueued_at 为空的任务。
// grace 用扫描周期：刚创建、入队还在途中的行留给下一轮。
func (w *Watchdog) recoverQueued(ctx context.Context) {
	batch, err := w.tasks.ListOrphanQueued(ctx, w.opts.SweepInterval, w.opts.BatchSize)
	if err != nil {
		metrics.RecordError("watchdog", "list_orphan_queued")
		logger.L.Error().Err(err).Msg("扫描未入队任务失败")
		return
	}

	for i := range batch {
		t := &batch[i]
		if err := w.rec.RecoverOrphanQueued(ctx, t); err != nil {
			// 瞬态入队失败：诊断信息已记录在任务行上，下一轮重试
			logger.WithTask(t.ID, t.ProjectID, t.UserID).Warn().Err(err).Msg("恢复未入队任务失败")
			metrics.RecordWatchdogAction("requeue_deferred")
			continue
		}
		metrics.RecordWatchdogAction("enqueue_recovered")
	}
}

// sweepProcessing 接管心跳超时的 processing 任务
func (w *Watchdog) sweepProcessing(ctx context.Context) {
	batch, err := w.tasks.ListStaleProcessing(ctx, w.opts.HeartbeatTimeout, w.opts.BatchSize)
	if err != nil {
		metrics.RecordError("watchdog", "list_stale_processing")
		logger.L.Error().Err(err).Msg("扫描心跳超时任务失败")
		return
	}

	for i := range batch {
		t := &batch[i]
		exhausted := t.Attempt >= t.MaxAttempts
		if err := w.rec.ExpireStaleProcessing(ctx, t); err != nil {
			logger.WithTask(t.ID, t.ProjectID, t.UserID).Error().Err(err).Msg("处置超时任务失败")
			metrics.RecordError("watchdog", "expire_stale")
			continue
		}
		if exhausted {
			metrics.RecordWatchdogAction("timeout_failed")
		} else {
			metrics.RecordWatchdogAction("requeued")
		}
	}
}
