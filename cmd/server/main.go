package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	_ "github.com/azhengyongqin/genhub/docs" // Swagger docs
	"github.com/azhengyongqin/genhub/internal/billing"
	"github.com/azhengyongqin/genhub/internal/config"
	"github.com/azhengyongqin/genhub/internal/events"
	"github.com/azhengyongqin/genhub/internal/healthcheck"
	"github.com/azhengyongqin/genhub/internal/lifecycle"
	"github.com/azhengyongqin/genhub/internal/logger"
	asynqx "github.com/azhengyongqin/genhub/internal/queue"
	"github.com/azhengyongqin/genhub/internal/repository"
	httpserver "github.com/azhengyongqin/genhub/internal/server"
	"github.com/azhengyongqin/genhub/internal/storage/postgres"
	"github.com/azhengyongqin/genhub/internal/watchdog"
)

// @title GenHub API
// @version 1.0.0
// @description AI 生成任务生命周期与事件日志引擎 - 提交/去重、资金冻结补偿、
// @description 事件回放对账与看门狗恢复
// @license.name MIT
// @BasePath /api/v1
// @schemes http https
// @host localhost:28080

func main() {
	// 初始化结构化日志（开发模式）
	if err := logger.Init(false); err != nil {
		logger.L.Fatal().Err(err).Msg("初始化日志失败")
		os.Exit(1)
	}
	defer logger.Sync()

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		logger.L.Fatal().Err(err).Msg("加载配置失败")
	}
	if err := cfg.Validate(); err != nil {
		logger.L.Fatal().Err(err).Msg("配置验证失败")
	}

	logger.L.Info().
		Str("http", cfg.HTTP.Addr).
		Str("redis", cfg.Redis.Addr).
		Msg("服务启动")

	// 队列运行时可以指向独立于事件总线的 redis 实例
	redisURI := cfg.Asynq.RedisAddr
	if !strings.HasPrefix(redisURI, "redis://") && !strings.HasPrefix(redisURI, "rediss://") {
		redisURI = "redis://" + redisURI + "/0"
	}

	// schema 对齐（gorm 只在启动时用一次，运行时读写全部走 pgx）
	if err := postgres.AutoMigrate(cfg.Postgres.DSN); err != nil {
		logger.L.Fatal().Err(err).Msg("数据库迁移失败")
	}

	pool, err := postgres.NewPool(context.Background(), cfg.Postgres.DSN, postgres.PoolConfig{
		MaxConns:          cfg.DBPool.MaxConns,
		MinConns:          cfg.DBPool.MinConns,
		MaxConnLifetime:   cfg.DBPool.MaxConnLifetime,
		MaxConnIdleTime:   cfg.DBPool.MaxConnIdleTime,
		HealthCheckPeriod: cfg.DBPool.HealthCheckPeriod,
	})
	if err != nil {
		logger.L.Fatal().Err(err).Msg("连接数据库失败")
	}
	defer pool.Close()

	taskRepo := repository.NewTaskRepo(pool)
	eventRepo := repository.NewEventRepo(pool)

	// 外部任务运行时（asynq client + inspector）
	runtime, err := asynqx.NewRuntime(redisURI)
	if err != nil {
		logger.L.Fatal().Err(err).Msg("初始化队列运行时失败")
	}
	defer runtime.Close()

	// 实时广播用的 redis 连接
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	publisher := events.NewPublisher(eventRepo, rdb, cfg.Events.ChannelPrefix)
	hub := events.NewHub(rdb, cfg.Events.ChannelPrefix)
	defer hub.Close()

	replayer := events.NewReplayer(eventRepo, taskRepo, publisher)
	replayer.SetDefaultLimit(cfg.Events.ReplayLimit)
	replayer.SetScanBoundFactor(cfg.Events.ScanBoundFactor)

	ledger := billing.NewPgLedger(pool)
	svc := lifecycle.NewService(taskRepo, runtime, ledger, publisher)

	healthChecker := healthcheck.NewHealthChecker(pool, cfg.Asynq.RedisAddr, rdb)

	httpSrv := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: httpserver.NewRouter(httpserver.Deps{
			Lifecycle:     svc,
			Replayer:      replayer,
			Hub:           hub,
			HealthChecker: healthChecker,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 看门狗：queued 恢复 + processing 心跳扫描
	wd := watchdog.New(taskRepo, svc, watchdog.Options{
		SweepInterval:    cfg.Watchdog.SweepInterval,
		HeartbeatTimeout: cfg.Watchdog.HeartbeatTimeout,
		BatchSize:        cfg.Watchdog.BatchSize,
	})
	go wd.Run(ctx)

	go func() {
		logger.L.Info().Str("addr", cfg.HTTP.Addr).Msg("HTTP 服务监听")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.L.Fatal().Err(err).Msg("HTTP 服务错误")
		}
	}()

	// 独立的监控端口（容器环境里只对内网暴露）
	var metricsSrv *http.Server
	if cfg.Monitoring.Enabled {
		metricsSrv = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Monitoring.Port),
			Handler:           promhttp.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.L.Info().Int("port", cfg.Monitoring.Port).Msg("监控指标服务监听")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.L.Error().Err(err).Msg("监控指标服务错误")
			}
		}()
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpSrv.Shutdown(shutdownCtx)
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	logger.L.Info().Msg("服务已优雅关闭")
}
