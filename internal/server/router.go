package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/azhengyongqin/genhub/internal/events"
	"github.com/azhengyongqin/genhub/internal/healthcheck"
	"github.com/azhengyongqin/genhub/internal/lifecycle"
	"github.com/azhengyongqin/genhub/internal/middleware"
	"github.com/azhengyongqin/genhub/internal/server/handler"
)

// Deps 路由依赖
type Deps struct {
	// Lifecycle 任务生命周期核心
	Lifecycle *lifecycle.Service

	// Replayer 事件回放/对账
	Replayer *events.Replayer

	// Hub 实时事件分发
	Hub *events.Hub

	// HealthChecker 健康检查器
	HealthChecker *healthcheck.HealthChecker
}

// NewRouter 提供 Gin HTTP API
// @title GenHub API
// @version 1.0.0
// @description AI 生成任务生命周期与事件日志引擎 API
// @BasePath /api/v1
// @schemes http https
func NewRouter(deps Deps) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	// 全局中间件
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggingMiddleware())
	r.Use(middleware.PrometheusMiddleware())
	r.Use(middleware.PayloadSizeLimit(middleware.MaxPayloadSize))
	r.Use(middleware.CORSMiddleware())

	healthHandler := handler.NewHealthHandler(deps.HealthChecker)
	taskHandler := handler.NewTaskHandler(deps.Lifecycle)
	callbackHandler := handler.NewCallbackHandler(deps.Lifecycle)
	eventHandler := handler.NewEventHandler(deps.Replayer, deps.Hub)

	// 健康检查路由
	r.GET("/healthz", healthHandler.Liveness)
	r.GET("/readyz", healthHandler.Readiness)

	// Prometheus metrics 端点
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Swagger API 文档
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api/v1")
	{
		// 任务生命周期
		api.POST("/tasks", taskHandler.SubmitTask)
		api.GET("/tasks/:task_id", middleware.ValidateTaskIDParam(), taskHandler.GetTask)
		api.POST("/tasks/:task_id/cancel", middleware.ValidateTaskIDParam(), taskHandler.CancelTask)
		api.POST("/tasks/dismiss", taskHandler.DismissTasks)

		// worker 回调面
		api.POST("/tasks/:task_id/processing", middleware.ValidateTaskIDParam(), callbackHandler.Processing)
		api.POST("/tasks/:task_id/heartbeat", middleware.ValidateTaskIDParam(), callbackHandler.Heartbeat)
		api.POST("/tasks/:task_id/progress", middleware.ValidateTaskIDParam(), callbackHandler.Progress)
		api.POST("/tasks/:task_id/external-id", middleware.ValidateTaskIDParam(), callbackHandler.ExternalID)
		api.POST("/tasks/:task_id/stream", middleware.ValidateTaskIDParam(), callbackHandler.Stream)
		api.POST("/tasks/:task_id/complete", middleware.ValidateTaskIDParam(), callbackHandler.Complete)
		api.POST("/tasks/:task_id/fail", middleware.ValidateTaskIDParam(), callbackHandler.Fail)

		// 事件回放与实时订阅
		api.GET("/events", eventHandler.Replay)
		api.GET("/events/stream", eventHandler.StreamEvents)
	}

	return r
}
