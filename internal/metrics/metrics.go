package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP 请求指标
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genhub_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "genhub_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 任务指标
	TasksSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genhub_tasks_submitted_total",
			Help: "Total number of task submissions",
		},
		[]string{"type", "deduped"},
	)

	TasksTerminalTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genhub_tasks_terminal_total",
			Help: "Total number of tasks reaching a terminal status",
		},
		[]string{"type", "status"},
	)

	// TransitionDeniedTotal 条件更新命中 0 行的计数。
	// 合法竞争下会偶发出现，单独可观测但本身不算告警。
	TransitionDeniedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genhub_transition_denied_total",
			Help: "Guarded status transitions that matched zero rows",
		},
		[]string{"source", "reason"},
	)

	// 事件指标
	EventPublishFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genhub_event_publish_failures_total",
			Help: "Live fan-out publish failures (state transition already committed)",
		},
		[]string{"event_type"},
	)

	EventsPersistedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genhub_events_persisted_total",
			Help: "Durable task events appended to the log",
		},
		[]string{"event_type"},
	)

	// TerminalMismatchTotal 回放对账发现日志与权威状态不一致、
	// 合成了纠正事件的次数
	TerminalMismatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genhub_terminal_mismatch_total",
			Help: "Corrective lifecycle events synthesized during replay reconciliation",
		},
		[]string{"reason"},
	)

	// 计费指标
	BillingRollbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genhub_billing_rollbacks_total",
			Help: "Billing rollback attempts by outcome",
		},
		[]string{"outcome"},
	)

	// 看门狗指标
	WatchdogActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genhub_watchdog_actions_total",
			Help: "Watchdog recovery actions by kind",
		},
		[]string{"action"},
	)

	WatchdogSweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "genhub_watchdog_sweep_duration_seconds",
			Help:    "Duration of a single watchdog sweep",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
	)

	// 数据库连接池指标
	DBConnectionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "genhub_db_connections_in_use",
			Help: "Number of database connections in use",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "genhub_db_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	// 错误指标
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genhub_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "type"},
	)
)

// RecordHTTPRequest 记录 HTTP 请求
func RecordHTTPRequest(method, path string, status int, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordTaskSubmitted 记录任务提交
func RecordTaskSubmitted(taskType string, deduped bool) {
	label := "false"
	if deduped {
		label = "true"
	}
	TasksSubmittedTotal.WithLabelValues(taskType, label).Inc()
}

// RecordTaskTerminal 记录任务进入终态
func RecordTaskTerminal(taskType, status string) {
	TasksTerminalTotal.WithLabelValues(taskType, status).Inc()
}

// RecordTransitionDenied 记录被拒绝的状态迁移
func RecordTransitionDenied(source, reason string) {
	TransitionDeniedTotal.WithLabelValues(source, reason).Inc()
}

// RecordPublishFailure 记录实时广播失败
func RecordPublishFailure(eventType string) {
	EventPublishFailuresTotal.WithLabelValues(eventType).Inc()
}

// RecordEventPersisted 记录事件落库
func RecordEventPersisted(eventType string) {
	EventsPersistedTotal.WithLabelValues(eventType).Inc()
}

// RecordTerminalMismatch 记录对账合成事件
func RecordTerminalMismatch(reason string) {
	TerminalMismatchTotal.WithLabelValues(reason).Inc()
}

// RecordBillingRollback 记录退款补偿结果
func RecordBillingRollback(outcome string) {
	BillingRollbacksTotal.WithLabelValues(outcome).Inc()
}

// RecordWatchdogAction 记录看门狗恢复动作
func RecordWatchdogAction(action string) {
	WatchdogActionsTotal.WithLabelValues(action).Inc()
}

// UpdateDBPoolStats 更新数据库连接池统计
func UpdateDBPoolStats(inUse, idle int32) {
	DBConnectionsInUse.Set(float64(inUse))
	DBConnectionsIdle.Set(float64(idle))
}

// RecordError 记录错误
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// statusClass 将 HTTP 状态码转为类别
func statusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
