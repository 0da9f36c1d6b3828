package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	// L 全局 logger
	L zerolog.Logger
)

// Init 初始化日志器
func Init(production bool) error {
	// 设置时间格式
	zerolog.TimeFieldFormat = time.RFC3339

	if production {
		// 生产环境：JSON 格式输出
		L = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Caller().
			Logger()
	} else {
		// 开发环境：控制台友好格式
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
			// 自定义字段输出顺序（任务流转日志的常见顺序）
			FieldsOrder: []string{
				"request_id", // 1. 请求 ID
				"task_id",    // 2. 任务 ID
				"project_id", // 3. 项目 ID
				"user_id",    // 4. 用户 ID
				"status",     // 5. 任务状态
				"actor",      // 6. 操作来源
				"errors",     // 7. 错误信息
			},
		}
		L = zerolog.New(output).
			With().
			Timestamp().
			Caller().
			Logger()
	}

	// 设置全局日志级别
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	return nil
}

// Sync zerolog 不需要显式 sync，保留接口兼容性
func Sync() {
	// zerolog 不需要显式 sync
}

// SetLevel 设置日志级别
func SetLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// WithRequestID 添加 request_id。
// 返回指针：zerolog 的级别方法是指针接收者，返回值类型会让
// logger.WithRequestID(...).Info() 这样的链式调用无法取址。
func WithRequestID(requestID string) *zerolog.Logger {
	l := L.With().Str("request_id", requestID).Logger()
	return &l
}

// WithTaskID 添加 task_id
func WithTaskID(taskID string) *zerolog.Logger {
	l := L.With().Str("task_id", taskID).Logger()
	return &l
}

// WithTask 添加任务流转日志的完整上下文字段（task_id/project_id/user_id）。
// 显式传参，不依赖任何线程局部或环境态。
func WithTask(taskID, projectID, userID string) *zerolog.Logger {
	l := L.With().
		Str("task_id", taskID).
		Str("project_id", projectID).
		Str("user_id", userID).
		Logger()
	return &l
}

// Debug 输出 debug 级别日志
func Debug() *zerolog.Event {
	return L.Debug()
}

// Info 输出 info 级别日志
func Info() *zerolog.Event {
	return L.Info()
}

// Warn 输出 warn 级别日志
func Warn() *zerolog.Event {
	return L.Warn()
}

// Error 输出 error 级别日志
func Error() *zerolog.Event {
	return L.Error()
}

// Fatal 输出 fatal 级别日志并退出
func Fatal() *zerolog.Event {
	return L.Fatal()
}
