package dto

// API 层错误码（区别于任务终态错误码：这些描述的是本次请求为什么失败）
const (
	ErrCodeInvalidParams       = "INVALID_PARAMS"
	ErrCodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	ErrCodeEnqueueFailed       = "ENQUEUE_FAILED"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeInternal            = "INTERNAL_ERROR"
	// ErrCodeLivenessUnavailable 去重判定所需的存活探测不可达，请求可重试
	ErrCodeLivenessUnavailable = "LIVENESS_UNAVAILABLE"
)

// ErrorResponse 通用错误响应
type ErrorResponse struct {
	Code  string `json:"code" example:"INVALID_PARAMS"`
	Error string `json:"error" example:"task_id 格式无效"`
}

// SuccessResponse 通用成功响应
type SuccessResponse struct {
	Status  string      `json:"status" example:"ok"`
	Message string      `json:"message,omitempty" example:"操作成功"`
	Data    interface{} `json:"data,omitempty"`
}
