package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/azhengyongqin/genhub/internal/billing"
	"github.com/azhengyongqin/genhub/internal/lifecycle"
	"github.com/azhengyongqin/genhub/internal/middleware"
	asynqx "github.com/azhengyongqin/genhub/internal/queue"
	"github.com/azhengyongqin/genhub/internal/repository"
	"github.com/azhengyongqin/genhub/internal/server/dto"
)

// TaskHandler 任务生命周期 API Handler
type TaskHandler struct {
	svc *lifecycle.Service
}

// NewTaskHandler 创建 TaskHandler
func NewTaskHandler(svc *lifecycle.Service) *TaskHandler {
	return &TaskHandler{svc: svc}
}

// SubmitTask godoc
// @Summary 提交生成任务
// @Description 提交任务并解析去重：同 dedupe_key 存在活跃任务时返回已有任务
// @Tags Tasks
// @Accept json
// @Produce json
// @Param request body dto.SubmitTaskRequest true "任务提交请求"
// @Success 200 {object} dto.SubmitTaskResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 402 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /tasks [post]
func (h *TaskHandler) SubmitTask(c *gin.Context) {
	var req dto.SubmitTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Code: dto.ErrCodeInvalidParams, Error: err.Error()})
		return
	}
	if !middleware.ValidateProjectID(req.ProjectID) {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Code: dto.ErrCodeInvalidParams, Error: "project_id 格式无效"})
		return
	}
	if len(req.Payload) > middleware.MaxPayloadSize {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Code: dto.ErrCodeInvalidParams, Error: "payload 过大，最大 2MB"})
		return
	}
	if req.Priority != "" {
		switch req.Priority {
		case asynqx.PriorityCritical, asynqx.PriorityDefault, asynqx.PriorityLow:
		default:
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Code: dto.ErrCodeInvalidParams, Error: "priority 必须是 critical/default/low"})
			return
		}
	}

	res, err := h.svc.Submit(c.Request.Context(), lifecycle.SubmitRequest{
		UserID:     req.UserID,
		ProjectID:  req.ProjectID,
		EpisodeID:  req.EpisodeID,
		Type:       req.Type,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		Payload:    req.Payload,
		DedupeKey:  req.DedupeKey,
		Priority:   req.Priority,
	})
	if err != nil {
		h.writeSubmitError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.SubmitTaskResponse{
		Success: true,
		TaskID:  res.Task.ID,
		Status:  string(res.Task.Status),
		Deduped: res.Deduped,
	})
}

// writeSubmitError 把生命周期核心的错误翻译成带类型码的 HTTP 响应
func (h *TaskHandler) writeSubmitError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrInvalidTaskType), errors.Is(err, lifecycle.ErrMissingLocale):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Code: dto.ErrCodeInvalidParams, Error: err.Error()})
	case errors.Is(err, billing.ErrInsufficientBalance):
		c.JSON(http.StatusPaymentRequired, dto.ErrorResponse{Code: dto.ErrCodeInsufficientBalance, Error: "余额不足"})
	case errors.Is(err, lifecycle.ErrLivenessUnknown):
		// 存活探测不可达：不能猜去重结果，让客户端重试
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Code: dto.ErrCodeLivenessUnavailable, Error: err.Error()})
	case errors.Is(err, lifecycle.ErrEnqueueFailed):
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Code: dto.ErrCodeEnqueueFailed, Error: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Code: dto.ErrCodeInternal, Error: err.Error()})
	}
}

// GetTask godoc
// @Summary 获取任务详情
// @Tags Tasks
// @Produce json
// @Param task_id path string true "任务 ID"
// @Success 200 {object} dto.TaskResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /tasks/{task_id} [get]
func (h *TaskHandler) GetTask(c *gin.Context) {
	t, err := h.svc.GetTask(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Code: dto.ErrCodeNotFound, Error: "task 不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Code: dto.ErrCodeInternal, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.FromTask(t))
}

// CancelTask godoc
// @Summary 取消任务
// @Description 协作式取消：翻转存储状态并退回冻结资金；已终态的任务取消是 no-op
// @Tags Tasks
// @Accept json
// @Produce json
// @Param task_id path string true "任务 ID"
// @Param request body dto.CancelTaskRequest false "取消原因"
// @Success 200 {object} dto.SuccessResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /tasks/{task_id}/cancel [post]
func (h *TaskHandler) CancelTask(c *gin.Context) {
	var req dto.CancelTaskRequest
	_ = c.ShouldBindJSON(&req)

	err := h.svc.Cancel(c.Request.Context(), c.Param("task_id"), req.Reason)
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Code: dto.ErrCodeNotFound, Error: "task 不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Code: dto.ErrCodeInternal, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.SuccessResponse{Status: "ok"})
}

// DismissTasks godoc
// @Summary 批量归档失败任务
// @Description 用户确认失败任务，按归属限定；返回实际生效的任务 id
// @Tags Tasks
// @Accept json
// @Produce json
// @Param request body dto.DismissTasksRequest true "归档请求"
// @Success 200 {object} dto.DismissTasksResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /tasks/dismiss [post]
func (h *TaskHandler) DismissTasks(c *gin.Context) {
	var req dto.DismissTasksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Code: dto.ErrCodeInvalidParams, Error: err.Error()})
		return
	}
	if len(req.TaskIDs) == 0 {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Code: dto.ErrCodeInvalidParams, Error: "task_ids 不能为空"})
		return
	}

	dismissed, err := h.svc.Dismiss(c.Request.Context(), req.UserID, req.TaskIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Code: dto.ErrCodeInternal, Error: err.Error()})
		return
	}
	if dismissed == nil {
		dismissed = []string{}
	}
	c.JSON(http.StatusOK, dto.DismissTasksResponse{Dismissed: dismissed})
}
