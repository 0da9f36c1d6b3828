package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/azhengyongqin/genhub/internal/lifecycle"
	"github.com/azhengyongqin/genhub/internal/repository"
	"github.com/azhengyongqin/genhub/internal/server/dto"
)

// CallbackHandler worker 回调面：job handler 执行过程中通过这些端点上报状态。
// 所有状态迁移端点返回 applied 字段，applied=false 表示任务已被并发方
// （取消/看门狗/另一个 worker）结束，调用方应停止继续产生副作用。
type CallbackHandler struct {
	svc *lifecycle.Service
}

// NewCallbackHandler 创建 CallbackHandler
func NewCallbackHandler(svc *lifecycle.Service) *CallbackHandler {
	return &CallbackHandler{svc: svc}
}

func (h *CallbackHandler) writeApplied(c *gin.Context, applied bool, err error) {
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Code: dto.ErrCodeNotFound, Error: "task 不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Code: dto.ErrCodeInternal, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.AppliedResponse{Applied: applied})
}

// Processing godoc
// @Summary worker 上报开始处理
// @Tags Callbacks
// @Accept json
// @Produce json
// @Param task_id path string true "任务 ID"
// @Param request body dto.ProcessingRequest false "开始处理参数"
// @Success 200 {object} dto.AppliedResponse
// @Router /tasks/{task_id}/processing [post]
func (h *CallbackHandler) Processing(c *gin.Context) {
	var req dto.ProcessingRequest
	_ = c.ShouldBindJSON(&req)

	applied, err := h.svc.MarkProcessing(c.Request.Context(), c.Param("task_id"), req.ExternalID)
	h.writeApplied(c, applied, err)
}

// Heartbeat godoc
// @Summary worker 心跳续约
// @Description 心跳是 processing 任务唯一的存活信号；applied=false 时 worker 应立即停止
// @Tags Callbacks
// @Produce json
// @Param task_id path string true "任务 ID"
// @Success 200 {object} dto.AppliedResponse
// @Router /tasks/{task_id}/heartbeat [post]
func (h *CallbackHandler) Heartbeat(c *gin.Context) {
	applied, err := h.svc.TouchHeartbeat(c.Request.Context(), c.Param("task_id"))
	h.writeApplied(c, applied, err)
}

// Progress godoc
// @Summary worker 上报进度
// @Tags Callbacks
// @Accept json
// @Produce json
// @Param task_id path string true "任务 ID"
// @Param request body dto.ProgressRequest true "进度"
// @Success 200 {object} dto.AppliedResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /tasks/{task_id}/progress [post]
func (h *CallbackHandler) Progress(c *gin.Context) {
	var req dto.ProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Code: dto.ErrCodeInvalidParams, Error: err.Error()})
		return
	}

	applied, err := h.svc.UpdateProgress(c.Request.Context(), c.Param("task_id"), req.Progress)
	h.writeApplied(c, applied, err)
}

// ExternalID godoc
// @Summary worker 上报外部运行时任务 ID（首写优先）
// @Tags Callbacks
// @Accept json
// @Produce json
// @Param task_id path string true "任务 ID"
// @Param request body dto.ExternalIDRequest true "外部 ID"
// @Success 200 {object} dto.AppliedResponse
// @Router /tasks/{task_id}/external-id [post]
func (h *CallbackHandler) ExternalID(c *gin.Context) {
	var req dto.ExternalIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Code: dto.ErrCodeInvalidParams, Error: err.Error()})
		return
	}

	applied, err := h.svc.SetExternalID(c.Request.Context(), c.Param("task_id"), req.ExternalID)
	h.writeApplied(c, applied, err)
}

// Stream godoc
// @Summary worker 上报增量输出 chunk
// @Description 默认只广播不落库；persist=true 时同时写入事件日志
// @Tags Callbacks
// @Accept json
// @Produce json
// @Param task_id path string true "任务 ID"
// @Param request body dto.StreamChunkRequest true "增量输出"
// @Success 200 {object} dto.SuccessResponse
// @Router /tasks/{task_id}/stream [post]
func (h *CallbackHandler) Stream(c *gin.Context) {
	var req dto.StreamChunkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Code: dto.ErrCodeInvalidParams, Error: err.Error()})
		return
	}

	if err := h.svc.PublishStream(c.Request.Context(), c.Param("task_id"), req.Chunk, req.Persist); err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Code: dto.ErrCodeNotFound, Error: "task 不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Code: dto.ErrCodeInternal, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.SuccessResponse{Status: "ok"})
}

// Complete godoc
// @Summary worker 上报成功结束
// @Tags Callbacks
// @Accept json
// @Produce json
// @Param task_id path string true "任务 ID"
// @Param request body dto.CompleteRequest true "结果"
// @Success 200 {object} dto.AppliedResponse
// @Router /tasks/{task_id}/complete [post]
func (h *CallbackHandler) Complete(c *gin.Context) {
	var req dto.CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Code: dto.ErrCodeInvalidParams, Error: err.Error()})
		return
	}

	applied, err := h.svc.MarkCompleted(c.Request.Context(), c.Param("task_id"), req.Result)
	h.writeApplied(c, applied, err)
}

// Fail godoc
// @Summary worker 上报执行失败
// @Description 走完整失败收口：退回冻结资金、条件更新到 failed、发布 failed 事件
// @Tags Callbacks
// @Accept json
// @Produce json
// @Param task_id path string true "任务 ID"
// @Param request body dto.FailRequest true "失败信息"
// @Success 200 {object} dto.AppliedResponse
// @Router /tasks/{task_id}/fail [post]
func (h *CallbackHandler) Fail(c *gin.Context) {
	var req dto.FailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Code: dto.ErrCodeInvalidParams, Error: err.Error()})
		return
	}

	applied, err := h.svc.MarkFailed(c.Request.Context(), c.Param("task_id"), req.ErrorCode, req.ErrorMessage)
	h.writeApplied(c, applied, err)
}
