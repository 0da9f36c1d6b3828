package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/azhengyongqin/genhub/internal/events"
	"github.com/azhengyongqin/genhub/internal/middleware"
	"github.com/azhengyongqin/genhub/internal/server/dto"
)

// EventHandler 事件回放与实时订阅 Handler
type EventHandler struct {
	replayer *events.Replayer
	hub      *events.Hub
}

// NewEventHandler 创建 EventHandler
func NewEventHandler(replayer *events.Replayer, hub *events.Hub) *EventHandler {
	return &EventHandler{replayer: replayer, hub: hub}
}

// Replay godoc
// @Summary 事件回放
// @Description 按游标拉取 project 的事件；读到日志末尾时自动对账，
// @Description 权威终态与日志不一致会合成纠正事件追加在末尾
// @Tags Events
// @Produce json
// @Param project_id query string true "项目 ID"
// @Param after query int false "游标（上次收到的最大事件 id）" default(0)
// @Param user_id query string false "只保留该用户的事件"
// @Param limit query int false "最大返回条数" default(100)
// @Success 200 {object} dto.ReplayEventsResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /events [get]
func (h *EventHandler) Replay(c *gin.Context) {
	projectID := c.Query("project_id")
	if !middleware.ValidateProjectID(projectID) {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Code: dto.ErrCodeInvalidParams, Error: "project_id 缺失或格式无效"})
		return
	}
	after, _ := strconv.ParseInt(c.DefaultQuery("after", "0"), 10, 64)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	batch, err := h.replayer.Replay(c.Request.Context(), projectID, after, c.Query("user_id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Code: dto.ErrCodeInternal, Error: err.Error()})
		return
	}

	next := after
	for _, env := range batch {
		if env.ID > next {
			next = env.ID
		}
	}
	if batch == nil {
		batch = []events.Envelope{}
	}
	c.JSON(http.StatusOK, dto.ReplayEventsResponse{Events: batch, NextCursor: next})
}

// StreamEvents godoc
// @Summary 实时事件流（SSE）
// @Description 先回放游标之后的事件（含对账），再无缝切换到实时广播。
// @Description 每个事件以 SSE message 下发，持久化事件带 id 字段可作断线重连游标
// @Tags Events
// @Produce text/event-stream
// @Param project_id query string true "项目 ID"
// @Param after query int false "游标" default(0)
// @Param user_id query string false "只保留该用户的事件"
// @Success 200 {string} string "event stream"
// @Failure 400 {object} dto.ErrorResponse
// @Router /events/stream [get]
func (h *EventHandler) StreamEvents(c *gin.Context) {
	projectID := c.Query("project_id")
	if !middleware.ValidateProjectID(projectID) {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Code: dto.ErrCodeInvalidParams, Error: "project_id 缺失或格式无效"})
		return
	}
	after, _ := strconv.ParseInt(c.DefaultQuery("after", "0"), 10, 64)
	userID := c.Query("user_id")

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	// 先订阅再回放，消除"回放结束到订阅生效"之间的事件空洞；
	// 重叠部分用游标去重
	live, cancel := h.hub.Subscribe(c.Request.Context(), projectID)
	defer cancel()

	const replayPage = 100

	cursor := after
	for {
		batch, err := h.replayer.Replay(c.Request.Context(), projectID, cursor, userID, replayPage)
		if err != nil {
			c.SSEvent("error", dto.ErrorResponse{Code: dto.ErrCodeInternal, Error: err.Error()})
			c.Writer.Flush()
			return
		}
		for _, env := range batch {
			writeSSE(c.Writer, env)
			if env.ID > cursor {
				cursor = env.ID
			}
		}
		c.Writer.Flush()
		// 批次未满说明已经追上日志末尾
		if len(batch) < replayPage {
			break
		}
	}

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case env, ok := <-live:
			if !ok {
				return
			}
			// 持久化事件按游标去重（回放已经发过的不再重复）；
			// stream 瞬态事件 id 为 0，直接透传
			if env.ID != 0 && env.ID <= cursor {
				continue
			}
			if userID != "" && env.UserID != userID {
				continue
			}
			writeSSE(c.Writer, env)
			if env.ID > cursor {
				cursor = env.ID
			}
			c.Writer.Flush()
		}
	}
}

// writeSSE 输出一条 SSE 事件；持久化事件带 id 行，供 Last-Event-ID 式重连
func writeSSE(w io.Writer, env events.Envelope) {
	b, err := json.Marshal(env)
	if err != nil {
		return
	}
	if env.ID != 0 {
		_, _ = io.WriteString(w, "id: "+strconv.FormatInt(env.ID, 10)+"\n")
	}
	_, _ = io.WriteString(w, "event: "+env.Type+"\n")
	_, _ = io.WriteString(w, "data: "+string(b)+"\n\n")
}
