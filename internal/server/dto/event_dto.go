package dto

import "github.com/azhengyongqin/genhub/internal/events"

// ReplayEventsResponse 事件回放响应。
// NextCursor 是本批最后一条事件的日志 id，客户端以它为游标继续拉取
type ReplayEventsResponse struct {
	Events     []events.Envelope `json:"events"`
	NextCursor int64             `json:"next_cursor"`
}
