package events

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/azhengyongqin/genhub/internal/logger"
)

// Hub 把 Redis 广播桥接给本进程内的实时订阅者（SSE 连接）。
// 每个 project 共享一个 Redis 订阅，按需建立、最后一个订阅者离开时回收。
type Hub struct {
	rdb    redis.UniversalClient
	prefix string

	mu      sync.Mutex
	subs    map[string]map[chan Envelope]struct{} // project_id -> 订阅者
	pubsubs map[string]*redis.PubSub
}

func NewHub(rdb redis.UniversalClient, channelPrefix string) *Hub {
	if channelPrefix == "" {
		channelPrefix = DefaultChannelPrefix
	}
	return &Hub{
		rdb:     rdb,
		prefix:  channelPrefix,
		subs:    make(map[string]map[chan Envelope]struct{}),
		pubsubs: make(map[string]*redis.PubSub),
	}
}

// Subscribe 订阅一个 project 的实时事件流。
// 返回的 channel 带缓冲；消费过慢时事件会被丢弃 —— stream 事件本就允许丢失，
// 生命周期事件可通过回放+对账补齐，因此丢弃不破坏正确性。
func (h *Hub) Subscribe(ctx context.Context, projectID string) (<-chan Envelope, func()) {
	ch := make(chan Envelope, 64)

	h.mu.Lock()
	if _, ok := h.subs[projectID]; !ok {
		h.subs[projectID] = make(map[chan Envelope]struct{})
		ps := h.rdb.Subscribe(ctx, h.prefix+projectID)
		h.pubsubs[projectID] = ps
		go h.pump(projectID, ps)
	}
	h.subs[projectID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		set, ok := h.subs[projectID]
		if !ok {
			return
		}
		if _, ok := set[ch]; !ok {
			return
		}
		delete(set, ch)
		close(ch)
		if len(set) == 0 {
			delete(h.subs, projectID)
			if ps := h.pubsubs[projectID]; ps != nil {
				_ = ps.Close()
				delete(h.pubsubs, projectID)
			}
		}
	}
	return ch, cancel
}

// pump 把一个 project 的 Redis 消息分发给所有本地订阅者
func (h *Hub) pump(projectID string, ps *redis.PubSub) {
	for msg := range ps.Channel() {
		var env Envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			logger.L.Warn().Err(err).Str("project_id", projectID).Msg("广播消息解析失败")
			continue
		}

		h.mu.Lock()
		for ch := range h.subs[projectID] {
			select {
			case ch <- env:
			default:
				// 订阅者消费过慢，丢弃本条
			}
		}
		h.mu.Unlock()
	}
}

// Close 关闭所有订阅
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for projectID, ps := range h.pubsubs {
		_ = ps.Close()
		delete(h.pubsubs, projectID)
	}
	for projectID, set := range h.subs {
		for ch := range set {
			close(ch)
		}
		delete(h.subs, projectID)
	}
}
