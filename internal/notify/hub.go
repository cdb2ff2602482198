package notify

import (
	"context"
	"sync"

	"github.com/azhengyongqin/procq/internal/logger"
	"github.com/azhengyongqin/procq/internal/model"
)

const subscriptionBuffer = 64

// Subscription 一个订阅者的事件流。
// 同一 job 的事件按发布顺序出现在 C 上；慢消费者会丢最新事件（见 Hub.Publish）。
type Subscription struct {
	C <-chan model.Event

	hub    *Hub
	ch     chan model.Event
	jobIDs map[string]struct{}
}

// Jobs 返回当前订阅的 job 集合。
func (s *Subscription) Jobs() []string {
	out := make([]string, 0, len(s.jobIDs))
	for id := range s.jobIDs {
		out = append(out, id)
	}
	return out
}

// Hub 进程内的按 job 扇出。WebSocket 网关把每个连接挂成一个订阅。
// 同一 job 的事件由唯一持有它的 worker 串行发布，
// 所以按发布序写 channel 即是按发布序投递。
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{} // job_id -> subscribers
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Subscription]struct{})}
}

// Subscribe 订阅一组 job 的事件流。
func (h *Hub) Subscribe(jobIDs ...string) *Subscription {
	ch := make(chan model.Event, subscriptionBuffer)
	sub := &Subscription{
		C:      ch,
		hub:    h,
		ch:     ch,
		jobIDs: make(map[string]struct{}, len(jobIDs)),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range jobIDs {
		sub.jobIDs[id] = struct{}{}
		if h.subs[id] == nil {
			h.subs[id] = make(map[*Subscription]struct{})
		}
		h.subs[id][sub] = struct{}{}
	}
	return sub
}

// Add 给既有订阅追加 job。
func (h *Hub) Add(sub *Subscription, jobIDs ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range jobIDs {
		if _, ok := sub.jobIDs[id]; ok {
			continue
		}
		sub.jobIDs[id] = struct{}{}
		if h.subs[id] == nil {
			h.subs[id] = make(map[*Subscription]struct{})
		}
		h.subs[id][sub] = struct{}{}
	}
}

// Remove 从订阅中摘掉 job。
func (h *Hub) Remove(sub *Subscription, jobIDs ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range jobIDs {
		delete(sub.jobIDs, id)
		h.detach(id, sub)
	}
}

// Unsubscribe 关闭订阅并释放事件通道。
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id := range sub.jobIDs {
		h.detach(id, sub)
	}
	sub.jobIDs = map[string]struct{}{}
	close(sub.ch)
}

// detach 调用方必须持有写锁。
func (h *Hub) detach(jobID string, sub *Subscription) {
	if m, ok := h.subs[jobID]; ok {
		delete(m, sub)
		if len(m) == 0 {
			delete(h.subs, jobID)
		}
	}
}

// Publish 给该 job 的所有订阅者投递事件。
// 订阅者 channel 满时丢弃本条（记 warn），不阻塞发布方。
func (h *Hub) Publish(ctx context.Context, ev model.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[ev.JobID] {
		select {
		case sub.ch <- ev:
		default:
			logger.Warn().
				Str("job_id", ev.JobID).
				Str("event", string(ev.Type)).
				Msg("订阅者消费过慢，丢弃事件")
		}
	}
}
