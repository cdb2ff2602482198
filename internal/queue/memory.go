package queue

import (
	"container/heap"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/azhengyongqin/procq/internal/model"
)

// MemoryStore 单进程内存后端：最小堆 + map，互斥锁保护。
// 部署上等价于 Redis 后端（不保证重启持久性）。
type MemoryStore struct {
	mu         sync.Mutex
	tasks      map[string]*model.Task
	pq         prioQueue
	inQueue    map[string]struct{} // 仍在 pending 堆里的有效 id
	processing map[string]struct{}
	expiry     map[string]time.Time // 终态记录的过期时刻
	completed  int64
	failed     int64
	seq        uint64
	scale      time.Duration
	ttl        time.Duration

	notify    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryStore 创建内存后端并启动终态记录清理协程。
func NewMemoryStore(scale, ttl time.Duration) *MemoryStore {
	s := &MemoryStore{
		tasks:      make(map[string]*model.Task),
		inQueue:    make(map[string]struct{}),
		processing: make(map[string]struct{}),
		expiry:     make(map[string]time.Time),
		scale:      scale,
		ttl:        ttl,
		notify:     make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	go s.janitor()
	return s
}

func (s *MemoryStore) Enqueue(ctx context.Context, t *model.Task) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 幂等：同一 id 不会产生第二个队列条目
	if _, ok := s.inQueue[t.ID]; !ok {
		if _, held := s.processing[t.ID]; !held {
			s.seq++
			heap.Push(&s.pq, &item{
				id:    t.ID,
				score: Score(t.SubmittedAt, t.Priority, s.scale),
				seq:   s.seq,
			})
			s.inQueue[t.ID] = struct{}{}
			s.tasks[t.ID] = t.Clone()
		}
	}

	depth := int64(len(s.inQueue))
	s.signal()
	return depth, nil
}

func (s *MemoryStore) Dequeue(ctx context.Context, timeout time.Duration) (*model.Task, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		if t := s.tryPop(); t != nil {
			return t, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, nil
		case <-s.done:
			return nil, nil
		case <-s.notify:
			// 有新任务，回去再试
		}
	}
}

// tryPop 原子地弹出一个可处理任务并移入 processing 集合。
func (s *MemoryStore) tryPop() *model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.pq.Len() > 0 {
		it := heap.Pop(&s.pq).(*item)
		if _, live := s.inQueue[it.id]; !live {
			// 被取消或过期后留下的残留堆条目，丢弃
			continue
		}
		delete(s.inQueue, it.id)

		t, ok := s.tasks[it.id]
		if !ok || t.Status.Terminal() {
			continue
		}
		s.processing[it.id] = struct{}{}
		return t.Clone()
	}
	return nil
}

func (s *MemoryStore) Requeue(ctx context.Context, t *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.processing, t.ID)
	s.tasks[t.ID] = t.Clone()
	s.seq++
	heap.Push(&s.pq, &item{
		id:    t.ID,
		score: Score(t.SubmittedAt, t.Priority, s.scale),
		seq:   s.seq,
	})
	s.inQueue[t.ID] = struct{}{}
	s.signal()
	return nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, u Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return model.ErrTaskNotFound
	}
	applyUpdate(t, u)

	if t.Status.Terminal() {
		delete(s.processing, id)
		delete(s.inQueue, id)
		s.expiry[id] = time.Now().Add(s.ttl)
		switch t.Status {
		case model.StatusCompleted:
			s.completed++
		case model.StatusFailed:
			s.failed++
		}
	}
	return nil
}

func (s *MemoryStore) GetStatus(ctx context.Context, id string) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, model.ErrTaskNotFound
	}
	return t.Clone(), nil
}

func (s *MemoryStore) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return model.ErrTaskNotFound
	}
	if _, held := s.processing[id]; held {
		return model.ErrNotCancellable
	}
	if t.Status != model.StatusQueued && t.Status != model.StatusRetrying {
		return model.ErrNotCancellable
	}

	t.Status = model.StatusCancelled
	now := time.Now()
	t.CompletedAt = &now
	delete(s.inQueue, id) // 堆条目留给 tryPop 惰性清理
	s.expiry[id] = now.Add(s.ttl)
	return nil
}

func (s *MemoryStore) Pending(ctx context.Context, limit int) ([]*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.Task, 0, len(s.inQueue))
	for id := range s.inQueue {
		if t, ok := s.tasks[id]; ok {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return Score(out[i].SubmittedAt, out[i].Priority, s.scale) <
			Score(out[j].SubmittedAt, out[j].Priority, s.scale)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Processing(ctx context.Context) ([]*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.Task, 0, len(s.processing))
	for id := range s.processing {
		if t, ok := s.tasks[id]; ok {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		QueueDepth:      int64(len(s.inQueue)),
		ProcessingCount: int64(len(s.processing)),
		CompletedCount:  s.completed,
		FailedCount:     s.failed,
	}, nil
}

func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// signal 非阻塞唤醒一个等待中的 Dequeue。
func (s *MemoryStore) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// janitor 周期清理过期终态记录（对应 Redis 后端的 key TTL）。
func (s *MemoryStore) janitor() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for id, exp := range s.expiry {
				if now.After(exp) {
					delete(s.tasks, id)
					delete(s.expiry, id)
				}
			}
			s.mu.Unlock()
		}
	}
}

// item 堆元素。score 相同按入堆序（seq）FIFO。
type item struct {
	id    string
	score float64
	seq   uint64
}

type prioQueue []*item

func (pq prioQueue) Len() int { return len(pq) }

func (pq prioQueue) Less(i, j int) bool {
	if pq[i].score != pq[j].score {
		return pq[i].score < pq[j].score
	}
	return pq[i].seq < pq[j].seq
}

func (pq prioQueue) Swap(i, j int) { pq[i], pq[j] = pq[j], pq[i] }

func (pq *prioQueue) Push(x any) { *pq = append(*pq, x.(*item)) }

func (pq *prioQueue) Pop() any {
	old := *pq
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return it
}
