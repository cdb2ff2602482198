package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azhengyongqin/procq/internal/model"
)

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore(time.Hour, time.Hour)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func enqueueTask(t *testing.T, s *MemoryStore, id string, priority int, submittedAt time.Time) {
	t.Helper()
	_, err := s.Enqueue(context.Background(), &model.Task{
		ID:          id,
		PayloadRef:  "/tmp/" + id,
		Priority:    priority,
		Status:      model.StatusQueued,
		SubmittedAt: submittedAt,
	})
	require.NoError(t, err)
}

func TestMemoryStore_PriorityThenFIFO(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	// 同时提交，优先级 [1,5,1,5]：高优先级先出，同级内按到达序
	enqueueTask(t, s, "task1", 1, now)
	enqueueTask(t, s, "task2", 5, now)
	enqueueTask(t, s, "task3", 1, now)
	enqueueTask(t, s, "task4", 5, now)

	var got []string
	for i := 0; i < 4; i++ {
		task, err := s.Dequeue(context.Background(), time.Second)
		require.NoError(t, err)
		require.NotNil(t, task)
		got = append(got, task.ID)
	}
	assert.Equal(t, []string{"task2", "task4", "task1", "task3"}, got)
}

func TestMemoryStore_EnqueueIdempotent(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	enqueueTask(t, s, "task1", 0, now)
	enqueueTask(t, s, "task1", 0, now)

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.QueueDepth)
}

func TestMemoryStore_AtMostOneDelivery(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	const n = 50
	for i := 0; i < n; i++ {
		enqueueTask(t, s, fmt.Sprintf("task-%02d", i), i%3, now.Add(time.Duration(i)*time.Millisecond))
	}

	var mu sync.Mutex
	seen := make(map[string]int)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				task, err := s.Dequeue(context.Background(), 50*time.Millisecond)
				if err != nil || task == nil {
					return
				}
				mu.Lock()
				seen[task.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
	for id, count := range seen {
		assert.Equal(t, 1, count, "task %s 被投递了 %d 次", id, count)
	}
}

func TestMemoryStore_DequeueTimeoutEmpty(t *testing.T) {
	s := newTestStore(t)

	start := time.Now()
	task, err := s.Dequeue(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, task)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestMemoryStore_DequeueWakesOnEnqueue(t *testing.T) {
	s := newTestStore(t)

	done := make(chan *model.Task, 1)
	go func() {
		task, _ := s.Dequeue(context.Background(), 2*time.Second)
		done <- task
	}()

	time.Sleep(20 * time.Millisecond)
	enqueueTask(t, s, "task1", 0, time.Now())

	select {
	case task := <-done:
		require.NotNil(t, task)
		assert.Equal(t, "task1", task.ID)
	case <-time.After(time.Second):
		t.Fatal("阻塞出队没有被入队唤醒")
	}
}

func TestMemoryStore_CancelQueued(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	enqueueTask(t, s, "task1", 0, now)
	enqueueTask(t, s, "task2", 0, now)

	require.NoError(t, s.Cancel(ctx, "task1"))

	got, err := s.GetStatus(ctx, "task1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)
	require.NotNil(t, got.CompletedAt)

	// 已取消的任务不会再被出队（残留堆条目被惰性跳过）
	task, err := s.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, "task2", task.ID)

	task, err = s.Dequeue(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestMemoryStore_CancelProcessingRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	enqueueTask(t, s, "task1", 0, time.Now())
	task, err := s.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, task)

	err = s.Cancel(ctx, "task1")
	assert.ErrorIs(t, err, model.ErrNotCancellable)
}

func TestMemoryStore_CancelTerminalRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	enqueueTask(t, s, "task1", 0, time.Now())
	task, err := s.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, task)

	done := model.StatusCompleted
	require.NoError(t, s.UpdateStatus(ctx, "task1", Update{Status: &done}))

	assert.ErrorIs(t, s.Cancel(ctx, "task1"), model.ErrNotCancellable)
}

func TestMemoryStore_RequeueKeepsArrivalOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	enqueueTask(t, s, "task1", 0, now)
	enqueueTask(t, s, "task2", 0, now.Add(time.Millisecond))

	task, err := s.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.Equal(t, "task1", task.ID)

	// 重试回队：排序分按原提交时刻重算，task1 仍排在 task2 前面
	task.Status = model.StatusRetrying
	task.RetryCount = 1
	require.NoError(t, s.Requeue(ctx, task))

	next, err := s.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "task1", next.ID)
	assert.Equal(t, 1, next.RetryCount)
}

func TestMemoryStore_UpdateStatusTerminalCounters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	enqueueTask(t, s, "task1", 0, time.Now())
	enqueueTask(t, s, "task2", 0, time.Now())

	for range [2]int{} {
		task, err := s.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, task)
	}

	completed := model.StatusCompleted
	failed := model.StatusFailed
	require.NoError(t, s.UpdateStatus(ctx, "task1", Update{Status: &completed}))
	require.NoError(t, s.UpdateStatus(ctx, "task2", Update{Status: &failed}))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, stats.QueueDepth)
	assert.EqualValues(t, 0, stats.ProcessingCount)
	assert.EqualValues(t, 1, stats.CompletedCount)
	assert.EqualValues(t, 1, stats.FailedCount)
}

func TestMemoryStore_StartedAtSetOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	enqueueTask(t, s, "task1", 0, time.Now())

	first := time.Now()
	require.NoError(t, s.UpdateStatus(ctx, "task1", Update{StartedAt: &first}))

	later := first.Add(time.Minute)
	require.NoError(t, s.UpdateStatus(ctx, "task1", Update{StartedAt: &later}))

	got, err := s.GetStatus(ctx, "task1")
	require.NoError(t, err)
	require.NotNil(t, got.StartedAt)
	assert.True(t, got.StartedAt.Equal(first), "started_at 只应设置一次")
}

func TestMemoryStore_GetStatusNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetStatus(context.Background(), "nope")
	assert.ErrorIs(t, err, model.ErrTaskNotFound)
}

func TestMemoryStore_PendingSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	enqueueTask(t, s, "low", 1, now)
	enqueueTask(t, s, "high", 9, now)

	pending, err := s.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "high", pending[0].ID)
	assert.Equal(t, "low", pending[1].ID)

	pending, err = s.Pending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "high", pending[0].ID)
}
