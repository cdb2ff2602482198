package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azhengyongqin/procq/internal/dedup"
	"github.com/azhengyongqin/procq/internal/model"
)

// captureNotifier 收集发布的事件（测试用）。
type captureNotifier struct {
	mu     sync.Mutex
	events []model.Event
}

func (n *captureNotifier) Publish(_ context.Context, ev model.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *captureNotifier) all() []model.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.Event(nil), n.events...)
}

func newTestManager(t *testing.T) (*Manager, *MemoryStore, *captureNotifier) {
	t.Helper()
	s := newTestStore(t)
	guard := dedup.NewGuard(dedup.NewMemoryClaims(), nil, time.Hour)
	rec := &captureNotifier{}
	return NewManager(s, guard, rec), s, rec
}

func TestManager_Submit(t *testing.T) {
	m, s, rec := newTestManager(t)
	ctx := context.Background()

	task, depth, err := m.Submit(ctx, SubmitRequest{
		PayloadRef:         "/tmp/doc-1",
		ContentFingerprint: "fp-1",
		Priority:           3,
		Metadata:           map[string]string{"source": "upload"},
	})
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, model.StatusQueued, task.Status)
	assert.Equal(t, 3, task.Priority)
	assert.EqualValues(t, 1, depth)

	got, err := s.GetStatus(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "fp-1", got.ContentFingerprint)

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventQueued, events[0].Type)
	assert.Equal(t, task.ID, events[0].JobID)
}

func TestManager_SubmitValidation(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	var ve *model.ValidationError

	_, _, err := m.Submit(ctx, SubmitRequest{PayloadRef: ""})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "payload_ref", ve.Field)

	_, _, err = m.Submit(ctx, SubmitRequest{PayloadRef: "/tmp/x", Priority: -1})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "priority", ve.Field)
}

func TestManager_SubmitDuplicateFingerprint(t *testing.T) {
	m, s, _ := newTestManager(t)
	ctx := context.Background()

	first, _, err := m.Submit(ctx, SubmitRequest{PayloadRef: "/tmp/a", ContentFingerprint: "fp-1"})
	require.NoError(t, err)

	// 相同指纹、不同文件：被拒且不产生第二个队列条目
	_, _, err = m.Submit(ctx, SubmitRequest{PayloadRef: "/tmp/b", ContentFingerprint: "fp-1"})
	var de *model.DuplicateError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, first.ID, de.ExistingTaskID)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.QueueDepth)
}

func TestManager_SubmitDuplicatePayloadRef(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	first, _, err := m.Submit(ctx, SubmitRequest{PayloadRef: "/tmp/a"})
	require.NoError(t, err)

	_, _, err = m.Submit(ctx, SubmitRequest{PayloadRef: "/tmp/a"})
	var de *model.DuplicateError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, first.ID, de.ExistingTaskID)
}

func TestManager_CancelReleasesClaim(t *testing.T) {
	m, _, rec := newTestManager(t)
	ctx := context.Background()

	task, _, err := m.Submit(ctx, SubmitRequest{PayloadRef: "/tmp/a", ContentFingerprint: "fp-1"})
	require.NoError(t, err)

	require.NoError(t, m.Cancel(ctx, task.ID))

	got, err := m.Status(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)

	// 取消释放占位：同内容可以重新提交
	again, _, err := m.Submit(ctx, SubmitRequest{PayloadRef: "/tmp/a", ContentFingerprint: "fp-1"})
	require.NoError(t, err)
	assert.NotEqual(t, task.ID, again.ID)

	events := rec.all()
	require.Len(t, events, 3)
	assert.Equal(t, model.EventCancelled, events[1].Type)
}

func TestManager_CancelNotFound(t *testing.T) {
	m, _, _ := newTestManager(t)
	assert.ErrorIs(t, m.Cancel(context.Background(), "nope"), model.ErrTaskNotFound)
}

func TestManager_CancelProcessing(t *testing.T) {
	m, s, _ := newTestManager(t)
	ctx := context.Background()

	task, _, err := m.Submit(ctx, SubmitRequest{PayloadRef: "/tmp/a"})
	require.NoError(t, err)

	popped, err := s.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.Equal(t, task.ID, popped.ID)

	assert.ErrorIs(t, m.Cancel(ctx, task.ID), model.ErrNotCancellable)
}

func TestManager_Snapshot(t *testing.T) {
	m, s, _ := newTestManager(t)
	ctx := context.Background()

	for _, ref := range []string{"/tmp/a", "/tmp/b", "/tmp/c"} {
		_, _, err := m.Submit(ctx, SubmitRequest{PayloadRef: ref})
		require.NoError(t, err)
	}
	_, err := s.Dequeue(ctx, time.Second)
	require.NoError(t, err)

	snap, err := m.Snapshot(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, snap.Pending, 2)
	assert.Len(t, snap.Processing, 1)
	assert.EqualValues(t, 2, snap.Stats.QueueDepth)
	assert.EqualValues(t, 1, snap.Stats.ProcessingCount)
}
