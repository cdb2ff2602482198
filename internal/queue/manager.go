package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/azhengyongqin/procq/internal/dedup"
	"github.com/azhengyongqin/procq/internal/logger"
	"github.com/azhengyongqin/procq/internal/metrics"
	"github.com/azhengyongqin/procq/internal/model"
	"github.com/azhengyongqin/procq/internal/notify"
)

// SubmitRequest 一次提交的输入。指纹可以为空（入队后由 worker 补算）。
type SubmitRequest struct {
	PayloadRef         string
	ContentFingerprint string
	Priority           int
	Metadata           map[string]string
}

// Snapshot 队列自省视图：等待中 + 处理中 + 计数。
type Snapshot struct {
	Pending    []*model.Task
	Processing []*model.Task
	Stats      Stats
}

// Manager 队列门面：提交、查询、取消、快照。
// worker 池直接用 Store 出队，不经过 Manager。
type Manager struct {
	store    Store
	guard    *dedup.Guard
	notifier notify.Notifier
}

func NewManager(store Store, guard *dedup.Guard, notifier notify.Notifier) *Manager {
	if notifier == nil {
		notifier = notify.Discard{}
	}
	return &Manager{store: store, guard: guard, notifier: notifier}
}

// Submit 校验、去重占位、入队、发 queued 事件。
// 返回任务快照与入队后的队列深度。
// 重复提交返回 *model.DuplicateError，不产生任何队列条目。
func (m *Manager) Submit(ctx context.Context, req SubmitRequest) (*model.Task, int64, error) {
	if req.PayloadRef == "" {
		metrics.RecordJobRejected("validation")
		return nil, 0, &model.ValidationError{Field: "payload_ref", Reason: "must not be empty"}
	}
	if req.Priority < 0 {
		metrics.RecordJobRejected("validation")
		return nil, 0, &model.ValidationError{Field: "priority", Reason: "must be >= 0"}
	}

	t := &model.Task{
		ID:                 uuid.NewString(),
		PayloadRef:         req.PayloadRef,
		ContentFingerprint: req.ContentFingerprint,
		Priority:           req.Priority,
		Status:             model.StatusQueued,
		SubmittedAt:        time.Now().UTC(),
		Metadata:           req.Metadata,
	}

	if err := m.guard.Admit(ctx, t.PayloadRef, t.ContentFingerprint, t.ID); err != nil {
		var de *model.DuplicateError
		if errors.As(err, &de) {
			metrics.RecordJobRejected("duplicate")
			log := logger.WithJobID(t.ID)
			log.Info().
				Str("existing_task_id", de.ExistingTaskID).
				Str("fingerprint", de.Fingerprint).
				Msg("提交被去重拒绝")
		}
		return nil, 0, err
	}

	depth, err := m.store.Enqueue(ctx, t)
	if err != nil {
		// 入队失败要回收占位，否则同内容再也提交不进来
		m.guard.Release(ctx, t.PayloadRef, t.ContentFingerprint, t.ID)
		return nil, 0, err
	}

	metrics.RecordJobSubmitted()
	m.notifier.Publish(ctx, model.Event{
		Type:      model.EventQueued,
		JobID:     t.ID,
		Status:    model.StatusQueued,
		Timestamp: time.Now().UTC(),
	})
	log := logger.WithJobID(t.ID)
	log.Info().
		Int("priority", t.Priority).
		Int64("queue_depth", depth).
		Msg("任务已入队")

	return t.Clone(), depth, nil
}

// Status 任务当前快照；未知或已过期返回 ErrTaskNotFound。
func (m *Manager) Status(ctx context.Context, id string) (*model.Task, error) {
	return m.store.GetStatus(ctx, id)
}

// Cancel 协作式取消。仅 queued / 重试窗口内的任务可取消。
func (m *Manager) Cancel(ctx context.Context, id string) error {
	t, err := m.store.GetStatus(ctx, id)
	if err != nil {
		return err
	}

	if err := m.store.Cancel(ctx, id); err != nil {
		return err
	}

	m.guard.Release(ctx, t.PayloadRef, t.ContentFingerprint, id)
	metrics.RecordJobFinished(string(model.StatusCancelled), 0)
	m.notifier.Publish(ctx, model.Event{
		Type:      model.EventCancelled,
		JobID:     id,
		Status:    model.StatusCancelled,
		Progress:  t.Progress,
		Timestamp: time.Now().UTC(),
	})
	log := logger.WithJobID(id)
	log.Info().Msg("任务已取消")
	return nil
}

// Snapshot 返回队列自省视图并顺手刷新队列 gauge。
func (m *Manager) Snapshot(ctx context.Context, limit int) (*Snapshot, error) {
	pending, err := m.store.Pending(ctx, limit)
	if err != nil {
		return nil, err
	}
	processing, err := m.store.Processing(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := m.store.Stats(ctx)
	if err != nil {
		return nil, err
	}

	metrics.UpdateQueueGauges(stats.QueueDepth, stats.ProcessingCount)
	return &Snapshot{Pending: pending, Processing: processing, Stats: stats}, nil
}
