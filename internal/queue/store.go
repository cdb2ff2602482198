package queue

import (
	"context"
	"time"

	"github.com/azhengyongqin/procq/internal/model"
)

// Stats 队列侧计数。completed/failed 是后端累计值，进程重启后
// Redis 后端保留、内存后端清零（与记录本身的持久性一致）。
type Stats struct {
	QueueDepth      int64 `json:"queue_depth"`
	ProcessingCount int64 `json:"processing_count"`
	CompletedCount  int64 `json:"completed_count"`
	FailedCount     int64 `json:"failed_count"`
}

// Update 对任务记录的部分更新。nil 字段不动。
// 单任务不会并发更新：processing 中的任务只有持有它的 worker 会写。
type Update struct {
	Status      *model.Status
	Progress    *int
	RetryCount  *int
	Error       *model.TaskError
	ClearError  bool
	StartedAt   *time.Time
	CompletedAt *time.Time
	ResultRef   *string
}

// Store 队列存储接口。两个实现：Redis（多进程共享）与内存（单进程）。
// 除了重启后的持久性，两者对调用方必须行为一致。
//
// 后端不可达时 Enqueue/Dequeue 返回 ErrQueueUnavailable，
// worker 池按「暂停-重试队列操作」处理，不把任务记失败。
type Store interface {
	// Enqueue 幂等入队（按任务 id），返回当前队列深度。
	Enqueue(ctx context.Context, t *model.Task) (int64, error)

	// Dequeue 阻塞出队（带超时）。没有任务时返回 (nil, nil)。
	// 同一任务绝不会同时发给两个调用方：弹出与移入 processing 集合是原子的。
	Dequeue(ctx context.Context, timeout time.Duration) (*model.Task, error)

	// Requeue 把 worker 持有的任务放回 pending（重试路径）。
	// 记录整体覆写，排序分按原 submitted_at/priority 重算，保持到达序。
	Requeue(ctx context.Context, t *model.Task) error

	// UpdateStatus 部分更新。写入终态时同时移出 processing 集合并挂 TTL。
	UpdateStatus(ctx context.Context, id string, u Update) error

	// GetStatus 返回任务快照；未知或已过期返回 ErrTaskNotFound。
	GetStatus(ctx context.Context, id string) (*model.Task, error)

	// Cancel 协作式取消：仅 queued / 重试窗口内可取消，
	// 已被 worker 持有或已终态返回 ErrNotCancellable。
	Cancel(ctx context.Context, id string) error

	// Pending 按出队顺序返回等待中的任务（用于 /queue 自省）。
	Pending(ctx context.Context, limit int) ([]*model.Task, error)

	// Processing 返回 worker 正在处理的任务。
	Processing(ctx context.Context) ([]*model.Task, error)

	Stats(ctx context.Context) (Stats, error)

	Close() error
}

// applyUpdate 两个后端共用的字段合并逻辑。
func applyUpdate(t *model.Task, u Update) {
	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.Progress != nil {
		t.Progress = *u.Progress
	}
	if u.RetryCount != nil {
		t.RetryCount = *u.RetryCount
	}
	if u.Error != nil {
		t.Error = u.Error
	}
	if u.ClearError {
		t.Error = nil
	}
	if u.StartedAt != nil && t.StartedAt == nil {
		// 时间戳至多设置一次
		t.StartedAt = u.StartedAt
	}
	if u.CompletedAt != nil && t.CompletedAt == nil {
		t.CompletedAt = u.CompletedAt
	}
	if u.ResultRef != nil {
		t.ResultRef = *u.ResultRef
	}
}
