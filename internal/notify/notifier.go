package notify

import (
	"context"

	"github.com/azhengyongqin/procq/internal/metrics"
	"github.com/azhengyongqin/procq/internal/model"
)

// Notifier 进度事件发布口。
// 对 worker 是 fire-and-forget：通知通道故障只记日志，绝不阻塞、
// 绝不让处理流水线失败。
type Notifier interface {
	Publish(ctx context.Context, ev model.Event)
}

// Multi 把同一事件依次发到多个通道（进程内 hub + Redis pub/sub）。
type Multi []Notifier

func (m Multi) Publish(ctx context.Context, ev model.Event) {
	metrics.RecordProgressEvent()
	for _, n := range m {
		n.Publish(ctx, ev)
	}
}

// Discard 丢弃所有事件（测试与 example 用）。
type Discard struct{}

func (Discard) Publish(ctx context.Context, ev model.Event) {}
