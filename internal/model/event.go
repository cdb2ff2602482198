package model

import "time"

// EventType 进度事件类型。与任务状态一一对应，外加 processing 过程中的增量进度。
type EventType string

const (
	EventQueued     EventType = "queued"
	EventProcessing EventType = "processing"
	EventRetrying   EventType = "retrying"
	EventCompleted  EventType = "completed"
	EventFailed     EventType = "failed"
	EventDuplicate  EventType = "duplicate"
	EventCancelled  EventType = "cancelled"
)

// Event 单个任务的一条进度/状态事件。
// 同一 job 内事件按发布顺序投递；不同 job 之间无顺序保证。
type Event struct {
	Type      EventType  `json:"type"`
	JobID     string     `json:"job_id"`
	Status    Status     `json:"status"`
	Progress  int        `json:"progress"`
	Message   string     `json:"message,omitempty"`
	Error     *TaskError `json:"error,omitempty"`
	ResultRef string     `json:"result_ref,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// WireType WebSocket 线上契约的消息类型。
// failed 映射为 job_error；其余终态映射为 job_complete（duplicate 不算错误）。
func (e Event) WireType() string {
	switch e.Type {
	case EventFailed:
		return "job_error"
	case EventCompleted, EventDuplicate, EventCancelled:
		return "job_complete"
	default:
		return "progress_update"
	}
}
