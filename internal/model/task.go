package model

import "time"

// Status 统一任务状态枚举（用于 API/队列存储/前端筛选）。
// 约定：
// - queued: 已入队（等待被 worker 消费）
// - processing: worker 正在处理
// - retrying: 本次尝试失败，等待退避后重新入队
// - completed/failed/duplicate/cancelled: 终态，记录只剩 TTL 过期一条路
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusRetrying   Status = "retrying"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusDuplicate  Status = "duplicate"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusRetrying,
		StatusCompleted, StatusFailed, StatusDuplicate, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal 终态判断：终态记录不再被任何 worker 持有。
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusDuplicate, StatusCancelled:
		return true
	default:
		return false
	}
}

// TaskError 结构化错误（kind + message），仅在 failed/retrying 时出现。
type TaskError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Task 是一个处理单元的完整记录。
// 队列从不解读 PayloadRef 指向的内容，只负责搬运。
type Task struct {
	ID                 string            `json:"id"`
	PayloadRef         string            `json:"payload_ref"`
	ContentFingerprint string            `json:"content_fingerprint,omitempty"`
	Priority           int               `json:"priority"`
	Status             Status            `json:"status"`
	Progress           int               `json:"progress"`
	RetryCount         int               `json:"retry_count"`
	Error              *TaskError        `json:"error,omitempty"`
	SubmittedAt        time.Time         `json:"submitted_at"`
	StartedAt          *time.Time        `json:"started_at,omitempty"`
	CompletedAt        *time.Time        `json:"completed_at,omitempty"`
	ResultRef          string            `json:"result_ref,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

// Clone 深拷贝（存储层返回副本，避免调用方改到内部状态）。
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	if t.Error != nil {
		e := *t.Error
		cp.Error = &e
	}
	if t.StartedAt != nil {
		ts := *t.StartedAt
		cp.StartedAt = &ts
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		cp.CompletedAt = &ts
	}
	if t.Metadata != nil {
		cp.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
