package dto

import (
	"time"

	"github.com/azhengyongqin/procq/internal/model"
	"github.com/azhengyongqin/procq/internal/queue"
	"github.com/azhengyongqin/procq/internal/stats"
)

// SubmitJobRequest JSON 提交请求。二选一：
// - content：内联文本，服务端落盘并算指纹；
// - payload_ref：调用方已有的内容引用（临时文件路径/文档 id），
//   指纹可选，缺失时由 worker 在处理中补算。
// 文件上传走 multipart（file 字段 + priority/metadata 表单项），不用这个结构。
type SubmitJobRequest struct {
	Content            string            `json:"content"`
	PayloadRef         string            `json:"payload_ref"`
	ContentFingerprint string            `json:"content_fingerprint"`
	Priority           int               `json:"priority" example:"3"`
	Metadata           map[string]string `json:"metadata"`
}

// SubmitJobResponse 提交成功响应（202）。
// queue_position 是入队时刻的队列深度（近似排位，后续高优任务可以插队）。
type SubmitJobResponse struct {
	JobID         string `json:"job_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Status        string `json:"status" example:"queued"`
	Fingerprint   string `json:"fingerprint,omitempty"`
	QueuePosition int64  `json:"queue_position" example:"7"`
}

// DuplicateResponse 重复提交响应（409）。
// 不是错误：指向既有任务或既有产出。
type DuplicateResponse struct {
	Status         string `json:"status" example:"duplicate"`
	ExistingTaskID string `json:"existing_task_id,omitempty"`
	ResultRef      string `json:"result_ref,omitempty"`
	Fingerprint    string `json:"fingerprint,omitempty"`
}

// JobResponse 任务详情响应
type JobResponse struct {
	JobID       string            `json:"job_id"`
	Status      string            `json:"status" example:"processing"`
	Progress    int               `json:"progress" example:"42"`
	Priority    int               `json:"priority"`
	RetryCount  int               `json:"retry_count"`
	Error       *model.TaskError  `json:"error,omitempty"`
	SubmittedAt time.Time         `json:"submitted_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	ResultRef   string            `json:"result_ref,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// NewJobResponse 从任务记录构建响应
func NewJobResponse(t *model.Task) JobResponse {
	return JobResponse{
		JobID:       t.ID,
		Status:      string(t.Status),
		Progress:    t.Progress,
		Priority:    t.Priority,
		RetryCount:  t.RetryCount,
		Error:       t.Error,
		SubmittedAt: t.SubmittedAt,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
		ResultRef:   t.ResultRef,
		Metadata:    t.Metadata,
	}
}

// QueueSnapshotResponse 队列自省响应
type QueueSnapshotResponse struct {
	Pending    []JobResponse  `json:"pending"`
	Processing []JobResponse  `json:"processing"`
	Stats      QueueStats     `json:"stats"`
	Runtime    stats.Snapshot `json:"runtime"`
}

// QueueStats 队列计数
type QueueStats struct {
	QueueDepth      int64 `json:"queue_depth"`
	ProcessingCount int64 `json:"processing_count"`
	CompletedCount  int64 `json:"completed_count"`
	FailedCount     int64 `json:"failed_count"`
}

// NewQueueSnapshotResponse 从队列快照构建响应
func NewQueueSnapshotResponse(snap *queue.Snapshot, runtime stats.Snapshot) QueueSnapshotResponse {
	resp := QueueSnapshotResponse{
		Pending:    make([]JobResponse, 0, len(snap.Pending)),
		Processing: make([]JobResponse, 0, len(snap.Processing)),
		Stats: QueueStats{
			QueueDepth:      snap.Stats.QueueDepth,
			ProcessingCount: snap.Stats.ProcessingCount,
			CompletedCount:  snap.Stats.CompletedCount,
			FailedCount:     snap.Stats.FailedCount,
		},
		Runtime: runtime,
	}
	for _, t := range snap.Pending {
		resp.Pending = append(resp.Pending, NewJobResponse(t))
	}
	for _, t := range snap.Processing {
		resp.Processing = append(resp.Processing, NewJobResponse(t))
	}
	return resp
}

// SubscribeMessage WebSocket 客户端发来的订阅控制消息
type SubscribeMessage struct {
	Type   string   `json:"type" example:"subscribe"` // subscribe | unsubscribe
	JobIDs []string `json:"job_ids"`
}

// EventMessage WebSocket 推给客户端的事件消息。
// Type 是线上契约类型（progress_update / job_complete / job_error）。
type EventMessage struct {
	Type      string           `json:"type" example:"progress_update"`
	JobID     string           `json:"job_id"`
	Status    string           `json:"status" example:"processing"`
	Progress  int              `json:"progress" example:"42"`
	Message   string           `json:"message,omitempty"`
	Error     *model.TaskError `json:"error,omitempty"`
	ResultRef string           `json:"result_ref,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// NewEventMessage 从内部事件构建线上消息
func NewEventMessage(ev model.Event) EventMessage {
	return EventMessage{
		Type:      ev.WireType(),
		JobID:     ev.JobID,
		Status:    string(ev.Status),
		Progress:  ev.Progress,
		Message:   ev.Message,
		Error:     ev.Error,
		ResultRef: ev.ResultRef,
		Timestamp: ev.Timestamp,
	}
}
