package model

import (
	"errors"
	"fmt"
)

// 错误分类（落到 TaskError.Kind，便于前端与报表筛选）。
const (
	ErrKindValidation = "validation"
	ErrKindDuplicate  = "duplicate"
	ErrKindTransform  = "transformation"
	ErrKindPermanent  = "permanent"
	ErrKindTimeout    = "timeout"
	ErrKindCancelled  = "cancelled"
)

var (
	// ErrQueueUnavailable 队列后端暂时不可达。
	// worker 对它的处理是 sleep 后重试队列操作本身，而不是把任务记为失败。
	ErrQueueUnavailable = errors.New("queue backend unavailable")

	// ErrTaskNotFound 任务不存在或已过 TTL。
	ErrTaskNotFound = errors.New("task not found")

	// ErrNotCancellable 只有 queued / 重试窗口内的任务可以取消。
	ErrNotCancellable = errors.New("task is not cancellable in its current state")
)

// ValidationError 提交阶段的校验错误：同步返回给提交方，不产生任务。
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// DuplicateError 不是失败，而是一种独立的终态结果：
// 相同内容已经处理过（或正在处理），提交方拿到的是既有结果的指引。
type DuplicateError struct {
	Fingerprint    string
	ExistingTaskID string
	ResultRef      string
}

func (e *DuplicateError) Error() string {
	if e.ExistingTaskID != "" {
		return fmt.Sprintf("content already submitted as task %s", e.ExistingTaskID)
	}
	return fmt.Sprintf("content %s already processed", e.Fingerprint)
}

// PermanentError 标记不可重试的转换失败（损坏文件、不支持的格式等）。
// 重试策略遇到它直接判 failed，不消耗重试预算。
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent 包装一个错误为不可重试。
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent 判断错误是否绕过重试。
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// ErrorKind 把任意错误归入分类。
func ErrorKind(err error) string {
	var ve *ValidationError
	var de *DuplicateError
	switch {
	case errors.As(err, &ve):
		return ErrKindValidation
	case errors.As(err, &de):
		return ErrKindDuplicate
	case IsPermanent(err):
		return ErrKindPermanent
	default:
		return ErrKindTransform
	}
}
