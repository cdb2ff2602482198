package worker

import (
	"context"
	"errors"
	"time"

	"github.com/azhengyongqin/procq/internal/model"
)

// RetryPolicy 指数退避重试策略。
// 失败的任务最多重试 MaxAttempts 次（总尝试数 = 首次 + MaxAttempts）。
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Backoff 第 retryCount 次重试前的等待时长：base * 2^retryCount，封顶 MaxDelay。
func (p RetryPolicy) Backoff(retryCount int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < retryCount; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Decision 一次失败后的处置。
type Decision int

const (
	// DecisionRetry 退避后重新入队。
	DecisionRetry Decision = iota
	// DecisionFail 永久失败（不可重试错误或预算耗尽）。
	DecisionFail
	// DecisionDuplicate 处理中发现内容重复，转 duplicate 终态。
	DecisionDuplicate
)

// Decide 根据错误类型与已重试次数给出处置。
// 永久错误与超时直接判失败，不消耗重试预算。
func (p RetryPolicy) Decide(retryCount int, err error) Decision {
	var de *model.DuplicateError
	if errors.As(err, &de) {
		return DecisionDuplicate
	}
	if model.IsPermanent(err) {
		return DecisionFail
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return DecisionFail
	}
	// retryCount 是已发生的重试数，预算内（< MaxAttempts）继续重试
	if retryCount >= p.MaxAttempts {
		return DecisionFail
	}
	return DecisionRetry
}
