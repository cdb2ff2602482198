package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/azhengyongqin/procq/internal/model"
)

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 10 * time.Second}

	assert.Equal(t, 1*time.Second, p.Backoff(0))
	assert.Equal(t, 2*time.Second, p.Backoff(1))
	assert.Equal(t, 4*time.Second, p.Backoff(2))
	assert.Equal(t, 8*time.Second, p.Backoff(3))
	// 封顶
	assert.Equal(t, 10*time.Second, p.Backoff(4))
	assert.Equal(t, 10*time.Second, p.Backoff(20))
}

func TestRetryPolicy_Decide(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Minute}
	transient := errors.New("connection reset")

	tests := []struct {
		name       string
		retryCount int
		err        error
		want       Decision
	}{
		{"瞬时错误首次失败可重试", 0, transient, DecisionRetry},
		{"瞬时错误第二次失败可重试", 1, transient, DecisionRetry},
		{"最后一次预算内重试", 2, transient, DecisionRetry},
		{"预算耗尽判失败", 3, transient, DecisionFail},
		{"永久错误不消耗预算", 0, model.Permanent(errors.New("corrupt file")), DecisionFail},
		{"看门狗超时判失败", 0, context.DeadlineExceeded, DecisionFail},
		{"处理中发现重复", 0, &model.DuplicateError{Fingerprint: "fp"}, DecisionDuplicate},
		{"包装后的永久错误", 1, errors.Join(errors.New("ctx"), model.Permanent(errors.New("bad"))), DecisionFail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Decide(tt.retryCount, tt.err))
		})
	}
}
