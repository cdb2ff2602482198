// Package store 是内容存储边界：任务输入（payload 临时文件）的
// 读取/清理，以及最终产出的落库与指纹索引。
package store

import (
	"context"
	"time"
)

// Result 一条已完成任务的产出记录。
type Result struct {
	Fingerprint string    `json:"fingerprint"`
	TaskID      string    `json:"task_id"`
	ResultRef   string    `json:"result_ref"`
	CreatedAt   time.Time `json:"created_at"`
}

// ContentStore 产出持久化 + 指纹查询。
// HasResult 同时是 dedup.ResultIndex 的实现。
type ContentStore interface {
	// SaveResult 幂等落一条产出记录（按指纹）。
	SaveResult(ctx context.Context, r Result) error

	// HasResult 指纹是否已有产出；有则返回 result_ref。
	HasResult(ctx context.Context, fingerprint string) (resultRef string, ok bool, err error)

	Close() error
}
