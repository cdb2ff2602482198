package dedup

import (
	"context"
	"time"

	"github.com/azhengyongqin/procq/internal/logger"
	"github.com/azhengyongqin/procq/internal/model"
)

// ResultIndex 内容存储里「同指纹是否已有产出」的查询口。
// 由 store.ContentStore 实现。
type ResultIndex interface {
	HasResult(ctx context.Context, fingerprint string) (resultRef string, ok bool, err error)
}

// Guard 入队前与处理中的去重闸门。两个独立条件，任一命中即拒绝：
// (a) 已有任务（queued/processing/completed）占住同一逻辑文档引用或指纹；
// (b) 内容存储里已有同指纹产出。
// 拒绝无副作用：不产生队列条目，提交方同步收到 duplicate。
type Guard struct {
	claims  ClaimStore
	results ResultIndex
	ttl     time.Duration
}

func NewGuard(claims ClaimStore, results ResultIndex, ttl time.Duration) *Guard {
	return &Guard{claims: claims, results: results, ttl: ttl}
}

func refKey(payloadRef string) string { return "ref:" + payloadRef }
func fpKey(fingerprint string) string { return "fp:" + fingerprint }

// Admit 入队前检查并占位。通过返回 nil；重复返回 *model.DuplicateError。
// 指纹未知（入队后下载时才能算出）时只按 payload_ref 占位。
func (g *Guard) Admit(ctx context.Context, payloadRef, fingerprint, taskID string) error {
	ok, holder, err := g.claims.Claim(ctx, refKey(payloadRef), taskID, g.ttl)
	if err != nil {
		return err
	}
	if !ok {
		return &model.DuplicateError{ExistingTaskID: holder}
	}

	if fingerprint == "" {
		return nil
	}

	if err := g.checkFingerprint(ctx, fingerprint, taskID); err != nil {
		// 指纹命中重复：释放刚占下的引用位，保持无副作用
		_ = g.claims.Release(ctx, refKey(payloadRef), taskID)
		return err
	}
	return nil
}

// CheckMidRun 处理中（下载后）才拿到指纹时的补查。
// 命中重复时调用方把任务转入 duplicate 终态，而不是 failed。
func (g *Guard) CheckMidRun(ctx context.Context, fingerprint, taskID string) error {
	if fingerprint == "" {
		return nil
	}
	return g.checkFingerprint(ctx, fingerprint, taskID)
}

func (g *Guard) checkFingerprint(ctx context.Context, fingerprint, taskID string) error {
	if g.results != nil {
		ref, ok, err := g.results.HasResult(ctx, fingerprint)
		if err != nil {
			// 内容存储查不到不阻塞提交：放行，靠指纹占位兜底
			logger.Warn().Err(err).Str("fingerprint", fingerprint).Msg("查询既有产出失败")
		} else if ok {
			return &model.DuplicateError{Fingerprint: fingerprint, ResultRef: ref}
		}
	}

	ok, holder, err := g.claims.Claim(ctx, fpKey(fingerprint), taskID, g.ttl)
	if err != nil {
		return err
	}
	if !ok {
		return &model.DuplicateError{Fingerprint: fingerprint, ExistingTaskID: holder}
	}
	return nil
}

// Release 任务取消或永久失败时释放占位，让同内容可以重新提交。
// 完成的任务不释放：占位连同产出索引一起挡住后续重复提交。
func (g *Guard) Release(ctx context.Context, payloadRef, fingerprint, taskID string) {
	if payloadRef != "" {
		_ = g.claims.Release(ctx, refKey(payloadRef), taskID)
	}
	if fingerprint != "" {
		_ = g.claims.Release(ctx, fpKey(fingerprint), taskID)
	}
}
