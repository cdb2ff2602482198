package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azhengyongqin/procq/internal/model"
)

type fakeResults struct {
	refs map[string]string
}

func (f *fakeResults) HasResult(ctx context.Context, fingerprint string) (string, bool, error) {
	ref, ok := f.refs[fingerprint]
	return ref, ok, nil
}

func newTestGuard(refs map[string]string) *Guard {
	return NewGuard(NewMemoryClaims(), &fakeResults{refs: refs}, time.Hour)
}

func TestGuard_AdmitFirstSubmission(t *testing.T) {
	g := newTestGuard(nil)

	err := g.Admit(context.Background(), "doc-1.pdf", "abc123", "task-1")
	assert.NoError(t, err, "首次提交应该放行")
}

func TestGuard_RejectSameFingerprint(t *testing.T) {
	g := newTestGuard(nil)

	require.NoError(t, g.Admit(context.Background(), "doc-1.pdf", "abc123", "task-1"))

	// 第一个任务尚未完成，同指纹的第二次提交必须拒绝
	err := g.Admit(context.Background(), "doc-2.pdf", "abc123", "task-2")
	var de *model.DuplicateError
	require.True(t, errors.As(err, &de), "应返回 DuplicateError")
	assert.Equal(t, "task-1", de.ExistingTaskID)
}

func TestGuard_RejectSamePayloadRef(t *testing.T) {
	g := newTestGuard(nil)

	require.NoError(t, g.Admit(context.Background(), "doc-1.pdf", "", "task-1"))

	err := g.Admit(context.Background(), "doc-1.pdf", "", "task-2")
	var de *model.DuplicateError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "task-1", de.ExistingTaskID)
}

func TestGuard_RejectExistingResult(t *testing.T) {
	g := newTestGuard(map[string]string{"abc123": "result/abc123"})

	err := g.Admit(context.Background(), "doc-1.pdf", "abc123", "task-1")
	var de *model.DuplicateError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "result/abc123", de.ResultRef)
}

func TestGuard_RejectionIsSideEffectFree(t *testing.T) {
	g := newTestGuard(nil)

	require.NoError(t, g.Admit(context.Background(), "doc-1.pdf", "abc123", "task-1"))
	require.Error(t, g.Admit(context.Background(), "doc-2.pdf", "abc123", "task-2"))

	// task-2 被拒后不应留下 ref 占位：同一 payload_ref 换个指纹仍可提交
	err := g.Admit(context.Background(), "doc-2.pdf", "other-fp", "task-3")
	assert.NoError(t, err)
}

func TestGuard_ReleaseAllowsResubmission(t *testing.T) {
	g := newTestGuard(nil)

	require.NoError(t, g.Admit(context.Background(), "doc-1.pdf", "abc123", "task-1"))
	g.Release(context.Background(), "doc-1.pdf", "abc123", "task-1")

	err := g.Admit(context.Background(), "doc-1.pdf", "abc123", "task-2")
	assert.NoError(t, err, "释放占位后同内容可重新提交")
}

func TestGuard_CheckMidRun(t *testing.T) {
	g := newTestGuard(nil)

	// 任务 A 入队时不知道指纹，下载后补查
	require.NoError(t, g.Admit(context.Background(), "url-a", "", "task-a"))
	require.NoError(t, g.Admit(context.Background(), "url-b", "", "task-b"))

	require.NoError(t, g.CheckMidRun(context.Background(), "same-content", "task-a"))

	// 任务 B 下载完发现内容和 A 一样：判 duplicate
	err := g.CheckMidRun(context.Background(), "same-content", "task-b")
	var de *model.DuplicateError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "task-a", de.ExistingTaskID)
}

func TestMemoryClaims_TTLExpiry(t *testing.T) {
	c := NewMemoryClaims()

	ok, _, err := c.Claim(context.Background(), "k", "task-1", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	ok, _, err = c.Claim(context.Background(), "k", "task-2", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok, "过期占位可被重新认领")
}
