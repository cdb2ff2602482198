// Package worker 实现消费队列的 worker 池：
// 固定 W 个 goroutine 循环出队，跑转换、汇报进度、按策略重试，
// 最终把任务推进到唯一终态。
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/azhengyongqin/procq/internal/dedup"
	"github.com/azhengyongqin/procq/internal/logger"
	"github.com/azhengyongqin/procq/internal/metrics"
	"github.com/azhengyongqin/procq/internal/model"
	"github.com/azhengyongqin/procq/internal/notify"
	"github.com/azhengyongqin/procq/internal/queue"
	"github.com/azhengyongqin/procq/internal/stats"
	"github.com/azhengyongqin/procq/internal/store"
	"github.com/azhengyongqin/procq/internal/transform"
)

// 进度节流阈值：增量不足 5 个点且间隔不足 500ms 的汇报被合并。
// 0 与 100 总是放行。
const (
	progressMinStep     = 5
	progressMinInterval = 500 * time.Millisecond
)

// unavailableBackoff 队列后端不可达时的重试间隔。
const unavailableBackoff = 2 * time.Second

// Options 池配置。
type Options struct {
	Workers        int
	Retry          RetryPolicy
	DequeueTimeout time.Duration
	TaskTimeout    time.Duration
}

// Pool 固定大小的 worker 池。
// 转换失败绝不让 worker 退出：单个任务的 panic 被捕获并按失败处理。
type Pool struct {
	store     queue.Store
	guard     *dedup.Guard
	notifier  notify.Notifier
	transform transform.Transformation
	results   store.ContentStore
	payloads  *store.PayloadDir
	collector *stats.Collector
	opts      Options

	wg sync.WaitGroup
}

func NewPool(
	qs queue.Store,
	guard *dedup.Guard,
	notifier notify.Notifier,
	tr transform.Transformation,
	results store.ContentStore,
	payloads *store.PayloadDir,
	collector *stats.Collector,
	opts Options,
) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.DequeueTimeout <= 0 {
		opts.DequeueTimeout = time.Second
	}
	if notifier == nil {
		notifier = notify.Discard{}
	}
	return &Pool{
		store:     qs,
		guard:     guard,
		notifier:  notifier,
		transform: tr,
		results:   results,
		payloads:  payloads,
		collector: collector,
		opts:      opts,
	}
}

// Start 启动 W 个 worker。ctx 取消后各 worker 处理完手头任务即退出。
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	logger.Info().Int("workers", p.opts.Workers).Str("transformation", p.transform.Name()).Msg("worker 池已启动")
}

// Wait 阻塞到所有 worker 退出。
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	log := logger.WithWorker(id)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("worker 退出")
			return
		default:
		}

		task, err := p.store.Dequeue(ctx, p.opts.DequeueTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, model.ErrQueueUnavailable) {
				// 后端抖动：暂停后重试出队本身，不把任何任务记失败
				metrics.RecordError("worker", "queue_unavailable")
				log.Warn().Err(err).Msg("队列后端不可达，暂停后重试")
				select {
				case <-ctx.Done():
				case <-time.After(unavailableBackoff):
				}
				continue
			}
			metrics.RecordError("worker", "dequeue")
			log.Error().Err(err).Msg("出队失败")
			continue
		}
		if task == nil {
			continue
		}

		p.processOne(ctx, log, task)
	}
}

// processOne 推进单个任务直到终态或重新入队。
func (p *Pool) processOne(ctx context.Context, log zerolog.Logger, task *model.Task) {
	log = log.With().Str("job_id", task.ID).Int("attempt", task.RetryCount+1).Logger()
	start := time.Now()

	// 标记 processing。started_at 只在首次尝试落下
	now := time.Now().UTC()
	st := model.StatusProcessing
	zero := 0
	if err := p.store.UpdateStatus(ctx, task.ID, queue.Update{
		Status:    &st,
		Progress:  &zero,
		StartedAt: &now,
	}); err != nil {
		log.Error().Err(err).Msg("标记 processing 失败")
	}
	task.Status = model.StatusProcessing
	task.Progress = 0
	if task.StartedAt == nil {
		task.StartedAt = &now
	}

	p.publish(ctx, model.Event{
		Type:      model.EventProcessing,
		JobID:     task.ID,
		Status:    model.StatusProcessing,
		Progress:  0,
		Timestamp: now,
	})

	// 指纹入队时未知的，拿到内容后补算并补查重复
	if task.ContentFingerprint == "" && p.payloads != nil {
		fp, err := p.payloads.Fingerprint(task.PayloadRef)
		if err != nil {
			cause := fmt.Errorf("fingerprint payload: %w", err)
			p.finish(ctx, log, task, start, p.opts.Retry.Decide(task.RetryCount, cause), cause)
			return
		}
		task.ContentFingerprint = fp
		if err := p.guard.CheckMidRun(ctx, fp, task.ID); err != nil {
			p.finish(ctx, log, task, start, DecisionDuplicate, err)
			return
		}
	}

	resultRef, err := p.runTransform(ctx, task)
	if err != nil {
		p.finish(ctx, log, task, start, p.opts.Retry.Decide(task.RetryCount, err), err)
		return
	}

	p.complete(ctx, log, task, start, resultRef)
}

// runTransform 在看门狗超时下执行转换，panic 按失败处理。
func (p *Pool) runTransform(ctx context.Context, task *model.Task) (resultRef string, err error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if p.opts.TaskTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, p.opts.TaskTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			metrics.RecordError("worker", "panic")
			err = model.Permanent(fmt.Errorf("transformation panic: %v", r))
		}
	}()

	sink := p.newProgressSink(ctx, task)
	resultRef, err = p.transform.Run(runCtx, task.PayloadRef, sink)
	if err != nil {
		if runCtx.Err() != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return "", context.DeadlineExceeded
		}
		return "", err
	}
	return resultRef, nil
}

// newProgressSink 节流后的进度下沉：
// 持久化到队列存储、发事件、累计处理单元数。
// Percent 单调不减由这里强制：回退的汇报直接丢弃。
func (p *Pool) newProgressSink(ctx context.Context, task *model.Task) transform.Sink {
	log := logger.WithJobID(task.ID)

	var mu sync.Mutex
	lastPercent := -1
	var lastAt time.Time
	var units int

	return transform.SinkFunc(func(pr transform.Progress) {
		mu.Lock()
		defer mu.Unlock()

		units += pr.Units
		task.Metadata = setUnits(task.Metadata, units)

		if pr.Percent < lastPercent {
			return
		}
		boundary := pr.Percent == 0 || pr.Percent >= 100
		if !boundary && lastPercent >= 0 &&
			pr.Percent-lastPercent < progressMinStep &&
			time.Since(lastAt) < progressMinInterval {
			return
		}
		lastPercent = pr.Percent
		lastAt = time.Now()

		pct := pr.Percent
		if err := p.store.UpdateStatus(ctx, task.ID, queue.Update{Progress: &pct}); err != nil {
			log.Warn().Err(err).Msg("持久化进度失败")
		}
		task.Progress = pct

		p.publish(ctx, model.Event{
			Type:      model.EventProcessing,
			JobID:     task.ID,
			Status:    model.StatusProcessing,
			Progress:  pct,
			Message:   pr.Message,
			Timestamp: time.Now().UTC(),
		})
	})
}

// complete 成功路径：落产出、发事件、清理 payload。
func (p *Pool) complete(ctx context.Context, log zerolog.Logger, task *model.Task, start time.Time, resultRef string) {
	now := time.Now().UTC()
	st := model.StatusCompleted
	full := 100
	if err := p.store.UpdateStatus(ctx, task.ID, queue.Update{
		Status:      &st,
		Progress:    &full,
		ClearError:  true,
		CompletedAt: &now,
		ResultRef:   &resultRef,
	}); err != nil {
		log.Error().Err(err).Msg("写入 completed 终态失败")
	}

	if p.results != nil && task.ContentFingerprint != "" {
		if err := p.results.SaveResult(ctx, store.Result{
			Fingerprint: task.ContentFingerprint,
			TaskID:      task.ID,
			ResultRef:   resultRef,
			CreatedAt:   now,
		}); err != nil {
			metrics.RecordError("worker", "save_result")
			log.Error().Err(err).Msg("产出落库失败")
		}
	}

	p.cleanupPayload(log, task)

	duration := time.Since(start)
	p.collector.Bridge(string(model.StatusCompleted), duration, unitsOf(task.Metadata))
	p.publish(ctx, model.Event{
		Type:      model.EventCompleted,
		JobID:     task.ID,
		Status:    model.StatusCompleted,
		Progress:  100,
		ResultRef: resultRef,
		Timestamp: now,
	})
	log.Info().Dur("duration", duration).Str("result_ref", resultRef).Msg("任务完成")
}

// finish 失败路径的汇合点：重试 / 永久失败 / 重复。
func (p *Pool) finish(ctx context.Context, log zerolog.Logger, task *model.Task, start time.Time, d Decision, cause error) {
	switch d {
	case DecisionRetry:
		p.retry(ctx, log, task, cause)
	case DecisionDuplicate:
		p.duplicate(ctx, log, task, cause)
	default:
		p.fail(ctx, log, task, start, cause)
	}
}

// retry 退避后重新入队。retry_count 自增，进度清零（重新入队后从 0 重跑）。
func (p *Pool) retry(ctx context.Context, log zerolog.Logger, task *model.Task, cause error) {
	task.RetryCount++
	task.Status = model.StatusRetrying
	task.Progress = 0
	task.Error = &model.TaskError{Kind: kindOf(cause), Message: cause.Error()}

	st := model.StatusRetrying
	zero := 0
	rc := task.RetryCount
	if err := p.store.UpdateStatus(ctx, task.ID, queue.Update{
		Status:     &st,
		Progress:   &zero,
		RetryCount: &rc,
		Error:      task.Error,
	}); err != nil {
		log.Error().Err(err).Msg("写入 retrying 状态失败")
	}

	metrics.RecordRetry()
	p.publish(ctx, model.Event{
		Type:      model.EventRetrying,
		JobID:     task.ID,
		Status:    model.StatusRetrying,
		Progress:  0,
		Message:   fmt.Sprintf("retry attempt %d of %d", task.RetryCount, p.opts.Retry.MaxAttempts),
		Error:     task.Error,
		Timestamp: time.Now().UTC(),
	})

	delay := p.opts.Retry.Backoff(task.RetryCount - 1)
	log.Warn().Err(cause).Dur("backoff", delay).Int("retry_count", task.RetryCount).Msg("任务失败，退避后重试")

	select {
	case <-ctx.Done():
		// 进程在退：仍然把任务放回队列，重启后继续
	case <-time.After(delay):
	}

	if err := p.store.Requeue(context.WithoutCancel(ctx), task); err != nil {
		log.Error().Err(err).Msg("重试回队失败")
	}
}

// duplicate 处理中发现内容重复：duplicate 终态，不算失败。
func (p *Pool) duplicate(ctx context.Context, log zerolog.Logger, task *model.Task, cause error) {
	now := time.Now().UTC()
	st := model.StatusDuplicate
	var resultRef string
	var de *model.DuplicateError
	if errors.As(cause, &de) {
		resultRef = de.ResultRef
	}

	if err := p.store.UpdateStatus(ctx, task.ID, queue.Update{
		Status:      &st,
		CompletedAt: &now,
		ResultRef:   &resultRef,
	}); err != nil {
		log.Error().Err(err).Msg("写入 duplicate 终态失败")
	}

	p.cleanupPayload(log, task)
	p.collector.Bridge(string(model.StatusDuplicate), 0, 0)
	p.publish(ctx, model.Event{
		Type:      model.EventDuplicate,
		JobID:     task.ID,
		Status:    model.StatusDuplicate,
		Progress:  task.Progress,
		Message:   cause.Error(),
		ResultRef: resultRef,
		Timestamp: now,
	})
	log.Info().Str("result_ref", resultRef).Msg("处理中发现内容重复")
}

// fail 永久失败：释放去重占位让同内容可重新提交，清理 payload。
func (p *Pool) fail(ctx context.Context, log zerolog.Logger, task *model.Task, start time.Time, cause error) {
	now := time.Now().UTC()
	st := model.StatusFailed
	taskErr := &model.TaskError{Kind: kindOf(cause), Message: cause.Error()}

	if err := p.store.UpdateStatus(ctx, task.ID, queue.Update{
		Status:      &st,
		Error:       taskErr,
		CompletedAt: &now,
	}); err != nil {
		log.Error().Err(err).Msg("写入 failed 终态失败")
	}

	p.guard.Release(ctx, task.PayloadRef, task.ContentFingerprint, task.ID)
	p.cleanupPayload(log, task)

	p.collector.Bridge(string(model.StatusFailed), time.Since(start), 0)
	p.publish(ctx, model.Event{
		Type:      model.EventFailed,
		JobID:     task.ID,
		Status:    model.StatusFailed,
		Progress:  task.Progress,
		Error:     taskErr,
		Timestamp: now,
	})
	log.Error().Err(cause).Int("retry_count", task.RetryCount).Msg("任务永久失败")
}

func (p *Pool) cleanupPayload(log zerolog.Logger, task *model.Task) {
	if p.payloads == nil {
		return
	}
	if err := p.payloads.Remove(task.PayloadRef); err != nil {
		log.Warn().Err(err).Str("payload_ref", task.PayloadRef).Msg("清理 payload 文件失败")
	}
}

func (p *Pool) publish(ctx context.Context, ev model.Event) {
	p.notifier.Publish(context.WithoutCancel(ctx), ev)
}

// kindOf 把错误映射到 TaskError.Kind。
func kindOf(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return model.ErrKindTimeout
	}
	return model.ErrorKind(err)
}

// setUnits/unitsOf 把累计处理单元数寄存在任务元数据里，完成时入账。
const unitsKey = "units_processed"

func setUnits(md map[string]string, units int) map[string]string {
	if md == nil {
		md = make(map[string]string, 1)
	}
	md[unitsKey] = fmt.Sprintf("%d", units)
	return md
}

func unitsOf(md map[string]string) int {
	var n int
	_, _ = fmt.Sscanf(md[unitsKey], "%d", &n)
	return n
}
