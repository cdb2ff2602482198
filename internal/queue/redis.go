package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/azhengyongqin/procq/internal/model"
)

// Redis 键布局：
// - procq:pending           有序集合，member=task_id，score=排序分
// - procq:processing        集合，worker 正在处理的 task_id
// - procq:task:<id>         任务记录（JSON），带 TTL
// - procq:stats:completed   累计完成数
// - procq:stats:failed      累计失败数
const (
	keyPending        = "procq:pending"
	keyProcessing     = "procq:processing"
	keyTaskPrefix     = "procq:task:"
	keyStatsCompleted = "procq:stats:completed"
	keyStatsFailed    = "procq:stats:failed"
)

// popScript 原子弹出：取最小分成员，移出 pending、移入 processing。
// 原子性保证同一任务绝不会发给两个 worker。
var popScript = redis.NewScript(`
local ids = redis.call('ZRANGE', KEYS[1], 0, 0)
if #ids == 0 then
  return false
end
local id = ids[1]
redis.call('ZREM', KEYS[1], id)
redis.call('SADD', KEYS[2], id)
return id
`)

// cancelScript 原子取消：任务被 worker 持有、或已不在 pending 里时拒绝，
// 否则移出 pending 并覆写为 cancelled 记录。
// 与 popScript 同级原子，worker 不可能拿到刚被取消的任务。
var cancelScript = redis.NewScript(`
if redis.call('SISMEMBER', KEYS[2], ARGV[1]) == 1 then
  return 0
end
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call('SET', KEYS[3], ARGV[2], 'PX', ARGV[3])
return 1
`)

// RedisStore 多进程共享的 Redis 后端。
type RedisStore struct {
	rdb   *redis.Client
	scale time.Duration
	ttl   time.Duration
}

// NewRedisStore 创建 Redis 后端并做连通性检查。
func NewRedisStore(addr, password string, db int, scale, ttl time.Duration) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStore{rdb: rdb, scale: scale, ttl: ttl}, nil
}

// Client 返回底层 Redis 客户端（占位存储、事件发布与健康检查复用同一连接池）。
func (s *RedisStore) Client() *redis.Client {
	return s.rdb
}

func taskKey(id string) string { return keyTaskPrefix + id }

// backendErr 把 Redis 故障统一归为 ErrQueueUnavailable。
func backendErr(err error) error {
	return fmt.Errorf("%w: %v", model.ErrQueueUnavailable, err)
}

func (s *RedisStore) Enqueue(ctx context.Context, t *model.Task) (int64, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return 0, fmt.Errorf("marshal task: %w", err)
	}

	score := Score(t.SubmittedAt, t.Priority, s.scale)
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, taskKey(t.ID), data, s.ttl)
	// NX：同一 id 重复入队不产生第二个条目
	pipe.ZAddNX(ctx, keyPending, redis.Z{Score: score, Member: t.ID})
	depth := pipe.ZCard(ctx, keyPending)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, backendErr(err)
	}
	return depth.Val(), nil
}

func (s *RedisStore) Dequeue(ctx context.Context, timeout time.Duration) (*model.Task, error) {
	deadline := time.Now().Add(timeout)

	for {
		id, err := popScript.Run(ctx, s.rdb, []string{keyPending, keyProcessing}).Text()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, backendErr(err)
		}

		if id != "" {
			t, err := s.loadTask(ctx, id)
			if err != nil {
				if errors.Is(err, model.ErrTaskNotFound) {
					// 记录已过期（或被取消后清掉）：吐掉残留条目继续
					s.rdb.SRem(ctx, keyProcessing, id)
					continue
				}
				return nil, err
			}
			if t.Status.Terminal() {
				// 取消发生在入队之后：跳过，不交给 worker
				s.rdb.SRem(ctx, keyProcessing, id)
				continue
			}
			return t, nil
		}

		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (s *RedisStore) Requeue(ctx context.Context, t *model.Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	score := Score(t.SubmittedAt, t.Priority, s.scale)
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, taskKey(t.ID), data, s.ttl)
	pipe.SRem(ctx, keyProcessing, t.ID)
	pipe.ZAdd(ctx, keyPending, redis.Z{Score: score, Member: t.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return backendErr(err)
	}
	return nil
}

func (s *RedisStore) UpdateStatus(ctx context.Context, id string, u Update) error {
	// 单任务只有持有它的 worker 会写，读-改-写即可，不需要 WATCH
	t, err := s.loadTask(ctx, id)
	if err != nil {
		return err
	}
	applyUpdate(t, u)

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, taskKey(id), data, s.ttl)
	if t.Status.Terminal() {
		pipe.SRem(ctx, keyProcessing, id)
		pipe.ZRem(ctx, keyPending, id)
		switch t.Status {
		case model.StatusCompleted:
			pipe.Incr(ctx, keyStatsCompleted)
		case model.StatusFailed:
			pipe.Incr(ctx, keyStatsFailed)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return backendErr(err)
	}
	return nil
}

func (s *RedisStore) GetStatus(ctx context.Context, id string) (*model.Task, error) {
	return s.loadTask(ctx, id)
}

func (s *RedisStore) Cancel(ctx context.Context, id string) error {
	t, err := s.loadTask(ctx, id)
	if err != nil {
		return err
	}
	if t.Status != model.StatusQueued && t.Status != model.StatusRetrying {
		return model.ErrNotCancellable
	}

	now := time.Now()
	t.Status = model.StatusCancelled
	t.CompletedAt = &now

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	// 持有检查、移出 pending、覆写记录在脚本里一步完成：
	// 这中间被 worker 弹出的任务会落到持有分支，拒绝取消
	ok, err := cancelScript.Run(ctx, s.rdb,
		[]string{keyPending, keyProcessing, taskKey(id)},
		id, data, s.ttl.Milliseconds()).Int()
	if err != nil {
		return backendErr(err)
	}
	if ok == 0 {
		return model.ErrNotCancellable
	}
	return nil
}

func (s *RedisStore) Pending(ctx context.Context, limit int) ([]*model.Task, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := s.rdb.ZRange(ctx, keyPending, 0, stop).Result()
	if err != nil {
		return nil, backendErr(err)
	}
	return s.loadTasks(ctx, ids)
}

func (s *RedisStore) Processing(ctx context.Context) ([]*model.Task, error) {
	ids, err := s.rdb.SMembers(ctx, keyProcessing).Result()
	if err != nil {
		return nil, backendErr(err)
	}
	return s.loadTasks(ctx, ids)
}

func (s *RedisStore) Stats(ctx context.Context) (Stats, error) {
	pipe := s.rdb.TxPipeline()
	depth := pipe.ZCard(ctx, keyPending)
	proc := pipe.SCard(ctx, keyProcessing)
	comp := pipe.Get(ctx, keyStatsCompleted)
	fail := pipe.Get(ctx, keyStatsFailed)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Stats{}, backendErr(err)
	}

	st := Stats{
		QueueDepth:      depth.Val(),
		ProcessingCount: proc.Val(),
	}
	st.CompletedCount, _ = comp.Int64()
	st.FailedCount, _ = fail.Int64()
	return st, nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) loadTask(ctx context.Context, id string) (*model.Task, error) {
	data, err := s.rdb.Get(ctx, taskKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrTaskNotFound
		}
		return nil, backendErr(err)
	}

	var t model.Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("unmarshal task %s: %w", id, err)
	}
	return &t, nil
}

func (s *RedisStore) loadTasks(ctx context.Context, ids []string) ([]*model.Task, error) {
	out := make([]*model.Task, 0, len(ids))
	for _, id := range ids {
		t, err := s.loadTask(ctx, id)
		if err != nil {
			if errors.Is(err, model.ErrTaskNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
