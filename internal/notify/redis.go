package notify

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/azhengyongqin/procq/internal/logger"
	"github.com/azhengyongqin/procq/internal/model"
)

const channelPrefix = "procq:events:"

// RedisPublisher 把事件发到 per-job 的 pub/sub 频道，
// 供多进程部署下其他实例的 WebSocket 网关转发。
// Redis PUBLISH 在单频道内保序，满足 per-job 顺序要求。
type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev model.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Error().Err(err).Str("job_id", ev.JobID).Msg("序列化进度事件失败")
		return
	}

	if err := p.rdb.Publish(ctx, channelPrefix+ev.JobID, data).Err(); err != nil {
		// fire-and-forget：通知通道故障不影响处理流水线
		logger.Warn().Err(err).Str("job_id", ev.JobID).Msg("发布进度事件失败")
	}
}

// RelayAll 订阅全部 job 频道并把事件转投到本地 hub，返回停止函数。
// Redis 部署下事件只走 redis → relay → hub 一条路：
// 多实例各自回灌本地订阅者，且不会重复投递。
func (p *RedisPublisher) RelayAll(ctx context.Context, hub *Hub) func() {
	pubsub := p.rdb.PSubscribe(ctx, channelPrefix+"*")

	go func() {
		for msg := range pubsub.Channel() {
			var ev model.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logger.Warn().Err(err).Msg("解析进度事件失败")
				continue
			}
			hub.Publish(ctx, ev)
		}
	}()

	return func() { _ = pubsub.Close() }
}
