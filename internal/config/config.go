package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// 队列后端类型。按配置显式选择，绝不靠连接失败隐式回退。
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config 应用配置
type Config struct {
	HTTP       HTTPConfig
	Redis      RedisConfig
	Postgres   PostgresConfig
	Queue      QueueConfig
	Payload    PayloadConfig
	Monitoring MonitoringConfig
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Addr string
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// PostgresConfig PostgreSQL 配置（内容存储，可选）
type PostgresConfig struct {
	DSN string
}

// QueueConfig 队列与 worker 池配置
type QueueConfig struct {
	Backend        string        // redis | memory
	Workers        int           // 并发 worker 数 W
	MaxAttempts    int           // 重试预算
	BaseDelay      time.Duration // 退避基数，delay = base * 2^retry_count
	MaxDelay       time.Duration // 退避上限
	PriorityScale  time.Duration // 排序分 K：score = submit_ms - priority*K
	DequeueTimeout time.Duration // 单次阻塞出队超时
	TaskTimeout    time.Duration // 单任务处理墙钟上限（看门狗）
	TaskTTL        time.Duration // 终态记录保留时长
}

// PayloadConfig 临时 payload 文件配置
type PayloadConfig struct {
	Dir string
}

// MonitoringConfig 监控配置。
// Enabled 时在独立端口起一个只挂 /metrics 的 listener，
// 让抓取端口不经过业务路由（主路由上的 /metrics 始终可用）。
type MonitoringConfig struct {
	Enabled bool
	Port    int
}

// Load 加载配置
func Load() (*Config, error) {
	v := viper.New()

	// 设置配置文件名和路径
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("..")
	v.AddConfigPath("../..")

	// 允许从环境变量读取（优先级最高）
	v.AutomaticEnv()

	// 读取配置文件（如果存在）
	_ = v.ReadInConfig() // 忽略错误，因为可能只使用环境变量

	cfg := &Config{}

	// HTTP 配置
	cfg.HTTP.Addr = v.GetString("HTTP_ADDR")
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":28080"
	}

	// Redis 配置
	cfg.Redis.Addr = v.GetString("REDIS_ADDR")
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")

	// PostgreSQL 配置（为空则内容存储退化为本地/内存实现）
	cfg.Postgres.DSN = v.GetString("POSTGRES_DSN")

	// 队列配置
	cfg.Queue.Backend = v.GetString("QUEUE_BACKEND")
	if cfg.Queue.Backend == "" {
		cfg.Queue.Backend = BackendRedis
	}

	cfg.Queue.Workers = v.GetInt("QUEUE_WORKERS")
	if cfg.Queue.Workers <= 0 {
		cfg.Queue.Workers = 4
	}

	cfg.Queue.MaxAttempts = v.GetInt("QUEUE_MAX_ATTEMPTS")
	if cfg.Queue.MaxAttempts <= 0 {
		cfg.Queue.MaxAttempts = 3
	}

	cfg.Queue.BaseDelay = v.GetDuration("QUEUE_BASE_DELAY")
	if cfg.Queue.BaseDelay == 0 {
		cfg.Queue.BaseDelay = 1 * time.Second
	}

	cfg.Queue.MaxDelay = v.GetDuration("QUEUE_MAX_DELAY")
	if cfg.Queue.MaxDelay == 0 {
		cfg.Queue.MaxDelay = 5 * time.Minute
	}

	cfg.Queue.PriorityScale = v.GetDuration("QUEUE_PRIORITY_SCALE")
	if cfg.Queue.PriorityScale == 0 {
		cfg.Queue.PriorityScale = 1 * time.Hour
	}

	cfg.Queue.DequeueTimeout = v.GetDuration("QUEUE_DEQUEUE_TIMEOUT")
	if cfg.Queue.DequeueTimeout == 0 {
		cfg.Queue.DequeueTimeout = 1 * time.Second
	}

	cfg.Queue.TaskTimeout = v.GetDuration("QUEUE_TASK_TIMEOUT")
	if cfg.Queue.TaskTimeout == 0 {
		cfg.Queue.TaskTimeout = 10 * time.Minute
	}

	cfg.Queue.TaskTTL = v.GetDuration("QUEUE_TASK_TTL")
	if cfg.Queue.TaskTTL == 0 {
		cfg.Queue.TaskTTL = 1 * time.Hour
	}

	// payload 临时目录
	cfg.Payload.Dir = v.GetString("PAYLOAD_DIR")
	if cfg.Payload.Dir == "" {
		cfg.Payload.Dir = "/tmp/procq-payloads"
	}

	// 监控配置
	cfg.Monitoring.Enabled = v.GetBool("MONITORING_ENABLED")
	cfg.Monitoring.Port = v.GetInt("MONITORING_PORT")
	if cfg.Monitoring.Port == 0 {
		cfg.Monitoring.Port = 29091
	}

	return cfg, nil
}

// Validate 验证配置
func (c *Config) Validate() error {
	switch c.Queue.Backend {
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is required when QUEUE_BACKEND=redis")
		}
	case BackendMemory:
		// 单进程部署，不需要外部依赖
	default:
		return fmt.Errorf("QUEUE_BACKEND must be %q or %q, got %q", BackendRedis, BackendMemory, c.Queue.Backend)
	}
	if c.Queue.Workers <= 0 {
		return fmt.Errorf("QUEUE_WORKERS must be positive")
	}
	if c.Queue.MaxAttempts <= 0 {
		return fmt.Errorf("QUEUE_MAX_ATTEMPTS must be positive")
	}
	return nil
}
