package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// 设置测试环境变量
	os.Setenv("QUEUE_BACKEND", "memory")
	os.Setenv("HTTP_ADDR", ":8080")
	os.Setenv("QUEUE_WORKERS", "8")
	defer func() {
		os.Unsetenv("QUEUE_BACKEND")
		os.Unsetenv("HTTP_ADDR")
		os.Unsetenv("QUEUE_WORKERS")
	}()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, BackendMemory, cfg.Queue.Backend)
	assert.Equal(t, 8, cfg.Queue.Workers)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	// 验证默认值
	assert.Equal(t, ":28080", cfg.HTTP.Addr)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, BackendRedis, cfg.Queue.Backend)
	assert.Equal(t, 4, cfg.Queue.Workers)
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Equal(t, 1*time.Second, cfg.Queue.BaseDelay)
	assert.Equal(t, 1*time.Hour, cfg.Queue.PriorityScale)
	assert.Equal(t, 1*time.Second, cfg.Queue.DequeueTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Queue.TaskTimeout)
	assert.Equal(t, 1*time.Hour, cfg.Queue.TaskTTL)
	assert.False(t, cfg.Monitoring.Enabled)
	assert.Equal(t, 29091, cfg.Monitoring.Port)
}

func TestMonitoringConfig(t *testing.T) {
	os.Setenv("MONITORING_ENABLED", "true")
	os.Setenv("MONITORING_PORT", "9100")
	defer func() {
		os.Unsetenv("MONITORING_ENABLED")
		os.Unsetenv("MONITORING_PORT")
	}()

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Monitoring.Enabled)
	assert.Equal(t, 9100, cfg.Monitoring.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		cfg       *Config
		wantError bool
	}{
		{
			name: "valid redis config",
			cfg: &Config{
				Redis: RedisConfig{Addr: "localhost:6379"},
				Queue: QueueConfig{Backend: BackendRedis, Workers: 4, MaxAttempts: 3},
			},
			wantError: false,
		},
		{
			name: "valid memory config",
			cfg: &Config{
				Queue: QueueConfig{Backend: BackendMemory, Workers: 1, MaxAttempts: 1},
			},
			wantError: false,
		},
		{
			name: "redis backend without addr",
			cfg: &Config{
				Queue: QueueConfig{Backend: BackendRedis, Workers: 4, MaxAttempts: 3},
			},
			wantError: true,
		},
		{
			name: "unknown backend",
			cfg: &Config{
				Queue: QueueConfig{Backend: "etcd", Workers: 4, MaxAttempts: 3},
			},
			wantError: true,
		},
		{
			name: "zero workers",
			cfg: &Config{
				Queue: QueueConfig{Backend: BackendMemory, Workers: 0, MaxAttempts: 3},
			},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestQueueTuning(t *testing.T) {
	os.Setenv("QUEUE_MAX_ATTEMPTS", "5")
	os.Setenv("QUEUE_BASE_DELAY", "200ms")
	os.Setenv("QUEUE_PRIORITY_SCALE", "30m")
	defer func() {
		os.Unsetenv("QUEUE_MAX_ATTEMPTS")
		os.Unsetenv("QUEUE_BASE_DELAY")
		os.Unsetenv("QUEUE_PRIORITY_SCALE")
	}()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Queue.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.Queue.BaseDelay)
	assert.Equal(t, 30*time.Minute, cfg.Queue.PriorityScale)
}
