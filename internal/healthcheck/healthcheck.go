package healthcheck

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// HealthChecker 健康检查器。
// 依赖按部署可选：内存后端没有 Redis，内容存储退化时没有 Postgres。
type HealthChecker struct {
	pgPool *pgxpool.Pool
	rdb    *redis.Client
}

// NewHealthChecker 创建健康检查器（nil 依赖会被跳过）
func NewHealthChecker(pgPool *pgxpool.Pool, rdb *redis.Client) *HealthChecker {
	return &HealthChecker{
		pgPool: pgPool,
		rdb:    rdb,
	}
}

// CheckResult 健康检查结果
type CheckResult struct {
	Status  string            `json:"status"` // "ok" or "error"
	Checks  map[string]string `json:"checks"`
	Version string            `json:"version,omitempty"`
}

// LivenessCheck 存活检查（快速返回，不检查依赖）
func (h *HealthChecker) LivenessCheck() CheckResult {
	return CheckResult{
		Status: "ok",
		Checks: map[string]string{
			"service": "running",
		},
	}
}

// ReadinessCheck 就绪检查（检查所有已配置的依赖）
func (h *HealthChecker) ReadinessCheck(ctx context.Context) CheckResult {
	result := CheckResult{
		Checks: make(map[string]string),
	}

	if h.rdb != nil {
		if err := h.checkRedis(ctx); err != nil {
			result.Checks["redis"] = "error: " + err.Error()
			result.Status = "error"
		} else {
			result.Checks["redis"] = "ok"
		}
	}

	if h.pgPool != nil {
		if err := h.checkPostgres(ctx); err != nil {
			result.Checks["postgres"] = "error: " + err.Error()
			result.Status = "error"
		} else {
			result.Checks["postgres"] = "ok"
		}
	}

	if result.Status == "" {
		result.Status = "ok"
	}

	return result
}

func (h *HealthChecker) checkPostgres(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return h.pgPool.Ping(ctx)
}

func (h *HealthChecker) checkRedis(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return h.rdb.Ping(ctx).Err()
}
