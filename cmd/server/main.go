package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	_ "github.com/azhengyongqin/procq/docs" // Swagger docs
	"github.com/azhengyongqin/procq/internal/config"
	"github.com/azhengyongqin/procq/internal/dedup"
	"github.com/azhengyongqin/procq/internal/healthcheck"
	"github.com/azhengyongqin/procq/internal/logger"
	"github.com/azhengyongqin/procq/internal/notify"
	"github.com/azhengyongqin/procq/internal/queue"
	httpserver "github.com/azhengyongqin/procq/internal/server"
	"github.com/azhengyongqin/procq/internal/stats"
	"github.com/azhengyongqin/procq/internal/storage/postgres"
	"github.com/azhengyongqin/procq/internal/store"
	"github.com/azhengyongqin/procq/internal/transform"
	"github.com/azhengyongqin/procq/internal/worker"
)

// @title ProcQ API
// @version 1.0.0
// @description 异步内容处理队列 - 带优先级、去重与实时进度推送
// @license.name MIT
// @BasePath /api/v1
// @schemes http https
// @host localhost:28080

func main() {
	// 初始化结构化日志（开发模式）
	if err := logger.Init(false); err != nil {
		logger.L.Fatal().Err(err).Msg("初始化日志失败")
		os.Exit(1)
	}
	defer logger.Sync()

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		logger.L.Fatal().Err(err).Msg("加载配置失败")
	}

	// 验证配置
	if err := cfg.Validate(); err != nil {
		logger.L.Fatal().Err(err).Msg("配置验证失败")
	}

	logger.L.Info().
		Str("http", cfg.HTTP.Addr).
		Str("backend", cfg.Queue.Backend).
		Int("workers", cfg.Queue.Workers).
		Msg("服务启动")

	// payload 临时目录
	payloads, err := store.NewPayloadDir(cfg.Payload.Dir)
	if err != nil {
		logger.L.Fatal().Err(err).Msg("创建 payload 目录失败")
	}

	// 进程内事件扇出
	hub := notify.NewHub()

	// 队列后端按配置显式选择，绝不靠连接失败隐式回退
	var (
		qs        queue.Store
		claims    dedup.ClaimStore
		notifier  notify.Notifier
		rdb       *redis.Client
		publisher *notify.RedisPublisher
	)
	switch cfg.Queue.Backend {
	case config.BackendRedis:
		rs, err := queue.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			cfg.Queue.PriorityScale, cfg.Queue.TaskTTL)
		if err != nil {
			logger.L.Fatal().Err(err).Msg("连接 Redis 失败")
		}
		rdb = rs.Client()
		qs = rs
		claims = dedup.NewRedisClaims(rdb)
		// 事件只发 Redis，本地 hub 由 relay 回灌。
		// 多实例部署下各实例的订阅者都能收到全量事件，且不会重复投递
		publisher = notify.NewRedisPublisher(rdb)
		notifier = notify.Multi{publisher}
	case config.BackendMemory:
		qs = queue.NewMemoryStore(cfg.Queue.PriorityScale, cfg.Queue.TaskTTL)
		claims = dedup.NewMemoryClaims()
		notifier = notify.Multi{hub}
	}
	defer qs.Close()

	// 内容存储：配置了 Postgres 用 pgx，否则退化为进程内实现
	var (
		results store.ContentStore
		pgPool  *pgxpool.Pool
	)
	if cfg.Postgres.DSN != "" {
		pgPool, err = postgres.NewPool(context.Background(), cfg.Postgres.DSN)
		if err != nil {
			logger.L.Fatal().Err(err).Msg("连接数据库失败")
		}
		if err := postgres.ApplyMigrationsFromDir(context.Background(), pgPool, "migrations"); err != nil {
			logger.L.Warn().Err(err).Msg("执行迁移失败（目录缺失时可忽略）")
		}
		results = store.NewPostgresStore(pgPool)
	} else {
		logger.L.Warn().Msg("未配置 POSTGRES_DSN，产出索引退化为进程内存储")
		results = store.NewMemoryStore()
	}
	defer results.Close()

	guard := dedup.NewGuard(claims, results, cfg.Queue.TaskTTL)
	manager := queue.NewManager(qs, guard, notifier)
	collector := stats.NewCollector()

	// 内置转换：原样透传。真实部署在这里注入 OCR/向量化等实现
	passthrough := transform.Func{
		TransformName: "passthrough",
		RunFunc: func(ctx context.Context, payloadRef string, sink transform.Sink) (string, error) {
			f, err := os.Open(payloadRef)
			if err != nil {
				return "", err
			}
			defer f.Close()
			n, err := io.Copy(io.Discard, f)
			if err != nil {
				return "", err
			}
			sink.Report(transform.Progress{Percent: 100, Units: 1})
			return fmt.Sprintf("inline:%d-bytes", n), nil
		},
	}

	pool := worker.NewPool(qs, guard, notifier, passthrough, results, payloads, collector, worker.Options{
		Workers: cfg.Queue.Workers,
		Retry: worker.RetryPolicy{
			MaxAttempts: cfg.Queue.MaxAttempts,
			BaseDelay:   cfg.Queue.BaseDelay,
			MaxDelay:    cfg.Queue.MaxDelay,
		},
		DequeueTimeout: cfg.Queue.DequeueTimeout,
		TaskTimeout:    cfg.Queue.TaskTimeout,
	})

	// 创建健康检查器
	healthChecker := healthcheck.NewHealthChecker(pgPool, rdb)

	httpSrv := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: httpserver.NewRouter(httpserver.Deps{
			Manager:       manager,
			Payloads:      payloads,
			Hub:           hub,
			Collector:     collector,
			HealthChecker: healthChecker,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// 独立的抓取端口：只挂 /metrics，不过业务中间件
	var metricsSrv *http.Server
	if cfg.Monitoring.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Monitoring.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.L.Info().Int("port", cfg.Monitoring.Port).Msg("监控端口监听")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.L.Error().Err(err).Msg("监控端口错误")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if publisher != nil {
		stopRelay := publisher.RelayAll(ctx, hub)
		defer stopRelay()
	}

	pool.Start(ctx)

	go func() {
		logger.L.Info().Str("addr", cfg.HTTP.Addr).Msg("HTTP 服务监听")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.L.Fatal().Err(err).Msg("HTTP 服务错误")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpSrv.Shutdown(shutdownCtx)
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	pool.Wait()
	logger.L.Info().Msg("服务已优雅关闭")
}
