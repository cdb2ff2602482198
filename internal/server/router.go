package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/azhengyongqin/procq/internal/healthcheck"
	"github.com/azhengyongqin/procq/internal/middleware"
	"github.com/azhengyongqin/procq/internal/notify"
	"github.com/azhengyongqin/procq/internal/queue"
	"github.com/azhengyongqin/procq/internal/server/handler"
	"github.com/azhengyongqin/procq/internal/stats"
	"github.com/azhengyongqin/procq/internal/store"
)

// Deps 路由依赖
type Deps struct {
	Manager  *queue.Manager
	Payloads *store.PayloadDir

	// Hub 进程内事件扇出（WebSocket 网关挂在这上面）
	Hub *notify.Hub

	// Collector 运行期统计（/queue 响应里的 runtime 段）
	Collector *stats.Collector

	// HealthChecker 健康检查器
	HealthChecker *healthcheck.HealthChecker
}

// NewRouter 提供 Gin HTTP API
// @title ProcQ API
// @version 1.0.0
// @description 异步内容处理队列 API
// @BasePath /api/v1
// @schemes http https
func NewRouter(deps Deps) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	// 全局中间件
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggingMiddleware())
	r.Use(middleware.PrometheusMiddleware())
	r.Use(middleware.PayloadSizeLimit(middleware.MaxPayloadSize))
	r.Use(middleware.CORSMiddleware())

	// 创建各个 handler 实例
	healthHandler := handler.NewHealthHandler(deps.HealthChecker)
	jobHandler := handler.NewJobHandler(deps.Manager, deps.Payloads)
	queueHandler := handler.NewQueueHandler(deps.Manager, deps.Collector)
	streamHandler := handler.NewStreamHandler(deps.Hub)

	// 健康检查路由
	r.GET("/healthz", healthHandler.Liveness)
	r.GET("/readyz", healthHandler.Readiness)

	// Prometheus metrics 端点
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Swagger API 文档
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// API 路由
	api := r.Group("/api/v1")
	{
		api.POST("/jobs", jobHandler.SubmitJob)
		api.GET("/jobs/:job_id", middleware.ValidateJobIDParam(), jobHandler.GetJob)
		api.DELETE("/jobs/:job_id", middleware.ValidateJobIDParam(), jobHandler.CancelJob)

		api.GET("/queue", queueHandler.GetQueue)

		api.GET("/ws", streamHandler.Stream)
	}

	return r
}
