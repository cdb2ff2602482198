package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP 请求指标
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procq_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "procq_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 任务指标
	JobsSubmittedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "procq_jobs_submitted_total",
			Help: "Total number of jobs accepted into the queue",
		},
	)

	JobsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procq_jobs_rejected_total",
			Help: "Total number of submissions rejected before enqueue",
		},
		[]string{"reason"},
	)

	JobsFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procq_jobs_finished_total",
			Help: "Total number of jobs that reached a terminal state",
		},
		[]string{"status"},
	)

	JobRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "procq_job_retries_total",
			Help: "Total number of retry attempts scheduled",
		},
	)

	JobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "procq_job_duration_seconds",
			Help:    "Job processing duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
	)

	ProgressEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "procq_progress_events_total",
			Help: "Total number of progress events published",
		},
	)

	// 队列指标
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "procq_queue_depth",
			Help: "Number of jobs waiting in the pending queue",
		},
	)

	ProcessingCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "procq_processing_count",
			Help: "Number of jobs currently held by workers",
		},
	)

	// 错误指标
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procq_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "type"},
	)
)

// RecordHTTPRequest 记录 HTTP 请求
func RecordHTTPRequest(method, path string, status int, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordJobSubmitted 记录任务入队
func RecordJobSubmitted() {
	JobsSubmittedTotal.Inc()
}

// RecordJobRejected 记录提交被拒（validation / duplicate）
func RecordJobRejected(reason string) {
	JobsRejectedTotal.WithLabelValues(reason).Inc()
}

// RecordJobFinished 记录任务终态
func RecordJobFinished(status string, duration float64) {
	JobsFinishedTotal.WithLabelValues(status).Inc()
	if duration > 0 {
		JobDuration.Observe(duration)
	}
}

// RecordRetry 记录一次重试调度
func RecordRetry() {
	JobRetriesTotal.Inc()
}

// RecordProgressEvent 记录进度事件发布
func RecordProgressEvent() {
	ProgressEventsTotal.Inc()
}

// UpdateQueueGauges 更新队列深度与在处理数
func UpdateQueueGauges(depth, processing int64) {
	QueueDepth.Set(float64(depth))
	ProcessingCount.Set(float64(processing))
}

// RecordError 记录错误
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// statusClass 将 HTTP 状态码转为类别
func statusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
