package stats

import (
	"sync"
	"time"

	"github.com/azhengyongqin/procq/internal/metrics"
)

// Snapshot 只读统计快照。
type Snapshot struct {
	TotalProcessed int64         `json:"total_processed"`
	TotalFailed    int64         `json:"total_failed"`
	TotalUnits     int64         `json:"total_units_processed"`
	AvgDuration    time.Duration `json:"avg_duration_ms"`
}

// Collector 运行期计数器。
// 平均耗时用增量公式 avg' = avg + (d-avg)/n，不保留历史。
type Collector struct {
	mu             sync.Mutex
	totalProcessed int64
	totalFailed    int64
	totalUnits     int64
	avgDuration    float64 // 纳秒
	n              int64
}

func NewCollector() *Collector {
	return &Collector{}
}

// ObserveCompleted 记录一次成功处理。units 是本次处理的分块/条目数。
func (c *Collector) ObserveCompleted(duration time.Duration, units int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalProcessed++
	c.totalUnits += int64(units)
	c.n++
	c.avgDuration += (float64(duration) - c.avgDuration) / float64(c.n)
}

// ObserveFailed 记录一次永久失败。
func (c *Collector) ObserveFailed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalFailed++
}

// Stats 返回只读快照。
func (c *Collector) Stats() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		TotalProcessed: c.totalProcessed,
		TotalFailed:    c.totalFailed,
		TotalUnits:     c.totalUnits,
		AvgDuration:    time.Duration(c.avgDuration),
	}
}

// Bridge 把终态同时写入本地计数器与 Prometheus。
// worker 只调这一个入口，避免两套指标漂移。
func (c *Collector) Bridge(status string, duration time.Duration, units int) {
	switch status {
	case "completed":
		c.ObserveCompleted(duration, units)
	case "failed":
		c.ObserveFailed()
	}
	metrics.RecordJobFinished(status, duration.Seconds())
}
