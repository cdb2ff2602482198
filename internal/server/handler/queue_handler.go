package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/azhengyongqin/procq/internal/model"
	"github.com/azhengyongqin/procq/internal/queue"
	"github.com/azhengyongqin/procq/internal/server/dto"
	"github.com/azhengyongqin/procq/internal/stats"
)

// 默认每次最多返回的等待中任务数
const defaultPendingLimit = 100

// QueueHandler 队列自省 API Handler
type QueueHandler struct {
	manager   *queue.Manager
	collector *stats.Collector
}

// NewQueueHandler 创建 QueueHandler
func NewQueueHandler(manager *queue.Manager, collector *stats.Collector) *QueueHandler {
	return &QueueHandler{
		manager:   manager,
		collector: collector,
	}
}

// GetQueue godoc
// @Summary 查询队列快照
// @Description 返回等待中/处理中的任务、队列计数与运行期统计
// @Tags Queue
// @Produce json
// @Param limit query int false "等待中任务的最大返回数" default(100)
// @Success 200 {object} dto.QueueSnapshotResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /queue [get]
func (h *QueueHandler) GetQueue(c *gin.Context) {
	limit := defaultPendingLimit
	if l := c.Query("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			limit = v
		}
	}

	snap, err := h.manager.Snapshot(c.Request.Context(), limit)
	if err != nil {
		if errors.Is(err, model.ErrQueueUnavailable) {
			c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: "队列后端暂时不可用"})
			return
		}
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}

	var runtime stats.Snapshot
	if h.collector != nil {
		runtime = h.collector.Stats()
	}

	c.JSON(http.StatusOK, dto.NewQueueSnapshotResponse(snap, runtime))
}
