package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/azhengyongqin/procq/internal/middleware"
	"github.com/azhengyongqin/procq/internal/model"
	"github.com/azhengyongqin/procq/internal/queue"
	"github.com/azhengyongqin/procq/internal/server/dto"
	"github.com/azhengyongqin/procq/internal/store"
)

// JobHandler 任务提交/查询/取消 API Handler
type JobHandler struct {
	manager  *queue.Manager
	payloads *store.PayloadDir
}

// NewJobHandler 创建 JobHandler
func NewJobHandler(manager *queue.Manager, payloads *store.PayloadDir) *JobHandler {
	return &JobHandler{
		manager:  manager,
		payloads: payloads,
	}
}

// SubmitJob godoc
// @Summary 提交处理任务
// @Description 提交待处理内容并入队。支持 JSON（content 内联）与 multipart（file 字段）两种提交方式
// @Tags Jobs
// @Accept json
// @Accept multipart/form-data
// @Produce json
// @Param request body dto.SubmitJobRequest false "JSON 提交请求"
// @Success 202 {object} dto.SubmitJobResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.DuplicateResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /jobs [post]
func (h *JobHandler) SubmitJob(c *gin.Context) {
	req, ownedRef, err := h.parseSubmit(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	task, depth, err := h.manager.Submit(c.Request.Context(), *req)
	if err != nil {
		// 提交失败时只清理本次落盘的文件，调用方自有的引用不动
		if ownedRef != "" {
			_ = h.payloads.Remove(ownedRef)
		}

		var ve *model.ValidationError
		var de *model.DuplicateError
		switch {
		case errors.As(err, &ve):
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: ve.Error()})
		case errors.As(err, &de):
			c.JSON(http.StatusConflict, dto.DuplicateResponse{
				Status:         string(model.StatusDuplicate),
				ExistingTaskID: de.ExistingTaskID,
				ResultRef:      de.ResultRef,
				Fingerprint:    de.Fingerprint,
			})
		case errors.Is(err, model.ErrQueueUnavailable):
			c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: "队列后端暂时不可用"})
		default:
			c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		}
		return
	}

	c.JSON(http.StatusAccepted, dto.SubmitJobResponse{
		JobID:         task.ID,
		Status:        string(task.Status),
		Fingerprint:   task.ContentFingerprint,
		QueuePosition: depth,
	})
}

// parseSubmit 解析两种提交形态。
// 返回的 ownedRef 非空表示 payload 是本次请求落盘的，提交失败时由调用方清理。
func (h *JobHandler) parseSubmit(c *gin.Context) (*queue.SubmitRequest, string, error) {
	ct := c.ContentType()
	if strings.HasPrefix(ct, "multipart/form-data") {
		return h.parseMultipart(c)
	}

	var req dto.SubmitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, "", err
	}

	// 内联内容：落盘并算指纹
	if strings.TrimSpace(req.Content) != "" {
		ref, fp, err := h.payloads.Save(strings.NewReader(req.Content))
		if err != nil {
			return nil, "", err
		}
		return &queue.SubmitRequest{
			PayloadRef:         ref,
			ContentFingerprint: fp,
			Priority:           req.Priority,
			Metadata:           req.Metadata,
		}, ref, nil
	}

	// 调用方自有引用：指纹可选，缺失时由 worker 处理中补算
	if req.PayloadRef == "" {
		return nil, "", &model.ValidationError{Field: "payload_ref", Reason: "either content or payload_ref is required"}
	}
	if req.ContentFingerprint != "" && !middleware.ValidateFingerprint(req.ContentFingerprint) {
		return nil, "", &model.ValidationError{Field: "content_fingerprint", Reason: "must be lowercase sha256 hex"}
	}
	return &queue.SubmitRequest{
		PayloadRef:         req.PayloadRef,
		ContentFingerprint: req.ContentFingerprint,
		Priority:           req.Priority,
		Metadata:           req.Metadata,
	}, "", nil
}

func (h *JobHandler) parseMultipart(c *gin.Context) (*queue.SubmitRequest, string, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, "", &model.ValidationError{Field: "file", Reason: "missing multipart file field"}
	}
	if fh.Size == 0 {
		return nil, "", &model.ValidationError{Field: "file", Reason: "must not be empty"}
	}

	f, err := fh.Open()
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	ref, fp, err := h.payloads.Save(f)
	if err != nil {
		return nil, "", err
	}

	priority := 0
	if p := c.PostForm("priority"); p != "" {
		priority, err = strconv.Atoi(p)
		if err != nil {
			_ = h.payloads.Remove(ref)
			return nil, "", &model.ValidationError{Field: "priority", Reason: "must be an integer"}
		}
	}

	metadata := map[string]string{"filename": middleware.SanitizeString(fh.Filename)}
	return &queue.SubmitRequest{
		PayloadRef:         ref,
		ContentFingerprint: fp,
		Priority:           priority,
		Metadata:           metadata,
	}, ref, nil
}

// GetJob godoc
// @Summary 查询任务状态
// @Description 返回任务的当前快照（状态、进度、错误、产出引用）
// @Tags Jobs
// @Produce json
// @Param job_id path string true "任务 ID"
// @Success 200 {object} dto.JobResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /jobs/{job_id} [get]
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	task, err := h.manager.Status(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, model.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "任务不存在或已过期"})
			return
		}
		if errors.Is(err, model.ErrQueueUnavailable) {
			c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: "队列后端暂时不可用"})
			return
		}
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.NewJobResponse(task))
}

// CancelJob godoc
// @Summary 取消任务
// @Description 协作式取消：仅等待中或重试窗口内的任务可取消
// @Tags Jobs
// @Produce json
// @Param job_id path string true "任务 ID"
// @Success 200 {object} dto.SuccessResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /jobs/{job_id} [delete]
func (h *JobHandler) CancelJob(c *gin.Context) {
	jobID := c.Param("job_id")

	err := h.manager.Cancel(c.Request.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrTaskNotFound):
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "任务不存在或已过期"})
		case errors.Is(err, model.ErrNotCancellable):
			c.JSON(http.StatusConflict, dto.ErrorResponse{Error: "任务当前状态不可取消"})
		case errors.Is(err, model.ErrQueueUnavailable):
			c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: "队列后端暂时不可用"})
		default:
			c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, dto.SuccessResponse{Status: "ok", Message: "任务已取消"})
}
