package job

import (
	"bufio"
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/studymill/model"
	"github.com/sahilchouksey/studymill/services"
	"github.com/sahilchouksey/studymill/utils/auth"
	"github.com/sahilchouksey/studymill/utils/middleware"
	"github.com/sahilchouksey/studymill/utils/response"
	"github.com/sahilchouksey/studymill/utils/sse"
	"gorm.io/gorm"
)

// Stream polling cadence and lifetime bounds
const (
	streamPollInterval = 1 * time.Second
	streamKeepAlive    = 15 * time.Second
	streamMaxDuration  = 30 * time.Minute
)

// JobHandler handles job status and progress streaming requests
type JobHandler struct {
	db           *gorm.DB
	tracker      *services.ProgressTracker
	streamTokens *auth.StreamTokenManager
}

// NewJobHandler creates a new job handler
func NewJobHandler(db *gorm.DB, tracker *services.ProgressTracker, streamTokens *auth.StreamTokenManager) *JobHandler {
	return &JobHandler{
		db:           db,
		tracker:      tracker,
		streamTokens: streamTokens,
	}
}

// GetJob handles GET /api/v1/jobs/:uuid
func (h *JobHandler) GetJob(c *fiber.Ctx) error {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		return response.Unauthorized(c, "Tenant not authenticated")
	}
	jobUUID := c.Params("uuid")

	var job model.Job
	if err := h.db.Where("job_uuid = ? AND tenant_id = ?", jobUUID, tenantID).
		First(&job).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Job not found")
		}
		return response.InternalServerError(c, "Failed to fetch job")
	}
	return response.Success(c, job)
}

// ListJobs handles GET /api/v1/jobs
func (h *JobHandler) ListJobs(c *fiber.Ctx) error {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		return response.Unauthorized(c, "Tenant not authenticated")
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))

	query := h.db.Model(&model.Job{}).Where("tenant_id = ?", tenantID)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if jobType := c.Query("type"); jobType != "" {
		query = query.Where("type = ?", jobType)
	}
	if documentID := c.Query("document_id"); documentID != "" {
		query = query.Where("document_id = ?", documentID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count jobs")
	}

	offset := (page - 1) * limit
	pagination := response.CalculatePagination(page, limit, total)

	var jobs []model.Job
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&jobs).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch jobs")
	}
	return response.Paginated(c, jobs, pagination)
}

// IssueStreamToken handles POST /api/v1/jobs/:uuid/stream-token
// EventSource cannot set request headers, so SSE consumers exchange their API
// key for a short-lived token carried in the stream URL.
func (h *JobHandler) IssueStreamToken(c *fiber.Ctx) error {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		return response.Unauthorized(c, "Tenant not authenticated")
	}
	jobUUID := c.Params("uuid")

	var job model.Job
	if err := h.db.Where("job_uuid = ? AND tenant_id = ?", jobUUID, tenantID).
		First(&job).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Job not found")
		}
		return response.InternalServerError(c, "Failed to fetch job")
	}

	token, err := h.streamTokens.Issue(tenantID, jobUUID)
	if err != nil {
		return response.InternalServerError(c, "Failed to issue stream token")
	}
	return response.Success(c, fiber.Map{
		"token":      token,
		"stream_url": "/api/v1/jobs/" + jobUUID + "/stream?token=" + token,
	})
}

// StreamJob handles GET /api/v1/jobs/:uuid/stream
// Streams job progress as server-sent events until the job reaches a terminal
// state. Authenticated by stream token in the query string.
func (h *JobHandler) StreamJob(c *fiber.Ctx) error {
	jobUUID := c.Params("uuid")

	// Set SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // Disable nginx buffering

	tracker := h.tracker
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		// The Fiber context is not valid inside the stream writer goroutine
		ctx, cancel := context.WithTimeout(context.Background(), streamMaxDuration)
		defer cancel()

		state, err := tracker.GetLiveState(ctx, jobUUID)
		if err != nil {
			sse.SendError(w, err)
			return
		}
		if err := sse.SendStarted(w, state); err != nil {
			return
		}
		if terminal(state.Status) {
			sse.SendComplete(w, state)
			return
		}

		lastProgress := state.Progress
		lastMessage := state.Message
		lastEvent := time.Now()

		ticker := time.NewTicker(streamPollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				sse.SendErrorWithDetails(w, "timeout", "stream duration limit reached", nil)
				return
			case <-ticker.C:
			}

			state, err := tracker.GetLiveState(ctx, jobUUID)
			if err != nil {
				sse.SendError(w, err)
				return
			}

			if terminal(state.Status) {
				sse.SendComplete(w, state)
				return
			}

			if state.Progress != lastProgress || state.Message != lastMessage {
				if err := sse.SendProgress(w, state); err != nil {
					return
				}
				lastProgress = state.Progress
				lastMessage = state.Message
				lastEvent = time.Now()
				continue
			}

			if time.Since(lastEvent) >= streamKeepAlive {
				if err := sse.SendKeepAlive(w); err != nil {
					return
				}
				lastEvent = time.Now()
			}
		}
	})
	return nil
}

func terminal(status model.JobStatus) bool {
	return status == model.JobStatusCompleted || status == model.JobStatusFailed
}
