package lesson

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/studymill/model"
	"github.com/sahilchouksey/studymill/services"
	"github.com/sahilchouksey/studymill/utils/middleware"
	"github.com/sahilchouksey/studymill/utils/response"
	"gorm.io/gorm"
)

// LessonHandler handles lesson generation and evaluation requests
type LessonHandler struct {
	db       *gorm.DB
	tracker  *services.ProgressTracker
	enqueuer services.JobEnqueuer
}

// NewLessonHandler creates a new lesson handler
func NewLessonHandler(db *gorm.DB, tracker *services.ProgressTracker, enqueuer services.JobEnqueuer) *LessonHandler {
	return &LessonHandler{
		db:       db,
		tracker:  tracker,
		enqueuer: enqueuer,
	}
}

type generateLessonRequest struct {
	LessonType model.LessonType `json:"lesson_type"`
}

// GenerateLesson handles POST /api/v1/sections/:section_id/lessons
// Returns the existing lesson directly when one was already generated for
// this (section, lesson_type) pair, otherwise enqueues a generation job.
func (h *LessonHandler) GenerateLesson(c *fiber.Ctx) error {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		return response.Unauthorized(c, "Tenant not authenticated")
	}
	sectionID := c.Params("section_id")

	var req generateLessonRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if !services.ValidLessonType(req.LessonType) {
		return response.BadRequest(c, "Unsupported lesson type")
	}

	var section model.Section
	if err := h.db.
		Joins("JOIN documents ON documents.id = sections.document_id").
		Where("sections.id = ? AND documents.tenant_id = ?", sectionID, tenantID).
		First(&section).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Section not found")
		}
		return response.InternalServerError(c, "Failed to fetch section")
	}

	// Idempotent short-circuit: a prior result is returned, never regenerated
	var existing model.Lesson
	err := h.db.Where("section_id = ? AND lesson_type = ?", section.ID, req.LessonType).
		First(&existing).Error
	if err == nil {
		return response.Success(c, fiber.Map{
			"lesson": existing,
			"cached": true,
		})
	}
	if err != gorm.ErrRecordNotFound {
		return response.InternalServerError(c, "Failed to check existing lessons")
	}

	job, err := h.tracker.CreateJob(c.Context(), tenantID, &section.DocumentID,
		model.JobTypeLessonGeneration, services.NewLessonJobInput(section.ID, req.LessonType))
	if err != nil {
		return response.InternalServerError(c, "Failed to create job")
	}
	if err := h.enqueuer.Enqueue(model.JobTypeLessonGeneration, job.JobUUID); err != nil {
		return response.InternalServerError(c, "Failed to schedule job")
	}

	return response.Accepted(c, fiber.Map{
		"job_uuid": job.JobUUID,
		"type":     job.Type,
		"status":   job.Status,
		"cached":   false,
	})
}

// ListLessons handles GET /api/v1/sections/:section_id/lessons
func (h *LessonHandler) ListLessons(c *fiber.Ctx) error {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		return response.Unauthorized(c, "Tenant not authenticated")
	}
	sectionID := c.Params("section_id")

	var lessons []model.Lesson
	if err := h.db.
		Where("section_id = ? AND tenant_id = ?", sectionID, tenantID).
		Order("created_at ASC").
		Find(&lessons).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch lessons")
	}
	return response.Success(c, lessons)
}

// GetLesson handles GET /api/v1/lessons/:id
func (h *LessonHandler) GetLesson(c *fiber.Ctx) error {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		return response.Unauthorized(c, "Tenant not authenticated")
	}
	id := c.Params("id")

	var lesson model.Lesson
	if err := h.db.Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&lesson).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Lesson not found")
		}
		return response.InternalServerError(c, "Failed to fetch lesson")
	}
	return response.Success(c, lesson)
}

type submitEvaluationRequest struct {
	Answers json.RawMessage `json:"answers"`
}

// SubmitEvaluation handles POST /api/v1/lessons/:id/evaluations
func (h *LessonHandler) SubmitEvaluation(c *fiber.Ctx) error {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		return response.Unauthorized(c, "Tenant not authenticated")
	}
	id := c.Params("id")

	var req submitEvaluationRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if len(req.Answers) == 0 {
		return response.BadRequest(c, "Answers are required")
	}

	var lesson model.Lesson
	if err := h.db.Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&lesson).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Lesson not found")
		}
		return response.InternalServerError(c, "Failed to fetch lesson")
	}

	job, err := h.tracker.CreateJob(c.Context(), tenantID, nil,
		model.JobTypeEvaluation, services.NewEvaluationJobInput(lesson.ID, req.Answers))
	if err != nil {
		return response.InternalServerError(c, "Failed to create job")
	}
	if err := h.enqueuer.Enqueue(model.JobTypeEvaluation, job.JobUUID); err != nil {
		return response.InternalServerError(c, "Failed to schedule job")
	}

	return response.Accepted(c, fiber.Map{
		"job_uuid": job.JobUUID,
		"type":     job.Type,
		"status":   job.Status,
	})
}

// ListEvaluations handles GET /api/v1/lessons/:id/evaluations
func (h *LessonHandler) ListEvaluations(c *fiber.Ctx) error {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		return response.Unauthorized(c, "Tenant not authenticated")
	}
	id := c.Params("id")

	var evaluations []model.Evaluation
	if err := h.db.
		Where("lesson_id = ? AND tenant_id = ?", id, tenantID).
		Order("created_at DESC").
		Find(&evaluations).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch evaluations")
	}
	return response.Success(c, evaluations)
}
