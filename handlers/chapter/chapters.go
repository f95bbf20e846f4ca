package chapter

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/studymill/model"
	"github.com/sahilchouksey/studymill/services"
	"github.com/sahilchouksey/studymill/utils/middleware"
	"github.com/sahilchouksey/studymill/utils/response"
	"gorm.io/gorm"
)

// ChapterHandler handles chapter and section requests
type ChapterHandler struct {
	db       *gorm.DB
	tracker  *services.ProgressTracker
	enqueuer services.JobEnqueuer
}

// NewChapterHandler creates a new chapter handler
func NewChapterHandler(db *gorm.DB, tracker *services.ProgressTracker, enqueuer services.JobEnqueuer) *ChapterHandler {
	return &ChapterHandler{
		db:       db,
		tracker:  tracker,
		enqueuer: enqueuer,
	}
}

// loadChapter fetches a chapter and verifies tenant ownership through its
// document.
func (h *ChapterHandler) loadChapter(c *fiber.Ctx, tenantID uint) (*model.Chapter, error) {
	id := c.Params("id")

	var chapter model.Chapter
	if err := h.db.
		Joins("JOIN documents ON documents.id = chapters.document_id").
		Where("chapters.id = ? AND documents.tenant_id = ?", id, tenantID).
		First(&chapter).Error; err != nil {
		return nil, err
	}
	return &chapter, nil
}

// ListChapters handles GET /api/v1/documents/:document_id/chapters
func (h *ChapterHandler) ListChapters(c *fiber.Ctx) error {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		return response.Unauthorized(c, "Tenant not authenticated")
	}
	documentID := c.Params("document_id")

	var document model.Document
	if err := h.db.Where("tenant_id = ? AND id = ?", tenantID, documentID).
		First(&document).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Document not found")
		}
		return response.InternalServerError(c, "Failed to fetch document")
	}

	var chapters []model.Chapter
	if err := h.db.
		Select("id", "created_at", "updated_at", "document_id", "number", "title",
			"page_start", "page_end", "page_end_estimated", "sections_generated").
		Where("document_id = ?", document.ID).
		Order("page_start ASC").
		Find(&chapters).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch chapters")
	}
	return response.Success(c, chapters)
}

// GetChapter handles GET /api/v1/chapters/:id
func (h *ChapterHandler) GetChapter(c *fiber.Ctx) error {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		return response.Unauthorized(c, "Tenant not authenticated")
	}

	chapter, err := h.loadChapter(c, tenantID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Chapter not found")
		}
		return response.InternalServerError(c, "Failed to fetch chapter")
	}
	return response.Success(c, chapter)
}

// RestructureChapter handles POST /api/v1/chapters/:id/restructure
// Clears the structured flag and enqueues a fresh chapter_extraction job.
func (h *ChapterHandler) RestructureChapter(c *fiber.Ctx) error {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		return response.Unauthorized(c, "Tenant not authenticated")
	}

	chapter, err := h.loadChapter(c, tenantID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Chapter not found")
		}
		return response.InternalServerError(c, "Failed to fetch chapter")
	}

	if err := h.db.Model(chapter).Update("sections_generated", false).Error; err != nil {
		return response.InternalServerError(c, "Failed to reset chapter")
	}

	job, err := h.tracker.CreateJob(c.Context(), tenantID, &chapter.DocumentID,
		model.JobTypeChapterExtraction, services.NewChapterJobInput(chapter.ID))
	if err != nil {
		return response.InternalServerError(c, "Failed to create job")
	}
	if err := h.enqueuer.Enqueue(model.JobTypeChapterExtraction, job.JobUUID); err != nil {
		return response.InternalServerError(c, "Failed to schedule job")
	}

	return response.Accepted(c, fiber.Map{
		"job_uuid": job.JobUUID,
		"type":     job.Type,
		"status":   job.Status,
	})
}

// ListSections handles GET /api/v1/chapters/:id/sections
func (h *ChapterHandler) ListSections(c *fiber.Ctx) error {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		return response.Unauthorized(c, "Tenant not authenticated")
	}

	chapter, err := h.loadChapter(c, tenantID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Chapter not found")
		}
		return response.InternalServerError(c, "Failed to fetch chapter")
	}

	var sections []model.Section
	if err := h.db.Where("chapter_id = ?", chapter.ID).
		Order("sequence_num ASC").
		Find(&sections).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch sections")
	}
	return response.Success(c, sections)
}

// GetSection handles GET /api/v1/sections/:id
func (h *ChapterHandler) GetSection(c *fiber.Ctx) error {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		return response.Unauthorized(c, "Tenant not authenticated")
	}
	id := c.Params("id")

	var section model.Section
	if err := h.db.
		Joins("JOIN documents ON documents.id = sections.document_id").
		Where("sections.id = ? AND documents.tenant_id = ?", id, tenantID).
		First(&section).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Section not found")
		}
		return response.InternalServerError(c, "Failed to fetch section")
	}
	return response.Success(c, section)
}
