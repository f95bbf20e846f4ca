package document

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/studymill/model"
	"github.com/sahilchouksey/studymill/services"
	"github.com/sahilchouksey/studymill/services/digitalocean"
	"github.com/sahilchouksey/studymill/utils/middleware"
	"github.com/sahilchouksey/studymill/utils/response"
	"gorm.io/gorm"
)

// DocumentHandler handles document-related requests
type DocumentHandler struct {
	db              *gorm.DB
	documentService *services.DocumentService
	spaces          *digitalocean.SpacesClient
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(db *gorm.DB, documentService *services.DocumentService, spaces *digitalocean.SpacesClient) *DocumentHandler {
	return &DocumentHandler{
		db:              db,
		documentService: documentService,
		spaces:          spaces,
	}
}

// UploadDocument handles POST /api/v1/documents
// Accepts a multipart PDF, stages it and returns 202 with the created job.
func (h *DocumentHandler) UploadDocument(c *fiber.Ctx) error {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		return response.Unauthorized(c, "Tenant not authenticated")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return response.BadRequest(c, "Missing file upload")
	}
	file, err := fileHeader.Open()
	if err != nil {
		return response.BadRequest(c, "Failed to read uploaded file")
	}
	defer file.Close()

	req := services.UploadDocumentRequest{
		TenantID:   tenantID,
		Title:      c.FormValue("title"),
		File:       file,
		FileHeader: fileHeader,
	}
	if courseID := c.FormValue("course_id"); courseID != "" {
		id, err := strconv.ParseUint(courseID, 10, 32)
		if err != nil {
			return response.BadRequest(c, "Invalid course_id")
		}
		cid := uint(id)
		req.CourseID = &cid
	}
	if batchID := c.FormValue("upload_batch_id"); batchID != "" {
		id, err := strconv.ParseUint(batchID, 10, 32)
		if err != nil {
			return response.BadRequest(c, "Invalid upload_batch_id")
		}
		bid := uint(id)
		req.UploadBatchID = &bid
	}

	document, job, err := h.documentService.UploadDocument(c.Context(), req)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	return response.Accepted(c, fiber.Map{
		"document": document,
		"job": fiber.Map{
			"job_uuid": job.JobUUID,
			"type":     job.Type,
			"status":   job.Status,
		},
	})
}

// ListDocuments handles GET /api/v1/documents
func (h *DocumentHandler) ListDocuments(c *fiber.Ctx) error {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		return response.Unauthorized(c, "Tenant not authenticated")
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	status := c.Query("status", "")

	query := h.db.Model(&model.Document{}).Where("tenant_id = ?", tenantID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if courseID := c.Query("course_id"); courseID != "" {
		query = query.Where("course_id = ?", courseID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count documents")
	}

	offset := (page - 1) * limit
	pagination := response.CalculatePagination(page, limit, total)

	var documents []model.Document
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&documents).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch documents")
	}

	return response.Paginated(c, documents, pagination)
}

// GetDocument handles GET /api/v1/documents/:id
func (h *DocumentHandler) GetDocument(c *fiber.Ctx) error {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		return response.Unauthorized(c, "Tenant not authenticated")
	}
	id := c.Params("id")

	var document model.Document
	if err := h.db.Preload("Chapters", func(db *gorm.DB) *gorm.DB {
		return db.Order("page_start ASC")
	}).Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&document).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Document not found")
		}
		return response.InternalServerError(c, "Failed to fetch document")
	}

	return response.Success(c, document)
}

// GetDownloadURL handles GET /api/v1/documents/:id/download
// The stored object is private; access goes through short-lived presigned URLs.
func (h *DocumentHandler) GetDownloadURL(c *fiber.Ctx) error {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		return response.Unauthorized(c, "Tenant not authenticated")
	}
	id := c.Params("id")

	var document model.Document
	if err := h.db.Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&document).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Document not found")
		}
		return response.InternalServerError(c, "Failed to fetch document")
	}

	url, err := h.spaces.GetPresignedURL(document.SpacesKey, 15*time.Minute)
	if err != nil {
		return response.InternalServerError(c, "Failed to generate download URL")
	}
	return response.Success(c, fiber.Map{
		"url":        url,
		"expires_in": int((15 * time.Minute).Seconds()),
	})
}

// DeleteDocument handles DELETE /api/v1/documents/:id
func (h *DocumentHandler) DeleteDocument(c *fiber.Ctx) error {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		return response.Unauthorized(c, "Tenant not authenticated")
	}
	id := c.Params("id")

	var document model.Document
	if err := h.db.Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&document).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return response.NotFound(c, "Document not found")
		}
		return response.InternalServerError(c, "Failed to fetch document")
	}

	// Refuse while pipeline work is in flight
	var active int64
	h.db.Model(&model.Job{}).
		Where("document_id = ? AND status IN ?", document.ID,
			[]model.JobStatus{model.JobStatusPending, model.JobStatusProcessing}).
		Count(&active)
	if active > 0 {
		return response.Conflict(c, "Document has active pipeline jobs")
	}

	if document.SpacesKey != "" {
		if err := h.spaces.DeleteFile(c.Context(), document.SpacesKey); err != nil {
			return response.InternalServerError(c, "Failed to delete stored file")
		}
	}
	if err := h.db.Delete(&document).Error; err != nil {
		return response.InternalServerError(c, "Failed to delete document")
	}
	return response.NoContent(c)
}
