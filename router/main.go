package router

import (
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/studymill/database"
	"github.com/sahilchouksey/studymill/handlers"
	chapter_handlers "github.com/sahilchouksey/studymill/handlers/chapter"
	document_handlers "github.com/sahilchouksey/studymill/handlers/document"
	job_handlers "github.com/sahilchouksey/studymill/handlers/job"
	lesson_handlers "github.com/sahilchouksey/studymill/handlers/lesson"
	tenant_handlers "github.com/sahilchouksey/studymill/handlers/tenant"
	"github.com/sahilchouksey/studymill/services"
	"github.com/sahilchouksey/studymill/services/digitalocean"
	"github.com/sahilchouksey/studymill/utils/auth"
	"github.com/sahilchouksey/studymill/utils/middleware"
	"gorm.io/gorm"
)

// Dependencies carries the wired service graph into route registration.
type Dependencies struct {
	Store           database.Storage
	DB              *gorm.DB
	Spaces          *digitalocean.SpacesClient
	Tracker         *services.ProgressTracker
	Runner          *services.JobRunner
	DocumentService *services.DocumentService
	TenantService   *services.TenantService
	StreamTokens    *auth.StreamTokenManager
	BootstrapKey    string
}

// SetupRoutes registers all HTTP routes.
func SetupRoutes(app *fiber.App, deps Dependencies) {
	// Apply security middleware
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000,http://localhost:3001"
	}

	middleware.SetupSecurity(app, middleware.SecurityConfig{
		AllowedOrigins:    allowedOrigins,
		RateLimitRequests: 100,             // 100 requests
		RateLimitWindow:   1 * time.Minute, // per minute
	})

	authMiddleware := middleware.NewAuthMiddleware(deps.DB, deps.StreamTokens)

	documentHandler := document_handlers.NewDocumentHandler(deps.DB, deps.DocumentService, deps.Spaces)
	jobHandler := job_handlers.NewJobHandler(deps.DB, deps.Tracker, deps.StreamTokens)
	chapterHandler := chapter_handlers.NewChapterHandler(deps.DB, deps.Tracker, deps.Runner)
	lessonHandler := lesson_handlers.NewLessonHandler(deps.DB, deps.Tracker, deps.Runner)
	tenantHandler := tenant_handlers.NewTenantHandler(deps.TenantService, deps.BootstrapKey)

	// Health check endpoint (public)
	app.Get("/ping", func(c *fiber.Ctx) error {
		return handlers.HandleCheckHealth(c, deps.Store)
	})

	// API v1 group
	api := app.Group("/api/v1")

	// Tenant provisioning (bootstrap-key guarded, no tenant key yet)
	api.Post("/tenants", tenantHandler.CreateTenant)

	// Tenant self-management
	tenant := api.Group("/tenant", authMiddleware.Required())
	tenant.Post("/api-keys", tenantHandler.IssueAPIKey)
	tenant.Get("/api-keys", tenantHandler.ListAPIKeys)
	tenant.Delete("/api-keys/:id", tenantHandler.RevokeAPIKey)
	tenant.Put("/provider-key", tenantHandler.SetProviderKey)
	tenant.Delete("/provider-key", tenantHandler.ClearProviderKey)

	// Documents
	documents := api.Group("/documents", authMiddleware.Required())
	documents.Post("/", documentHandler.UploadDocument)
	documents.Get("/", documentHandler.ListDocuments)
	documents.Get("/:id", documentHandler.GetDocument)
	documents.Get("/:id/download", documentHandler.GetDownloadURL)
	documents.Delete("/:id", documentHandler.DeleteDocument)
	documents.Get("/:document_id/chapters", chapterHandler.ListChapters)

	// Chapters and sections
	chapters := api.Group("/chapters", authMiddleware.Required())
	chapters.Get("/:id", chapterHandler.GetChapter)
	chapters.Post("/:id/restructure", chapterHandler.RestructureChapter)
	chapters.Get("/:id/sections", chapterHandler.ListSections)

	sections := api.Group("/sections", authMiddleware.Required())
	sections.Get("/:id", chapterHandler.GetSection)
	sections.Post("/:section_id/lessons", lessonHandler.GenerateLesson)
	sections.Get("/:section_id/lessons", lessonHandler.ListLessons)

	// Lessons and evaluations
	lessons := api.Group("/lessons", authMiddleware.Required())
	lessons.Get("/:id", lessonHandler.GetLesson)
	lessons.Post("/:id/evaluations", lessonHandler.SubmitEvaluation)
	lessons.Get("/:id/evaluations", lessonHandler.ListEvaluations)

	// Jobs: status, listing and SSE progress streams
	jobs := api.Group("/jobs")
	jobs.Get("/", authMiddleware.Required(), jobHandler.ListJobs)
	jobs.Get("/:uuid", authMiddleware.Required(), jobHandler.GetJob)
	jobs.Post("/:uuid/stream-token", authMiddleware.Required(), jobHandler.IssueStreamToken)
	jobs.Get("/:uuid/stream", authMiddleware.StreamAuth(), jobHandler.StreamJob)
}
