package tenant

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/studymill/services"
	"github.com/sahilchouksey/studymill/utils/middleware"
	"github.com/sahilchouksey/studymill/utils/response"
	"github.com/sahilchouksey/studymill/utils/validation"
)

// TenantHandler handles tenant provisioning and credential management
type TenantHandler struct {
	tenantService *services.TenantService
	validator     *validation.Validator
	bootstrapKey  string
}

// NewTenantHandler creates a new tenant handler. bootstrapKey guards tenant
// creation, which happens before any tenant API key exists.
func NewTenantHandler(tenantService *services.TenantService, bootstrapKey string) *TenantHandler {
	return &TenantHandler{
		tenantService: tenantService,
		validator:     validation.NewValidator(),
		bootstrapKey:  bootstrapKey,
	}
}

type createTenantRequest struct {
	Name string `json:"name" validate:"required,min=2,max=100"`
	Slug string `json:"slug" validate:"required,min=2,max=50"`
}

// CreateTenant handles POST /api/v1/tenants
func (h *TenantHandler) CreateTenant(c *fiber.Ctx) error {
	if h.bootstrapKey == "" || c.Get("X-Bootstrap-Key") != h.bootstrapKey {
		return response.Forbidden(c, "Tenant provisioning is restricted")
	}

	var req createTenantRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	tenant, apiKey, err := h.tenantService.CreateTenant(c.Context(), req.Name, req.Slug)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	// The plaintext key appears in this response only
	return response.Created(c, fiber.Map{
		"tenant":  tenant,
		"api_key": apiKey,
	})
}

type issueKeyRequest struct {
	Label string `json:"label" validate:"max=100"`
}

// IssueAPIKey handles POST /api/v1/tenant/api-keys
func (h *TenantHandler) IssueAPIKey(c *fiber.Ctx) error {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		return response.Unauthorized(c, "Tenant not authenticated")
	}

	var req issueKeyRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	apiKey, err := h.tenantService.IssueAPIKey(c.Context(), tenantID, req.Label)
	if err != nil {
		return response.InternalServerError(c, "Failed to issue API key")
	}
	return response.Created(c, fiber.Map{"api_key": apiKey})
}

// ListAPIKeys handles GET /api/v1/tenant/api-keys
func (h *TenantHandler) ListAPIKeys(c *fiber.Ctx) error {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		return response.Unauthorized(c, "Tenant not authenticated")
	}

	keys, err := h.tenantService.ListAPIKeys(c.Context(), tenantID)
	if err != nil {
		return response.InternalServerError(c, "Failed to list API keys")
	}
	return response.Success(c, keys)
}

// RevokeAPIKey handles DELETE /api/v1/tenant/api-keys/:id
func (h *TenantHandler) RevokeAPIKey(c *fiber.Ctx) error {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		return response.Unauthorized(c, "Tenant not authenticated")
	}

	keyID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid key ID")
	}

	if err := h.tenantService.RevokeAPIKey(c.Context(), tenantID, uint(keyID)); err != nil {
		return response.NotFound(c, err.Error())
	}
	return response.NoContent(c)
}

type setProviderKeyRequest struct {
	ProviderKey string `json:"provider_key" validate:"required,min=8"`
}

// SetProviderKey handles PUT /api/v1/tenant/provider-key
func (h *TenantHandler) SetProviderKey(c *fiber.Ctx) error {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		return response.Unauthorized(c, "Tenant not authenticated")
	}

	var req setProviderKeyRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	if err := h.tenantService.SetProviderKey(c.Context(), tenantID, req.ProviderKey); err != nil {
		return response.InternalServerError(c, "Failed to store provider key")
	}
	return response.SuccessWithMessage(c, "Provider key stored", nil)
}

// ClearProviderKey handles DELETE /api/v1/tenant/provider-key
func (h *TenantHandler) ClearProviderKey(c *fiber.Ctx) error {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		return response.Unauthorized(c, "Tenant not authenticated")
	}

	if err := h.tenantService.ClearProviderKey(c.Context(), tenantID); err != nil {
		return response.InternalServerError(c, "Failed to clear provider key")
	}
	return response.NoContent(c)
}
