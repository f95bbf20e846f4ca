package middleware

import (
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/studymill/model"
	"github.com/sahilchouksey/studymill/utils/auth"
	"github.com/sahilchouksey/studymill/utils/response"
	"gorm.io/gorm"
)

// AuthMiddleware authenticates requests with tenant API keys
type AuthMiddleware struct {
	db           *gorm.DB
	streamTokens *auth.StreamTokenManager
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(db *gorm.DB, streamTokens *auth.StreamTokenManager) *AuthMiddleware {
	return &AuthMiddleware{
		db:           db,
		streamTokens: streamTokens,
	}
}

// Required validates the tenant API key from the Authorization header.
// Format: "Bearer sk_..." or the X-API-Key header.
func (m *AuthMiddleware) Required() fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := c.Get("Authorization")
		if apiKey == "" {
			apiKey = c.Get("X-API-Key")
		}
		if apiKey == "" {
			return response.Unauthorized(c, "API key required")
		}

		apiKey = strings.TrimSpace(strings.TrimPrefix(apiKey, "Bearer "))

		prefix, err := auth.KeyPrefix(apiKey)
		if err != nil {
			return response.Unauthorized(c, "Invalid API key format")
		}

		// Prefix lookup, then bcrypt compare against candidates
		var keys []model.TenantAPIKey
		if err := m.db.Preload("Tenant").Where("key_prefix = ?", prefix).Find(&keys).Error; err != nil {
			return response.InternalServerError(c, "Failed to verify API key")
		}

		var matched *model.TenantAPIKey
		for i := range keys {
			if !keys[i].IsValid() {
				continue
			}
			if auth.VerifyAPIKey(keys[i].KeyHash, apiKey) == nil {
				matched = &keys[i]
				break
			}
		}
		if matched == nil {
			return response.Unauthorized(c, "Invalid API key")
		}
		if !matched.Tenant.IsActive {
			return response.Forbidden(c, "Tenant is deactivated")
		}

		now := time.Now()
		if err := m.db.Model(matched).Update("last_used_at", now).Error; err != nil {
			log.Printf("AuthMiddleware: failed to update last_used_at for key %d: %v", matched.ID, err)
		}

		c.Locals("tenant_id", matched.TenantID)
		c.Locals("tenant", &matched.Tenant)
		c.Locals("api_key_id", matched.ID)

		return c.Next()
	}
}

// StreamAuth validates a short-lived stream token from the "token" query
// parameter. The token must be scoped to the job UUID in the route.
func (m *AuthMiddleware) StreamAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := c.Query("token")
		if tokenString == "" {
			return response.Unauthorized(c, "Stream token required")
		}

		claims, err := m.streamTokens.Validate(tokenString)
		if err != nil {
			if err == auth.ErrExpiredToken {
				return response.Unauthorized(c, "Stream token has expired")
			}
			return response.Unauthorized(c, "Invalid stream token")
		}

		jobUUID := c.Params("uuid")
		if jobUUID != "" && claims.JobUUID != jobUUID {
			return response.Forbidden(c, "Token not valid for this job")
		}

		c.Locals("tenant_id", claims.TenantID)
		c.Locals("stream_job_uuid", claims.JobUUID)

		return c.Next()
	}
}

// GetTenantID extracts the authenticated tenant ID from context
func GetTenantID(c *fiber.Ctx) (uint, bool) {
	tenantID := c.Locals("tenant_id")
	if tenantID == nil {
		return 0, false
	}
	id, ok := tenantID.(uint)
	return id, ok
}

// GetTenant extracts the full tenant object from context
func GetTenant(c *fiber.Ctx) (*model.Tenant, bool) {
	tenant := c.Locals("tenant")
	if tenant == nil {
		return nil, false
	}
	t, ok := tenant.(*model.Tenant)
	return t, ok
}
