package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sahilchouksey/studymill/model"
	"github.com/sahilchouksey/studymill/utils/auth"
	"github.com/sahilchouksey/studymill/utils/crypto"
	"github.com/sahilchouksey/studymill/utils/validation"
	"gorm.io/gorm"
)

// ErrNoProviderKey is returned when a tenant has no sealed provider key.
var ErrNoProviderKey = errors.New("tenant has no provider key configured")

// TenantService manages tenants, their API keys and their sealed inference
// provider keys.
type TenantService struct {
	db           *gorm.DB
	sealedSecret string
}

func NewTenantService(db *gorm.DB, providerKeySecret string) *TenantService {
	return &TenantService{db: db, sealedSecret: providerKeySecret}
}

// CreateTenant creates a tenant and issues its first API key. The plaintext
// key is returned once and never stored.
func (s *TenantService) CreateTenant(ctx context.Context, name, slug string) (*model.Tenant, string, error) {
	if ok, reason := validation.ValidateSlug(slug); !ok {
		return nil, "", fmt.Errorf("invalid slug: %s", reason)
	}

	tenant := &model.Tenant{
		Name:     validation.SanitizeString(name),
		Slug:     slug,
		IsActive: true,
	}
	if err := s.db.WithContext(ctx).Create(tenant).Error; err != nil {
		return nil, "", fmt.Errorf("failed to create tenant: %w", err)
	}

	plaintext, err := s.IssueAPIKey(ctx, tenant.ID, "initial")
	if err != nil {
		return nil, "", err
	}
	return tenant, plaintext, nil
}

// IssueAPIKey generates and stores a new API key for the tenant. Returns the
// plaintext key, shown to the caller exactly once.
func (s *TenantService) IssueAPIKey(ctx context.Context, tenantID uint, label string) (string, error) {
	var tenant model.Tenant
	if err := s.db.WithContext(ctx).First(&tenant, tenantID).Error; err != nil {
		return "", fmt.Errorf("tenant %d not found: %w", tenantID, err)
	}
	if !tenant.IsActive {
		return "", fmt.Errorf("tenant %d is inactive", tenantID)
	}

	plaintext, prefix, hash, err := auth.GenerateAPIKey()
	if err != nil {
		return "", err
	}

	apiKey := &model.TenantAPIKey{
		TenantID:  tenantID,
		KeyPrefix: prefix,
		KeyHash:   hash,
		Label:     validation.SanitizeString(label),
	}
	if err := s.db.WithContext(ctx).Create(apiKey).Error; err != nil {
		return "", fmt.Errorf("failed to store API key: %w", err)
	}
	return plaintext, nil
}

// RevokeAPIKey marks a key unusable. Revocation is permanent.
func (s *TenantService) RevokeAPIKey(ctx context.Context, tenantID, keyID uint) error {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&model.TenantAPIKey{}).
		Where("id = ? AND tenant_id = ? AND revoked_at IS NULL", keyID, tenantID).
		Update("revoked_at", now)
	if res.Error != nil {
		return fmt.Errorf("failed to revoke API key: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("API key %d not found or already revoked", keyID)
	}
	return nil
}

// ListAPIKeys returns the tenant's keys without hash material.
func (s *TenantService) ListAPIKeys(ctx context.Context, tenantID uint) ([]model.TenantAPIKey, error) {
	var keys []model.TenantAPIKey
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at desc").
		Find(&keys).Error; err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}
	return keys, nil
}

// SetProviderKey seals the tenant's inference provider key at rest with a key
// derived from the server secret and a per-tenant salt.
func (s *TenantService) SetProviderKey(ctx context.Context, tenantID uint, providerKey string) error {
	if s.sealedSecret == "" {
		return errors.New("provider key sealing is not configured")
	}
	if providerKey == "" {
		return errors.New("provider key must not be empty")
	}

	salt, err := crypto.GenerateSalt()
	if err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}
	derived := crypto.DeriveKey(s.sealedSecret, salt)
	encrypted, nonce, err := crypto.EncryptProviderKey(providerKey, derived)
	if err != nil {
		return fmt.Errorf("failed to seal provider key: %w", err)
	}

	res := s.db.WithContext(ctx).Model(&model.Tenant{}).
		Where("id = ?", tenantID).
		Updates(map[string]interface{}{
			"provider_key_encrypted": encrypted,
			"provider_key_nonce":     nonce,
			"provider_key_salt":      salt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to store sealed provider key: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("tenant %d not found", tenantID)
	}
	return nil
}

// GetProviderKey unseals the tenant's provider key for use in a pipeline job.
func (s *TenantService) GetProviderKey(ctx context.Context, tenantID uint) (string, error) {
	var tenant model.Tenant
	if err := s.db.WithContext(ctx).First(&tenant, tenantID).Error; err != nil {
		return "", fmt.Errorf("tenant %d not found: %w", tenantID, err)
	}
	if len(tenant.ProviderKeyEncrypted) == 0 {
		return "", ErrNoProviderKey
	}

	derived := crypto.DeriveKey(s.sealedSecret, tenant.ProviderKeySalt)
	key, err := crypto.DecryptProviderKey(tenant.ProviderKeyEncrypted, tenant.ProviderKeyNonce, derived)
	if err != nil {
		return "", fmt.Errorf("failed to unseal provider key: %w", err)
	}
	return key, nil
}

// ClearProviderKey removes the sealed provider key so jobs fall back to the
// server-wide key.
func (s *TenantService) ClearProviderKey(ctx context.Context, tenantID uint) error {
	return s.db.WithContext(ctx).Model(&model.Tenant{}).
		Where("id = ?", tenantID).
		Updates(map[string]interface{}{
			"provider_key_encrypted": nil,
			"provider_key_nonce":     nil,
			"provider_key_salt":      nil,
		}).Error
}
