package model

import (
	"time"

	"gorm.io/gorm"
)

// Tenant represents an organization (or individual account) that owns documents.
// Account management itself lives outside this service; we only need the
// ownership scope and the API keys used to authenticate pipeline calls.
type Tenant struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
	Name      string         `gorm:"not null" json:"name"`
	Slug      string         `gorm:"uniqueIndex;not null" json:"slug"`
	IsActive  bool           `gorm:"default:true" json:"is_active"`

	// Tenant-supplied inference provider key, AES-GCM sealed at rest.
	// When set, pipeline jobs for this tenant use it instead of the
	// server-wide key.
	ProviderKeyEncrypted []byte `gorm:"type:bytea" json:"-"`
	ProviderKeyNonce     []byte `gorm:"type:bytea" json:"-"`
	ProviderKeySalt      []byte `gorm:"type:bytea" json:"-"`

	// Relationships
	APIKeys   []TenantAPIKey `gorm:"foreignKey:TenantID;constraint:OnDelete:CASCADE" json:"-"`
	Documents []Document     `gorm:"foreignKey:TenantID;constraint:OnDelete:CASCADE" json:"-"`
}

// TenantAPIKey stores a bcrypt hash of an issued API key. The raw key is shown
// once at creation time and never persisted.
type TenantAPIKey struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	CreatedAt  time.Time  `json:"created_at"`
	TenantID   uint       `gorm:"index;not null" json:"tenant_id"`
	KeyPrefix  string     `gorm:"type:varchar(12);index;not null" json:"key_prefix"` // First chars of the raw key, for lookup
	KeyHash    string     `gorm:"not null" json:"-"`
	Label      string     `gorm:"type:varchar(100)" json:"label"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`

	Tenant Tenant `gorm:"foreignKey:TenantID;constraint:OnDelete:CASCADE" json:"-"`
}

// IsValid reports whether the key may still be used.
func (k *TenantAPIKey) IsValid() bool {
	return k.RevokedAt == nil
}
