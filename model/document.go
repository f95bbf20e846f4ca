package model

import (
	"time"

	"gorm.io/gorm"
)

// DocumentStatus represents where a document is in the structuring pipeline
type DocumentStatus string

const (
	DocumentStatusUploaded   DocumentStatus = "uploaded"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusStructured DocumentStatus = "structured"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// Document represents one uploaded study PDF. Page count and chapter count are
// filled in once chapter classification completes; the stored bytes are never
// mutated after ingestion.
type Document struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
	TenantID      uint           `gorm:"index;not null" json:"tenant_id"`
	UploadBatchID *uint          `gorm:"index" json:"upload_batch_id,omitempty"` // Optional - set when uploaded as part of a batch
	CourseID      *uint          `gorm:"index" json:"course_id,omitempty"`       // Optional - for course-linked materials
	Title         string         `gorm:"not null" json:"title"`
	Filename      string         `gorm:"not null" json:"filename"`
	SpacesURL     string         `gorm:"not null" json:"spaces_url"` // DigitalOcean Spaces URL
	SpacesKey     string         `gorm:"not null" json:"spaces_key"` // S3-style key in Spaces
	FileSize      int64          `gorm:"default:0" json:"file_size"` // Size in bytes
	PageCount     int            `gorm:"default:0" json:"page_count"`
	ChapterCount  int            `gorm:"default:0" json:"chapter_count"`
	Status        DocumentStatus `gorm:"type:varchar(20);default:'uploaded'" json:"status"`

	// Relationships
	Tenant      Tenant       `gorm:"foreignKey:TenantID;constraint:OnDelete:CASCADE" json:"-"`
	UploadBatch *UploadBatch `gorm:"foreignKey:UploadBatchID;constraint:OnDelete:SET NULL" json:"upload_batch,omitempty"`
	Course      *Course      `gorm:"foreignKey:CourseID;constraint:OnDelete:SET NULL" json:"course,omitempty"`
	Chapters    []Chapter    `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:"chapters,omitempty"`
	Sections    []Section    `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:"sections,omitempty"`
	Chunks      []Chunk      `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:"-"`
}

// UploadBatch groups documents uploaded together in one request.
type UploadBatch struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	TenantID  uint      `gorm:"index;not null" json:"tenant_id"`
	Label     string    `gorm:"type:varchar(200)" json:"label"`

	Documents []Document `gorm:"foreignKey:UploadBatchID" json:"documents,omitempty"`
}

// Course is an optional grouping of documents under a course of study.
type Course struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
	TenantID  uint           `gorm:"index;not null" json:"tenant_id"`
	Name      string         `gorm:"not null" json:"name"`
	Code      string         `gorm:"type:varchar(50)" json:"code"`

	Documents []Document `gorm:"foreignKey:CourseID" json:"documents,omitempty"`
}
