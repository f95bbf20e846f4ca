package model

import (
	"time"

	"gorm.io/gorm"
)

// Section is one named span of a document (or of a chapter). Sequence numbers
// are 1-based and gap-free within their parent; the markdown span is never
// empty after trimming.
type Section struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
	DocumentID   uint           `gorm:"index;not null" json:"document_id"`
	ChapterID    *uint          `gorm:"index" json:"chapter_id,omitempty"`
	SequenceNum  int            `gorm:"not null" json:"sequence_num"`
	Name         string         `gorm:"not null" json:"name"`
	Description  string         `gorm:"type:text" json:"description,omitempty"`
	PageStart    *int           `json:"page_start,omitempty"`
	PageEnd      *int           `json:"page_end,omitempty"`
	Markdown     string         `gorm:"type:text;not null" json:"markdown"`
	QualityScore float64        `gorm:"default:0" json:"quality_score"` // Advisory extraction quality in [0,1]

	// Relationships
	Document Document `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:"-"`
	Chapter  *Chapter `gorm:"foreignKey:ChapterID;constraint:OnDelete:CASCADE" json:"-"`
	Lessons  []Lesson `gorm:"foreignKey:SectionID" json:"-"`
}
