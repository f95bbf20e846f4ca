package model

import (
	"time"

	"gorm.io/gorm"
)

// Chapter is one structural unit of a document discovered by chapter
// classification. Number may be null for uncategorized content. Page ranges
// are 1-indexed and inclusive. The same chapter number may appear more than
// once when a chapter resumes after an interruption (non-contiguous ranges
// are kept as separate rows rather than merged into one span).
type Chapter struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
	DocumentID        uint           `gorm:"index;not null" json:"document_id"`
	Number            *int           `gorm:"index" json:"number,omitempty"` // Null for "uncategorized"
	Title             string         `gorm:"not null" json:"title"`
	PageStart         int            `gorm:"not null" json:"page_start"`
	PageEnd           int            `gorm:"not null" json:"page_end"`
	PageEndEstimated  bool           `gorm:"default:false" json:"page_end_estimated"` // True when the end page is a low-confidence guess
	RawMarkdown       string         `gorm:"type:text" json:"raw_markdown,omitempty"`
	SectionsGenerated bool           `gorm:"default:false;index" json:"sections_generated"`

	// Relationships
	Document Document  `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:"-"`
	Sections []Section `gorm:"foreignKey:ChapterID" json:"sections,omitempty"`
}

// PageSpan returns the number of pages covered by the chapter.
func (c *Chapter) PageSpan() int {
	if c.PageEnd < c.PageStart {
		return 0
	}
	return c.PageEnd - c.PageStart + 1
}
