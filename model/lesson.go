package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// LessonType identifies the kind of generated study material.
type LessonType string

const (
	LessonTypeSummary    LessonType = "summary"
	LessonTypeFlashcards LessonType = "flashcards"
	LessonTypeQuiz       LessonType = "quiz"
	LessonTypeNotes      LessonType = "notes"
)

// Lesson is a generated study artifact for a section. The composite unique
// index on (section_id, lesson_type) is the idempotency key: a second
// generation request for the same pair returns the stored row instead of
// producing a duplicate.
type Lesson struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
	TenantID   uint           `gorm:"index;not null" json:"tenant_id"`
	SectionID  uint           `gorm:"uniqueIndex:idx_lesson_section_type,priority:1;not null" json:"section_id"`
	LessonType LessonType     `gorm:"type:varchar(20);uniqueIndex:idx_lesson_section_type,priority:2;not null" json:"lesson_type"`
	Title      string         `gorm:"type:varchar(500)" json:"title"`
	Content    datatypes.JSON `gorm:"type:jsonb;not null" json:"content"`
	ModelName  string         `gorm:"type:varchar(100)" json:"model_name,omitempty"`

	// Relationships
	Section Section `gorm:"foreignKey:SectionID;constraint:OnDelete:CASCADE" json:"-"`
}

// Evaluation stores a graded answer attempt against a lesson.
type Evaluation struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
	TenantID  uint           `gorm:"index;not null" json:"tenant_id"`
	LessonID  uint           `gorm:"index;not null" json:"lesson_id"`
	Answers   datatypes.JSON `gorm:"type:jsonb;not null" json:"answers"`
	Score     float64        `json:"score"`
	Feedback  datatypes.JSON `gorm:"type:jsonb" json:"feedback,omitempty"`

	// Relationships
	Lesson Lesson `gorm:"foreignKey:LessonID;constraint:OnDelete:CASCADE" json:"-"`
}
