package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// JobType represents the kind of pipeline work a job performs
type JobType string

const (
	JobTypeDocumentUpload    JobType = "document_upload"
	JobTypeChapterExtraction JobType = "chapter_extraction"
	JobTypeLessonGeneration  JobType = "lesson_generation"
	JobTypeEvaluation        JobType = "evaluation"
)

// JobStatus represents the lifecycle state of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Job represents one asynchronous unit of pipeline work. A job is created
// pending, moves to processing on dequeue and ends in exactly one terminal
// state. It is never resurrected: a retried operation either reuses the same
// row with progress reset, or (for idempotent operations) short-circuits on a
// prior completed result.
type Job struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
	JobUUID         string         `gorm:"type:varchar(40);uniqueIndex;not null" json:"job_uuid"`
	TenantID        uint           `gorm:"index;not null" json:"tenant_id"`
	DocumentID      *uint          `gorm:"index" json:"document_id,omitempty"`
	Type            JobType        `gorm:"type:varchar(30);index;not null" json:"type"`
	Status          JobStatus      `gorm:"type:varchar(15);index;default:'pending'" json:"status"`
	Progress        int            `gorm:"default:0" json:"progress"` // 0-100, monotonically non-decreasing
	ProgressMessage string         `gorm:"type:text" json:"progress_message,omitempty"`
	InputPayload    datatypes.JSON `gorm:"type:jsonb" json:"input_payload,omitempty"`
	ResultPayload   datatypes.JSON `gorm:"type:jsonb" json:"result_payload,omitempty"`
	ErrorMessage    string         `gorm:"type:text" json:"error_message,omitempty"`
	ErrorDetail     string         `gorm:"type:text" json:"error_detail,omitempty"`
	RetryCount      int            `gorm:"default:0" json:"retry_count"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`

	// Relationships
	Tenant   Tenant    `gorm:"foreignKey:TenantID;constraint:OnDelete:CASCADE" json:"-"`
	Document *Document `gorm:"foreignKey:DocumentID;constraint:OnDelete:SET NULL" json:"-"`
}

// IsTerminal reports whether the job has reached a final state.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// Redis key patterns for the live job-state mirror
const (
	// RedisKeyJobState stores the live job state as JSON
	// Usage: fmt.Sprintf(RedisKeyJobState, jobUUID)
	RedisKeyJobState = "job:state:%s"

	// RedisKeyJobLock is used for distributed locking during idempotent work
	// Usage: fmt.Sprintf(RedisKeyJobLock, logicalKey)
	RedisKeyJobLock = "job:lock:%s"

	// RedisKeyActiveUpload tracks the active upload job for a tenant document
	// Usage: fmt.Sprintf(RedisKeyActiveUpload, tenantID, documentID)
	RedisKeyActiveUpload = "job:active:%d:%d"
)
