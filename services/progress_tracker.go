package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/sahilchouksey/studymill/model"
	"github.com/sahilchouksey/studymill/utils/cache"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TTL configurations for the Redis live-state mirror
const (
	JobStateTTLSuccess = 1 * time.Hour
	JobStateTTLFailure = 24 * time.Hour
	JobStateTTLPending = 24 * time.Hour
	JobLockTTL         = 5 * time.Minute
)

// ErrJobTerminal is returned when a progress update targets a job that has
// already completed or failed.
var ErrJobTerminal = errors.New("job already reached a terminal state")

// JobState is the live view mirrored to Redis for polling and SSE streams.
type JobState struct {
	JobUUID   string          `json:"job_uuid"`
	Type      model.JobType   `json:"type"`
	Status    model.JobStatus `json:"status"`
	Progress  int             `json:"progress"`
	Message   string          `json:"message,omitempty"`
	Error     string          `json:"error,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ProgressTracker owns the Job lifecycle: the database row is the source of
// truth, Redis carries a live mirror for cheap polling. Progress is
// monotonically non-decreasing and the terminal transition is written exactly
// once.
type ProgressTracker struct {
	db    *gorm.DB
	cache *cache.RedisCache
}

// NewProgressTracker creates a new progress tracker instance
func NewProgressTracker(db *gorm.DB, redisCache *cache.RedisCache) *ProgressTracker {
	return &ProgressTracker{db: db, cache: redisCache}
}

// CreateJob persists a new pending job and mirrors it to Redis.
func (pt *ProgressTracker) CreateJob(ctx context.Context, tenantID uint, documentID *uint, jobType model.JobType, input datatypes.JSON) (*model.Job, error) {
	job := &model.Job{
		JobUUID:      uuid.New().String(),
		TenantID:     tenantID,
		DocumentID:   documentID,
		Type:         jobType,
		Status:       model.JobStatusPending,
		Progress:     0,
		InputPayload: input,
	}

	if err := pt.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	pt.mirror(ctx, job)
	return job, nil
}

// MarkProcessing transitions a pending job to processing and resets progress.
// Also used when a retried attempt reuses the job row.
func (pt *ProgressTracker) MarkProcessing(ctx context.Context, jobUUID string) (*model.Job, error) {
	job, err := pt.GetJob(ctx, jobUUID)
	if err != nil {
		return nil, err
	}
	if job.IsTerminal() {
		return nil, ErrJobTerminal
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":           model.JobStatusProcessing,
		"progress":         0,
		"progress_message": "",
		"started_at":       now,
	}
	if err := pt.db.WithContext(ctx).Model(job).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to mark job processing: %w", err)
	}

	job.Status = model.JobStatusProcessing
	job.Progress = 0
	job.ProgressMessage = ""
	job.StartedAt = &now
	pt.mirror(ctx, job)
	return job, nil
}

// UpdateProgress persists a progress value for a running job. Values lower
// than the already-persisted progress are ignored so observers never see
// progress move backwards. Values are clamped to [0,100].
func (pt *ProgressTracker) UpdateProgress(ctx context.Context, jobUUID string, progress int, message string) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	job, err := pt.GetJob(ctx, jobUUID)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return ErrJobTerminal
	}
	if progress < job.Progress {
		log.Printf("ProgressTracker: ignoring regressing progress %d < %d for job %s", progress, job.Progress, jobUUID)
		return nil
	}

	updates := map[string]interface{}{
		"progress":         progress,
		"progress_message": message,
	}
	if err := pt.db.WithContext(ctx).Model(job).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}

	job.Progress = progress
	job.ProgressMessage = message
	pt.mirror(ctx, job)
	return nil
}

// Complete writes the terminal completed state exactly once.
func (pt *ProgressTracker) Complete(ctx context.Context, jobUUID string, result datatypes.JSON) error {
	return pt.finish(ctx, jobUUID, model.JobStatusCompleted, result, "", "")
}

// Fail writes the terminal failed state exactly once, preserving the original
// error text for diagnostics.
func (pt *ProgressTracker) Fail(ctx context.Context, jobUUID string, errMsg, detail string) error {
	return pt.finish(ctx, jobUUID, model.JobStatusFailed, nil, errMsg, detail)
}

func (pt *ProgressTracker) finish(ctx context.Context, jobUUID string, status model.JobStatus, result datatypes.JSON, errMsg, detail string) error {
	now := time.Now()

	updates := map[string]interface{}{
		"status":       status,
		"progress":     100,
		"completed_at": now,
	}
	if result != nil {
		updates["result_payload"] = result
	}
	if errMsg != "" {
		updates["error_message"] = errMsg
	}
	if detail != "" {
		updates["error_detail"] = detail
	}

	// Guarded update so the terminal transition happens exactly once
	res := pt.db.WithContext(ctx).Model(&model.Job{}).
		Where("job_uuid = ? AND status NOT IN ?", jobUUID, []model.JobStatus{model.JobStatusCompleted, model.JobStatusFailed}).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to finish job: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrJobTerminal
	}

	job, err := pt.GetJob(ctx, jobUUID)
	if err == nil {
		pt.mirror(ctx, job)
	}
	return nil
}

// IncrementRetry bumps the retry counter on the job row.
func (pt *ProgressTracker) IncrementRetry(ctx context.Context, jobUUID string) {
	if err := pt.db.WithContext(ctx).Model(&model.Job{}).
		Where("job_uuid = ?", jobUUID).
		UpdateColumn("retry_count", gorm.Expr("retry_count + 1")).Error; err != nil {
		log.Printf("ProgressTracker: failed to increment retry count for %s: %v", jobUUID, err)
	}
}

// GetJob loads the job row from the database.
func (pt *ProgressTracker) GetJob(ctx context.Context, jobUUID string) (*model.Job, error) {
	var job model.Job
	if err := pt.db.WithContext(ctx).Where("job_uuid = ?", jobUUID).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("job not found: %s", jobUUID)
		}
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	return &job, nil
}

// GetLiveState reads the Redis mirror, falling back to the database when the
// mirror has expired.
func (pt *ProgressTracker) GetLiveState(ctx context.Context, jobUUID string) (*JobState, error) {
	if pt.cache != nil {
		var state JobState
		key := fmt.Sprintf(model.RedisKeyJobState, jobUUID)
		if err := pt.cache.GetJSON(ctx, key, &state); err == nil {
			return &state, nil
		}
	}

	job, err := pt.GetJob(ctx, jobUUID)
	if err != nil {
		return nil, err
	}
	state := stateFromJob(job)
	return &state, nil
}

// AcquireUploadSlot marks an upload job as active for a tenant document.
// Returns false when another upload for the same document is in flight.
func (pt *ProgressTracker) AcquireUploadSlot(ctx context.Context, tenantID, documentID uint, jobUUID string) (bool, error) {
	if pt.cache == nil {
		return true, nil
	}
	key := fmt.Sprintf(model.RedisKeyActiveUpload, tenantID, documentID)
	return pt.cache.SetNX(ctx, key, jobUUID, JobStateTTLPending)
}

// ReleaseUploadSlot clears the active-upload marker.
func (pt *ProgressTracker) ReleaseUploadSlot(ctx context.Context, tenantID, documentID uint) {
	if pt.cache == nil {
		return
	}
	key := fmt.Sprintf(model.RedisKeyActiveUpload, tenantID, documentID)
	if err := pt.cache.Delete(ctx, key); err != nil {
		log.Printf("ProgressTracker: failed to release upload slot for tenant %d doc %d: %v", tenantID, documentID, err)
	}
}

func stateFromJob(job *model.Job) JobState {
	state := JobState{
		JobUUID:   job.JobUUID,
		Type:      job.Type,
		Status:    job.Status,
		Progress:  job.Progress,
		Message:   job.ProgressMessage,
		Error:     job.ErrorMessage,
		UpdatedAt: job.UpdatedAt,
	}
	return state
}

func (pt *ProgressTracker) mirror(ctx context.Context, job *model.Job) {
	if pt.cache == nil {
		return
	}

	ttl := JobStateTTLPending
	switch job.Status {
	case model.JobStatusCompleted:
		ttl = JobStateTTLSuccess
	case model.JobStatusFailed:
		ttl = JobStateTTLFailure
	}

	state := stateFromJob(job)
	state.UpdatedAt = time.Now()
	key := fmt.Sprintf(model.RedisKeyJobState, job.JobUUID)
	if err := pt.cache.SetJSON(ctx, key, state, ttl); err != nil {
		log.Printf("ProgressTracker: failed to mirror job %s to redis: %v", job.JobUUID, err)
	}
}
