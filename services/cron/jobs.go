package cron

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/sahilchouksey/studymill/model"
	"github.com/sahilchouksey/studymill/services/digitalocean"
)

// SweepStaleJobs fails jobs that have sat in processing past the stale
// threshold, usually after a crashed worker. The terminal write goes through
// the tracker so a job that finished between the query and the update is left
// alone.
// Runs every 5 minutes.
func (m *CronManager) SweepStaleJobs() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	jobName := "sweep_stale_jobs"
	cutoff := time.Now().Add(-m.staleAfter)

	var staleJobs []model.Job
	err := m.db.WithContext(ctx).
		Where("status = ? AND started_at < ?", model.JobStatusProcessing, cutoff).
		Find(&staleJobs).Error
	if err != nil {
		m.logJobError(jobName, fmt.Errorf("failed to query stale jobs: %w", err))
		return
	}

	if len(staleJobs) == 0 {
		m.logJobComplete(jobName, "No stale jobs found")
		return
	}

	swept := 0
	for _, job := range staleJobs {
		err := m.tracker.Fail(ctx, job.JobUUID, "job timed out",
			fmt.Sprintf("no progress since %s, swept as stale", job.StartedAt.Format(time.RFC3339)))
		if err != nil {
			// Already terminal means the worker finished after our query
			continue
		}

		// A swept upload job leaves its document stuck in processing
		if job.Type == model.JobTypeDocumentUpload && job.DocumentID != nil {
			m.db.WithContext(ctx).Model(&model.Document{}).
				Where("id = ? AND status = ?", *job.DocumentID, model.DocumentStatusProcessing).
				Update("status", model.DocumentStatusFailed)
			m.tracker.ReleaseUploadSlot(ctx, job.TenantID, *job.DocumentID)
		}
		swept++
	}

	m.logJobComplete(jobName, fmt.Sprintf("Swept %d stale jobs", swept))
}

// CleanupStuckUploads removes documents that were staged but never entered the
// pipeline (older than 24 hours, still in uploaded status with no live job).
// The stored bytes are deleted along with the row.
// Runs every 30 minutes.
func (m *CronManager) CleanupStuckUploads() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	jobName := "cleanup_stuck_uploads"
	cutoff := time.Now().Add(-24 * time.Hour)

	var stuckDocuments []model.Document
	err := m.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", model.DocumentStatusUploaded, cutoff).
		Find(&stuckDocuments).Error
	if err != nil {
		m.logJobError(jobName, fmt.Errorf("failed to query stuck documents: %w", err))
		return
	}

	if len(stuckDocuments) == 0 {
		m.logJobComplete(jobName, "No stuck uploads found")
		return
	}

	spacesClient, err := digitalocean.NewSpacesClient(digitalocean.SpacesConfig{
		Region:   os.Getenv("DO_SPACES_REGION"),
		Bucket:   os.Getenv("DO_SPACES_BUCKET"),
		Endpoint: os.Getenv("DO_SPACES_ENDPOINT"),
	})
	if err != nil {
		m.logJobError(jobName, fmt.Errorf("failed to create Spaces client: %w", err))
		return
	}

	cleaned := 0
	failed := 0

	for _, doc := range stuckDocuments {
		// A pending job for this document means it is still queued, not stuck
		var pending int64
		m.db.WithContext(ctx).Model(&model.Job{}).
			Where("document_id = ? AND status IN ?", doc.ID,
				[]model.JobStatus{model.JobStatusPending, model.JobStatusProcessing}).
			Count(&pending)
		if pending > 0 {
			continue
		}

		if doc.SpacesKey != "" {
			if err := spacesClient.DeleteFile(ctx, doc.SpacesKey); err != nil {
				log.Printf("[CRON] Failed to delete file from Spaces for document %d: %v", doc.ID, err)
			}
		}

		if err := m.db.WithContext(ctx).Delete(&doc).Error; err != nil {
			log.Printf("[CRON] Failed to delete document %d: %v", doc.ID, err)
			failed++
			continue
		}
		cleaned++
	}

	m.logJobComplete(jobName, fmt.Sprintf("Cleaned up %d stuck uploads, failed %d", cleaned, failed))
}

// CleanupOldData removes old terminal jobs and stale cron logs to keep the
// database lean.
// Runs daily at 2 AM.
func (m *CronManager) CleanupOldData() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	jobName := "cleanup_old_data"

	jobCutoff := time.Now().Add(-30 * 24 * time.Hour)
	jobResult := m.db.WithContext(ctx).Unscoped().
		Where("status IN ? AND completed_at < ?",
			[]model.JobStatus{model.JobStatusCompleted, model.JobStatusFailed}, jobCutoff).
		Delete(&model.Job{})
	if jobResult.Error != nil {
		m.logJobError(jobName, fmt.Errorf("failed to delete old jobs: %w", jobResult.Error))
		return
	}

	logCutoff := time.Now().Add(-14 * 24 * time.Hour)
	logResult := m.db.WithContext(ctx).Unscoped().
		Where("started_at < ?", logCutoff).
		Delete(&model.CronJobLog{})
	if logResult.Error != nil {
		m.logJobError(jobName, fmt.Errorf("failed to delete old cron logs: %w", logResult.Error))
		return
	}

	m.logJobComplete(jobName, fmt.Sprintf("Deleted %d old jobs and %d old cron logs",
		jobResult.RowsAffected, logResult.RowsAffected))
}
