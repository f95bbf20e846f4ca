package cron

import (
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sahilchouksey/studymill/database"
	"github.com/sahilchouksey/studymill/model"
	"github.com/sahilchouksey/studymill/services"
	"gorm.io/gorm"
)

// Advisory lock keys, one per maintenance job. Taken through the dedicated
// postgres session so only one instance runs each sweep.
const (
	lockKeyStaleJobSweep  int64 = 730001
	lockKeyStuckUploads   int64 = 730002
	lockKeyOldDataCleanup int64 = 730003
)

// CronManager manages all scheduled maintenance jobs
type CronManager struct {
	cron       *cron.Cron
	db         *gorm.DB
	pg         *database.PostgreSQLStore
	tracker    *services.ProgressTracker
	staleAfter time.Duration
}

// NewCronManager creates a new cron manager. staleAfterMinutes controls how
// long a job may sit in processing before the sweep fails it.
func NewCronManager(db *gorm.DB, pg *database.PostgreSQLStore, tracker *services.ProgressTracker, staleAfterMinutes int) *CronManager {
	// Create cron with seconds precision
	c := cron.New(cron.WithSeconds())

	if staleAfterMinutes <= 0 {
		staleAfterMinutes = 30
	}

	return &CronManager{
		cron:       c,
		db:         db,
		pg:         pg,
		tracker:    tracker,
		staleAfter: time.Duration(staleAfterMinutes) * time.Minute,
	}
}

// Start starts all cron jobs
func (m *CronManager) Start() error {
	log.Println("Starting cron jobs...")

	// Register all jobs
	if err := m.registerJobs(); err != nil {
		return err
	}

	// Start the cron scheduler
	m.cron.Start()

	log.Println("Cron jobs started successfully")
	return nil
}

// Stop stops all cron jobs
func (m *CronManager) Stop() {
	log.Println("Stopping cron jobs...")
	ctx := m.cron.Stop()
	<-ctx.Done()
	log.Println("Cron jobs stopped")
}

// registerJobs registers all cron jobs with their schedules
func (m *CronManager) registerJobs() error {
	// 1. Every 5 minutes: fail jobs stuck in processing
	_, err := m.cron.AddFunc("0 */5 * * * *", func() {
		m.withLock(lockKeyStaleJobSweep, "sweep_stale_jobs", m.SweepStaleJobs)
	})
	if err != nil {
		return err
	}

	// 2. Every 30 minutes: clean up uploads that never entered the pipeline
	_, err = m.cron.AddFunc("0 */30 * * * *", func() {
		m.withLock(lockKeyStuckUploads, "cleanup_stuck_uploads", m.CleanupStuckUploads)
	})
	if err != nil {
		return err
	}

	// 3. Daily at 2 AM: cleanup old terminal jobs and cron logs
	_, err = m.cron.AddFunc("0 0 2 * * *", func() {
		m.withLock(lockKeyOldDataCleanup, "cleanup_old_data", m.CleanupOldData)
	})
	if err != nil {
		return err
	}

	log.Println("All cron jobs registered successfully")
	return nil
}

// withLock runs job under a postgres advisory lock so that exactly one
// instance performs each sweep. A held lock means another instance is already
// on it; skip silently.
func (m *CronManager) withLock(key int64, jobName string, job func()) {
	acquired, err := m.pg.TryAdvisoryLock(key)
	if err != nil {
		log.Printf("[CRON] Failed to acquire lock for %s: %v", jobName, err)
		return
	}
	if !acquired {
		return
	}
	defer func() {
		if err := m.pg.AdvisoryUnlock(key); err != nil {
			log.Printf("[CRON] Failed to release lock for %s: %v", jobName, err)
		}
	}()

	m.logJobStart(jobName)
	job()
}

// logJobStart logs the start of a cron job
func (m *CronManager) logJobStart(jobName string) {
	log.Printf("[CRON] Starting job: %s at %s", jobName, time.Now().Format(time.RFC3339))

	// Log to database
	cronLog := model.CronJobLog{
		JobName:   jobName,
		Status:    "running",
		StartedAt: time.Now(),
	}
	m.db.Create(&cronLog)
}

// logJobComplete logs successful completion of a cron job
func (m *CronManager) logJobComplete(jobName string, message string) {
	log.Printf("[CRON] Completed job: %s - %s", jobName, message)

	// Update database log
	m.db.Model(&model.CronJobLog{}).
		Where("job_name = ? AND status = ?", jobName, "running").
		Order("started_at DESC").
		Limit(1).
		Updates(map[string]interface{}{
			"status":       "completed",
			"completed_at": time.Now(),
			"message":      message,
		})
}

// logJobError logs a cron job error
func (m *CronManager) logJobError(jobName string, err error) {
	log.Printf("[CRON] Error in job: %s - %v", jobName, err)

	// Update database log
	m.db.Model(&model.CronJobLog{}).
		Where("job_name = ? AND status = ?", jobName, "running").
		Order("started_at DESC").
		Limit(1).
		Updates(map[string]interface{}{
			"status":       "failed",
			"completed_at": time.Now(),
			"error_msg":    err.Error(),
		})
}
