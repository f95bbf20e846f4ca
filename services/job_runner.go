package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sahilchouksey/studymill/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// JobHandler is the body of one job type. It returns the result payload on
// success; the runner owns the terminal state transition.
type JobHandler func(ctx context.Context, job *model.Job) (datatypes.JSON, error)

// WorkerConfig sets the concurrency ceiling for each job type.
type WorkerConfig struct {
	UploadWorkers     int
	ExtractionWorkers int
	LessonWorkers     int
	EvaluationWorkers int
}

// DefaultWorkerConfig returns the default per-type worker counts
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		UploadWorkers:     2,
		ExtractionWorkers: 4,
		LessonWorkers:     4,
		EvaluationWorkers: 2,
	}
}

// JobRunner executes jobs in per-type bounded worker pools. Each pool is a
// semaphore channel; Enqueue never blocks the caller past slot acquisition in
// its own goroutine, so HTTP handlers return immediately after job creation.
type JobRunner struct {
	db       *gorm.DB
	tracker  *ProgressTracker
	handlers map[model.JobType]JobHandler
	sems     map[model.JobType]chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewJobRunner creates a job runner with the given worker configuration.
// Handlers are registered afterwards with Register.
func NewJobRunner(db *gorm.DB, tracker *ProgressTracker, config WorkerConfig) *JobRunner {
	ctx, cancel := context.WithCancel(context.Background())
	return &JobRunner{
		db:       db,
		tracker:  tracker,
		handlers: make(map[model.JobType]JobHandler),
		sems: map[model.JobType]chan struct{}{
			model.JobTypeDocumentUpload:    make(chan struct{}, max(1, config.UploadWorkers)),
			model.JobTypeChapterExtraction: make(chan struct{}, max(1, config.ExtractionWorkers)),
			model.JobTypeLessonGeneration:  make(chan struct{}, max(1, config.LessonWorkers)),
			model.JobTypeEvaluation:        make(chan struct{}, max(1, config.EvaluationWorkers)),
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Register binds a handler to a job type.
func (r *JobRunner) Register(jobType model.JobType, handler JobHandler) {
	r.handlers[jobType] = handler
}

// Enqueue schedules a persisted pending job for execution.
func (r *JobRunner) Enqueue(jobType model.JobType, jobUUID string) error {
	sem, ok := r.sems[jobType]
	if !ok {
		return fmt.Errorf("unknown job type %q", jobType)
	}
	if _, ok := r.handlers[jobType]; !ok {
		return fmt.Errorf("no handler registered for job type %q", jobType)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return fmt.Errorf("job runner is shut down")
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
		case <-r.ctx.Done():
			return
		}
		r.run(jobUUID)
	}()
	return nil
}

// run executes one job end to end. The terminal transition happens exactly
// once: handler panics and errors both route through Fail, success through
// Complete, and both are no-ops if another path already finished the job.
func (r *JobRunner) run(jobUUID string) {
	ctx := r.ctx

	job, err := r.tracker.MarkProcessing(ctx, jobUUID)
	if err != nil {
		if errors.Is(err, ErrJobTerminal) {
			log.Printf("JobRunner: job %s already terminal, skipping", jobUUID)
			return
		}
		log.Printf("JobRunner: failed to start job %s: %v", jobUUID, err)
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("JobRunner: panic in job %s (%s): %v\n%s", jobUUID, job.Type, rec, debug.Stack())
			r.tracker.Fail(ctx, jobUUID, "internal error", fmt.Sprintf("panic: %v", rec))
		}
	}()

	started := time.Now()
	result, err := r.handlers[job.Type](ctx, job)
	if err != nil {
		log.Printf("JobRunner: job %s (%s) failed after %s: %v", jobUUID, job.Type, time.Since(started).Round(time.Millisecond), err)
		if failErr := r.tracker.Fail(ctx, jobUUID, err.Error(), errorDetail(err)); failErr != nil && !errors.Is(failErr, ErrJobTerminal) {
			log.Printf("JobRunner: failed to record failure for job %s: %v", jobUUID, failErr)
		}
		return
	}

	if err := r.tracker.Complete(ctx, jobUUID, result); err != nil && !errors.Is(err, ErrJobTerminal) {
		log.Printf("JobRunner: failed to record completion for job %s: %v", jobUUID, err)
		return
	}
	log.Printf("JobRunner: job %s (%s) completed in %s", jobUUID, job.Type, time.Since(started).Round(time.Millisecond))
}

func errorDetail(err error) string {
	if IsTransientProviderError(err) {
		return "transient provider failure, retry budget exhausted"
	}
	return ""
}

// ResumePending re-enqueues jobs that were pending when the process last
// stopped. Called once at startup after handlers are registered.
func (r *JobRunner) ResumePending(ctx context.Context) error {
	var jobs []model.Job
	if err := r.db.WithContext(ctx).
		Where("status = ?", model.JobStatusPending).
		Order("created_at asc").
		Find(&jobs).Error; err != nil {
		return fmt.Errorf("failed to load pending jobs: %w", err)
	}

	resumed := 0
	for _, job := range jobs {
		if err := r.Enqueue(job.Type, job.JobUUID); err != nil {
			log.Printf("JobRunner: failed to resume job %s: %v", job.JobUUID, err)
			continue
		}
		resumed++
	}
	if resumed > 0 {
		log.Printf("JobRunner: resumed %d pending jobs", resumed)
	}
	return nil
}

// Shutdown stops accepting work and waits for in-flight jobs up to the given
// timeout.
func (r *JobRunner) Shutdown(timeout time.Duration) {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		log.Printf("JobRunner: shutdown timeout after %s, cancelling in-flight jobs", timeout)
	}
	r.cancel()
}
