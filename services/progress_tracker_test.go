package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/sahilchouksey/studymill/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an in-memory sqlite database with the pipeline schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(
		&model.Tenant{}, &model.Document{}, &model.Chapter{},
		&model.Section{}, &model.Lesson{}, &model.Evaluation{}, &model.Job{},
	); err != nil {
		t.Fatalf("failed to migrate test schema: %v", err)
	}
	return db
}

func seedTenant(t *testing.T, db *gorm.DB) *model.Tenant {
	t.Helper()
	tenant := &model.Tenant{Name: "Test School", Slug: fmt.Sprintf("test-school-%s", t.Name()), IsActive: true}
	if err := db.Create(tenant).Error; err != nil {
		t.Fatalf("failed to seed tenant: %v", err)
	}
	return tenant
}

func TestJobTerminalTransitionExactlyOnce(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	tenant := seedTenant(t, db)
	tracker := NewProgressTracker(db, nil)

	job, err := tracker.CreateJob(ctx, tenant.ID, nil, model.JobTypeLessonGeneration, nil)
	if err != nil {
		t.Fatalf("create job failed: %v", err)
	}
	if _, err := tracker.MarkProcessing(ctx, job.JobUUID); err != nil {
		t.Fatalf("mark processing failed: %v", err)
	}
	if err := tracker.UpdateProgress(ctx, job.JobUUID, 40, "working"); err != nil {
		t.Fatalf("update progress failed: %v", err)
	}

	if err := tracker.Complete(ctx, job.JobUUID, datatypes.JSON(`{"ok":true}`)); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	// The row is terminal now: neither a late failure nor a second
	// completion may rewrite it
	if err := tracker.Fail(ctx, job.JobUUID, "late failure", ""); !errors.Is(err, ErrJobTerminal) {
		t.Errorf("fail after complete = %v, want ErrJobTerminal", err)
	}
	if err := tracker.Complete(ctx, job.JobUUID, nil); !errors.Is(err, ErrJobTerminal) {
		t.Errorf("second complete = %v, want ErrJobTerminal", err)
	}

	got, err := tracker.GetJob(ctx, job.JobUUID)
	if err != nil {
		t.Fatalf("get job failed: %v", err)
	}
	if got.Status != model.JobStatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if got.Progress != 100 {
		t.Errorf("progress = %d, want 100", got.Progress)
	}
	if got.ErrorMessage != "" {
		t.Errorf("error message = %q, want empty after rejected late failure", got.ErrorMessage)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at not set")
	}
}

func TestUpdateProgressNeverRegresses(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	tenant := seedTenant(t, db)
	tracker := NewProgressTracker(db, nil)

	job, err := tracker.CreateJob(ctx, tenant.ID, nil, model.JobTypeDocumentUpload, nil)
	if err != nil {
		t.Fatalf("create job failed: %v", err)
	}
	if _, err := tracker.MarkProcessing(ctx, job.JobUUID); err != nil {
		t.Fatalf("mark processing failed: %v", err)
	}

	if err := tracker.UpdateProgress(ctx, job.JobUUID, 60, "most of the way"); err != nil {
		t.Fatalf("update progress failed: %v", err)
	}
	if err := tracker.UpdateProgress(ctx, job.JobUUID, 30, "stale update"); err != nil {
		t.Fatalf("regressing update returned error: %v", err)
	}

	got, err := tracker.GetJob(ctx, job.JobUUID)
	if err != nil {
		t.Fatalf("get job failed: %v", err)
	}
	if got.Progress != 60 {
		t.Errorf("progress = %d, want 60 after ignored regression", got.Progress)
	}
	if got.ProgressMessage != "most of the way" {
		t.Errorf("message = %q, want the pre-regression message", got.ProgressMessage)
	}

	if err := tracker.Fail(ctx, job.JobUUID, "provider unreachable", "detail"); err != nil {
		t.Fatalf("fail failed: %v", err)
	}
	if err := tracker.UpdateProgress(ctx, job.JobUUID, 99, "too late"); !errors.Is(err, ErrJobTerminal) {
		t.Errorf("update after fail = %v, want ErrJobTerminal", err)
	}
}
