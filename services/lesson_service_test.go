package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sahilchouksey/studymill/model"
	"github.com/sahilchouksey/studymill/services/digitalocean"
	"gorm.io/gorm"
)

// scriptedLessonClient returns a fixed response and can run a hook before
// answering, to interleave database writes with an in-flight generation.
type scriptedLessonClient struct {
	response string
	onCall   func()
	calls    int
}

func (f *scriptedLessonClient) SimpleCompletion(ctx context.Context, systemPrompt, userPrompt string, options ...digitalocean.InferenceOption) (string, error) {
	f.calls++
	if f.onCall != nil {
		f.onCall()
	}
	return f.response, nil
}

func seedSection(t *testing.T, db *gorm.DB, tenantID uint) *model.Section {
	t.Helper()
	doc := &model.Document{
		TenantID:  tenantID,
		Title:     "Mechanics Notes",
		Filename:  "mechanics.pdf",
		SpacesURL: "https://example.test/mechanics.pdf",
		SpacesKey: "docs/mechanics.pdf",
	}
	if err := db.Create(doc).Error; err != nil {
		t.Fatalf("failed to seed document: %v", err)
	}
	section := &model.Section{
		DocumentID:  doc.ID,
		SequenceNum: 1,
		Name:        "Newton's Laws",
		Markdown:    "## Newton's Laws\nAn object in motion stays in motion unless acted on by a force.",
	}
	if err := db.Create(section).Error; err != nil {
		t.Fatalf("failed to seed section: %v", err)
	}
	return section
}

func newLessonJob(t *testing.T, tracker *ProgressTracker, tenantID, sectionID uint, lessonType model.LessonType) *model.Job {
	t.Helper()
	job, err := tracker.CreateJob(context.Background(), tenantID, nil,
		model.JobTypeLessonGeneration, NewLessonJobInput(sectionID, lessonType))
	if err != nil {
		t.Fatalf("failed to create lesson job: %v", err)
	}
	return job
}

func TestGenerateLessonIdempotentPerSectionAndType(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	tenant := seedTenant(t, db)
	section := seedSection(t, db, tenant.ID)
	tracker := NewProgressTracker(db, nil)
	client := &scriptedLessonClient{response: `{"title":"Newton's Laws","summary":"Forces and motion.","key_points":["inertia"]}`}
	svc := NewLessonService(db, client, tracker)

	first := newLessonJob(t, tracker, tenant.ID, section.ID, model.LessonTypeSummary)
	out, err := svc.GenerateLesson(ctx, first)
	if err != nil {
		t.Fatalf("first generation failed: %v", err)
	}
	var res lessonJobResult
	if err := json.Unmarshal(out, &res); err != nil {
		t.Fatalf("bad result payload: %v", err)
	}
	if res.Cached {
		t.Error("first generation reported cached")
	}
	if client.calls != 1 {
		t.Fatalf("provider calls = %d, want 1", client.calls)
	}

	second := newLessonJob(t, tracker, tenant.ID, section.ID, model.LessonTypeSummary)
	out, err = svc.GenerateLesson(ctx, second)
	if err != nil {
		t.Fatalf("repeat generation failed: %v", err)
	}
	var repeat lessonJobResult
	if err := json.Unmarshal(out, &repeat); err != nil {
		t.Fatalf("bad result payload: %v", err)
	}
	if !repeat.Cached {
		t.Error("repeat generation did not report cached")
	}
	if repeat.LessonID != res.LessonID {
		t.Errorf("repeat returned lesson %d, want existing lesson %d", repeat.LessonID, res.LessonID)
	}
	if client.calls != 1 {
		t.Errorf("provider calls = %d after repeat, want still 1", client.calls)
	}

	var count int64
	db.Model(&model.Lesson{}).Where("section_id = ?", section.ID).Count(&count)
	if count != 1 {
		t.Errorf("lesson rows = %d, want 1", count)
	}
}

func TestGenerateLessonConcurrentDuplicateResolvesToWinner(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	tenant := seedTenant(t, db)
	section := seedSection(t, db, tenant.ID)
	tracker := NewProgressTracker(db, nil)

	// The hook inserts a competing lesson while generation is in flight, so
	// the service's own insert hits the unique index and must yield to the
	// stored row
	winner := &model.Lesson{
		TenantID:   tenant.ID,
		SectionID:  section.ID,
		LessonType: model.LessonTypeQuiz,
		Title:      "Quiz: Newton's Laws",
		Content:    []byte(`{"title":"Quiz: Newton's Laws","questions":[]}`),
	}
	client := &scriptedLessonClient{
		response: `{"title":"Quiz: Newton's Laws","questions":[{"question":"?","options":["a","b","c","d"],"correct_index":0,"explanation":""}]}`,
		onCall: func() {
			if err := db.Create(winner).Error; err != nil {
				t.Errorf("failed to insert competing lesson: %v", err)
			}
		},
	}
	svc := NewLessonService(db, client, tracker)

	job := newLessonJob(t, tracker, tenant.ID, section.ID, model.LessonTypeQuiz)
	out, err := svc.GenerateLesson(ctx, job)
	if err != nil {
		t.Fatalf("generation failed: %v", err)
	}
	var res lessonJobResult
	if err := json.Unmarshal(out, &res); err != nil {
		t.Fatalf("bad result payload: %v", err)
	}
	if !res.Cached {
		t.Error("losing insert did not report the winner as cached")
	}
	if res.LessonID != winner.ID {
		t.Errorf("result lesson = %d, want winner %d", res.LessonID, winner.ID)
	}

	var count int64
	db.Model(&model.Lesson{}).Where("section_id = ? AND lesson_type = ?", section.ID, model.LessonTypeQuiz).Count(&count)
	if count != 1 {
		t.Errorf("lesson rows = %d, want 1", count)
	}
}

func TestIsUniqueViolationMatchesDatabaseError(t *testing.T) {
	db := newTestDB(t)
	tenant := seedTenant(t, db)
	section := seedSection(t, db, tenant.ID)

	lesson := model.Lesson{
		TenantID:   tenant.ID,
		SectionID:  section.ID,
		LessonType: model.LessonTypeSummary,
		Title:      "Summary",
		Content:    []byte(`{}`),
	}
	if err := db.Create(&lesson).Error; err != nil {
		t.Fatalf("first insert failed: %v", err)
	}

	dup := model.Lesson{
		TenantID:   tenant.ID,
		SectionID:  section.ID,
		LessonType: model.LessonTypeSummary,
		Title:      "Summary again",
		Content:    []byte(`{}`),
	}
	err := db.Create(&dup).Error
	if err == nil {
		t.Fatal("duplicate insert succeeded, unique index missing")
	}
	if !isUniqueViolation(err) {
		t.Errorf("isUniqueViolation(%v) = false", err)
	}
}
