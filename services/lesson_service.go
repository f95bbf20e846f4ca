package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/sahilchouksey/studymill/model"
	"github.com/sahilchouksey/studymill/services/digitalocean"
	"github.com/sahilchouksey/studymill/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// LessonService generates study lessons from structured sections and grades
// answer attempts against them.
type LessonService struct {
	db      *gorm.DB
	client  ExtractionClient
	tracker *ProgressTracker
}

func NewLessonService(db *gorm.DB, client ExtractionClient, tracker *ProgressTracker) *LessonService {
	return &LessonService{db: db, client: client, tracker: tracker}
}

// lessonJobInput is the lesson_generation job payload
type lessonJobInput struct {
	SectionID  uint             `json:"section_id"`
	LessonType model.LessonType `json:"lesson_type"`
}

// lessonJobResult is the lesson_generation job result payload
type lessonJobResult struct {
	LessonID   uint             `json:"lesson_id"`
	SectionID  uint             `json:"section_id"`
	LessonType model.LessonType `json:"lesson_type"`
	Cached     bool             `json:"cached"`
}

// evaluationJobInput is the evaluation job payload
type evaluationJobInput struct {
	LessonID uint            `json:"lesson_id"`
	Answers  json.RawMessage `json:"answers"`
}

// NewLessonJobInput builds the payload for a lesson_generation job.
func NewLessonJobInput(sectionID uint, lessonType model.LessonType) datatypes.JSON {
	input, _ := json.Marshal(lessonJobInput{SectionID: sectionID, LessonType: lessonType})
	return input
}

// NewEvaluationJobInput builds the payload for an evaluation job.
func NewEvaluationJobInput(lessonID uint, answers json.RawMessage) datatypes.JSON {
	input, _ := json.Marshal(evaluationJobInput{LessonID: lessonID, Answers: answers})
	return input
}

// evaluationJobResult is the evaluation job result payload
type evaluationJobResult struct {
	EvaluationID uint    `json:"evaluation_id"`
	LessonID     uint    `json:"lesson_id"`
	Score        float64 `json:"score"`
}

var lessonPrompts = map[model.LessonType]string{
	model.LessonTypeSummary: `Write a study summary of the provided section. Respond with JSON:
{"title": "...", "summary": "...", "key_points": ["...", "..."]}`,
	model.LessonTypeFlashcards: `Create flashcards from the provided section. Respond with JSON:
{"title": "...", "cards": [{"front": "...", "back": "..."}]}`,
	model.LessonTypeQuiz: `Create a multiple-choice quiz from the provided section. Respond with JSON:
{"title": "...", "questions": [{"question": "...", "options": ["...", "...", "...", "..."], "correct_index": 0, "explanation": "..."}]}`,
	model.LessonTypeNotes: `Write structured study notes for the provided section. Respond with JSON:
{"title": "...", "notes": [{"heading": "...", "body": "..."}]}`,
}

// ValidLessonType reports whether t is a supported lesson type.
func ValidLessonType(t model.LessonType) bool {
	_, ok := lessonPrompts[t]
	return ok
}

// GenerateLesson runs the lesson_generation job body. Generation is
// idempotent on (section_id, lesson_type): an existing lesson is returned
// with cached set instead of regenerating, and a concurrent duplicate insert
// resolves to whichever row won.
func (s *LessonService) GenerateLesson(ctx context.Context, job *model.Job) (datatypes.JSON, error) {
	var input lessonJobInput
	if err := json.Unmarshal(job.InputPayload, &input); err != nil {
		return nil, fmt.Errorf("invalid lesson job payload: %w", err)
	}
	if !ValidLessonType(input.LessonType) {
		return nil, fmt.Errorf("unsupported lesson type %q", input.LessonType)
	}

	if existing := s.findExisting(ctx, input.SectionID, input.LessonType); existing != nil {
		return marshalLessonResult(existing, true), nil
	}

	var section model.Section
	if err := s.db.WithContext(ctx).First(&section, input.SectionID).Error; err != nil {
		return nil, fmt.Errorf("section %d not found: %w", input.SectionID, err)
	}

	s.tracker.UpdateProgress(ctx, job.JobUUID, 20, fmt.Sprintf("Generating %s for %q", input.LessonType, section.Name))
	content, title, err := s.generateContent(ctx, job.JobUUID, &section, input.LessonType)
	if err != nil {
		return nil, err
	}

	s.tracker.UpdateProgress(ctx, job.JobUUID, 85, "Saving lesson")
	lesson := &model.Lesson{
		TenantID:   job.TenantID,
		SectionID:  section.ID,
		LessonType: input.LessonType,
		Title:      title,
		Content:    content,
	}
	if err := s.db.WithContext(ctx).Create(lesson).Error; err != nil {
		// A concurrent job for the same pair may have inserted first. The
		// unique index rejects the duplicate; return the winner.
		if isUniqueViolation(err) {
			if winner := s.findExisting(ctx, input.SectionID, input.LessonType); winner != nil {
				log.Printf("LessonService: lesson for section %d type %s already generated, returning existing row",
					input.SectionID, input.LessonType)
				return marshalLessonResult(winner, true), nil
			}
		}
		return nil, fmt.Errorf("failed to save lesson: %w", err)
	}

	return marshalLessonResult(lesson, false), nil
}

func (s *LessonService) findExisting(ctx context.Context, sectionID uint, lessonType model.LessonType) *model.Lesson {
	var lesson model.Lesson
	err := s.db.WithContext(ctx).
		Where("section_id = ? AND lesson_type = ?", sectionID, lessonType).
		First(&lesson).Error
	if err != nil {
		return nil
	}
	return &lesson
}

func marshalLessonResult(lesson *model.Lesson, cached bool) datatypes.JSON {
	result, _ := json.Marshal(lessonJobResult{
		LessonID:   lesson.ID,
		SectionID:  lesson.SectionID,
		LessonType: lesson.LessonType,
		Cached:     cached,
	})
	return result
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "duplicate key") ||
		strings.Contains(errStr, "unique constraint") ||
		strings.Contains(errStr, "23505")
}

// generateContent asks the extraction provider for the lesson JSON, retrying
// transient failures with backoff.
func (s *LessonService) generateContent(ctx context.Context, jobUUID string, section *model.Section, lessonType model.LessonType) (datatypes.JSON, string, error) {
	systemPrompt := lessonPrompts[lessonType] + "\nRespond with only the JSON object, no commentary."
	userPrompt := fmt.Sprintf("Section: %s\n\n%s", section.Name, section.Markdown)

	var payload map[string]interface{}
	err := withProviderRetry(ctx, func(ctx context.Context) error {
		response, err := s.client.SimpleCompletion(ctx, systemPrompt, userPrompt,
			digitalocean.WithResponseFormatJSON())
		if err != nil {
			return err
		}
		return utils.ExtractJSONTo(response, &payload)
	}, func(attempt int, err error) {
		s.tracker.IncrementRetry(ctx, jobUUID)
		s.tracker.UpdateProgress(ctx, jobUUID, 20, fmt.Sprintf("Provider busy, retrying (attempt %d)", attempt+1))
	})
	if err != nil {
		return nil, "", fmt.Errorf("lesson generation failed: %w", err)
	}

	title, _ := payload["title"].(string)
	if title == "" {
		title = section.Name
	}
	content, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode lesson content: %w", err)
	}
	return content, title, nil
}

// EvaluateAnswers runs the evaluation job body: grade the submitted answers
// against the lesson content and persist the scored attempt.
func (s *LessonService) EvaluateAnswers(ctx context.Context, job *model.Job) (datatypes.JSON, error) {
	var input evaluationJobInput
	if err := json.Unmarshal(job.InputPayload, &input); err != nil {
		return nil, fmt.Errorf("invalid evaluation job payload: %w", err)
	}
	if len(input.Answers) == 0 {
		return nil, fmt.Errorf("evaluation job %s has no answers", job.JobUUID)
	}

	var lesson model.Lesson
	if err := s.db.WithContext(ctx).First(&lesson, input.LessonID).Error; err != nil {
		return nil, fmt.Errorf("lesson %d not found: %w", input.LessonID, err)
	}

	s.tracker.UpdateProgress(ctx, job.JobUUID, 30, "Grading answers")
	score, feedback, err := s.gradeAnswers(ctx, job.JobUUID, &lesson, input.Answers)
	if err != nil {
		return nil, err
	}

	evaluation := &model.Evaluation{
		TenantID: job.TenantID,
		LessonID: lesson.ID,
		Answers:  datatypes.JSON(input.Answers),
		Score:    score,
		Feedback: feedback,
	}
	if err := s.db.WithContext(ctx).Create(evaluation).Error; err != nil {
		return nil, fmt.Errorf("failed to save evaluation: %w", err)
	}

	result, _ := json.Marshal(evaluationJobResult{
		EvaluationID: evaluation.ID,
		LessonID:     lesson.ID,
		Score:        score,
	})
	return result, nil
}

type gradingResponse struct {
	Score    float64                  `json:"score"`
	Feedback []map[string]interface{} `json:"feedback"`
}

func (s *LessonService) gradeAnswers(ctx context.Context, jobUUID string, lesson *model.Lesson, answers json.RawMessage) (float64, datatypes.JSON, error) {
	systemPrompt := `Grade the learner's answers against the lesson content. Respond with JSON:
{"score": 0.0, "feedback": [{"question": "...", "verdict": "correct|partial|incorrect", "comment": "..."}]}
Score is the fraction of credit earned in [0,1]. Respond with only the JSON object.`
	userPrompt := fmt.Sprintf("Lesson (%s):\n%s\n\nAnswers:\n%s", lesson.LessonType, string(lesson.Content), string(answers))

	var graded gradingResponse
	err := withProviderRetry(ctx, func(ctx context.Context) error {
		response, err := s.client.SimpleCompletion(ctx, systemPrompt, userPrompt,
			digitalocean.WithResponseFormatJSON())
		if err != nil {
			return err
		}
		return utils.ExtractJSONTo(response, &graded)
	}, func(attempt int, err error) {
		s.tracker.IncrementRetry(ctx, jobUUID)
	})
	if err != nil {
		return 0, nil, fmt.Errorf("answer grading failed: %w", err)
	}

	if graded.Score < 0 {
		graded.Score = 0
	}
	if graded.Score > 1 {
		graded.Score = 1
	}
	feedback, _ := json.Marshal(graded.Feedback)
	return graded.Score, feedback, nil
}
