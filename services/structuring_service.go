package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/sahilchouksey/studymill/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// StructuringService runs the chapter_extraction pipeline stage: boundary
// detection, markdown splitting and quality scoring for one chapter.
type StructuringService struct {
	db       *gorm.DB
	detector *BoundaryDetector
	splitter *MarkdownSplitter
	tracker  *ProgressTracker
}

func NewStructuringService(db *gorm.DB, detector *BoundaryDetector, tracker *ProgressTracker) *StructuringService {
	return &StructuringService{
		db:       db,
		detector: detector,
		splitter: NewMarkdownSplitter(),
		tracker:  tracker,
	}
}

// chapterJobInput is the chapter_extraction job payload
type chapterJobInput struct {
	ChapterID uint `json:"chapter_id"`
}

// NewChapterJobInput builds the payload for a chapter_extraction job.
func NewChapterJobInput(chapterID uint) datatypes.JSON {
	input, _ := json.Marshal(chapterJobInput{ChapterID: chapterID})
	return input
}

// chapterJobResult is the chapter_extraction job result payload
type chapterJobResult struct {
	ChapterID    uint    `json:"chapter_id"`
	SectionCount int     `json:"section_count"`
	Strategy     string  `json:"strategy"`
	MeanQuality  float64 `json:"mean_quality"`
	Cached       bool    `json:"cached,omitempty"`
}

// ProcessChapter detects section boundaries in a chapter's text, splits the
// markdown into spans and persists the sections in one transaction. A chapter
// whose sections were already generated returns the existing result without
// re-running detection, so retried jobs are idempotent.
func (s *StructuringService) ProcessChapter(ctx context.Context, job *model.Job) (datatypes.JSON, error) {
	var input chapterJobInput
	if err := json.Unmarshal(job.InputPayload, &input); err != nil {
		return nil, fmt.Errorf("invalid chapter job payload: %w", err)
	}

	var chapter model.Chapter
	if err := s.db.WithContext(ctx).First(&chapter, input.ChapterID).Error; err != nil {
		return nil, fmt.Errorf("chapter %d not found: %w", input.ChapterID, err)
	}

	if chapter.SectionsGenerated {
		var count int64
		s.db.WithContext(ctx).Model(&model.Section{}).Where("chapter_id = ?", chapter.ID).Count(&count)
		result, _ := json.Marshal(chapterJobResult{
			ChapterID:    chapter.ID,
			SectionCount: int(count),
			Cached:       true,
		})
		return result, nil
	}

	if chapter.RawMarkdown == "" {
		return nil, fmt.Errorf("chapter %d has no extracted text", chapter.ID)
	}

	s.tracker.UpdateProgress(ctx, job.JobUUID, 20, fmt.Sprintf("Detecting section boundaries in %q", chapter.Title))
	boundaries, err := s.detector.DetectSections(ctx, chapter.RawMarkdown, chapter.PageSpan())
	if err != nil {
		return nil, fmt.Errorf("boundary detection failed for chapter %d: %w", chapter.ID, err)
	}

	s.tracker.UpdateProgress(ctx, job.JobUUID, 55, "Splitting chapter into sections")
	spans, err := s.splitter.Split(chapter.RawMarkdown, boundaries.Sections)
	if err != nil {
		return nil, fmt.Errorf("markdown split failed for chapter %d: %w", chapter.ID, err)
	}

	s.tracker.UpdateProgress(ctx, job.JobUUID, 75, "Scoring and persisting sections")
	sections := make([]model.Section, 0, len(spans))
	var qualitySum float64
	for _, span := range spans {
		if span.Text == "" {
			log.Printf("StructuringService: dropping empty span for section %q in chapter %d",
				span.Section.Name, chapter.ID)
			continue
		}
		score := ScoreExtractionQuality(span, boundaries.Sections, chapter.RawMarkdown)
		qualitySum += score

		section := model.Section{
			DocumentID:   chapter.DocumentID,
			ChapterID:    &chapter.ID,
			SequenceNum:  len(sections) + 1,
			Name:         span.Section.Name,
			Description:  span.Section.Description,
			Markdown:     span.Text,
			QualityScore: score,
		}
		if span.Section.PageStart > 0 {
			start := chapter.PageStart + span.Section.PageStart - 1
			section.PageStart = &start
		}
		if span.Section.PageEnd > 0 {
			end := chapter.PageStart + span.Section.PageEnd - 1
			section.PageEnd = &end
		}
		sections = append(sections, section)
	}
	if len(sections) == 0 {
		return nil, fmt.Errorf("no non-empty sections extracted for chapter %d", chapter.ID)
	}

	if err := s.replaceSections(ctx, &chapter, sections); err != nil {
		return nil, err
	}

	mean := 0.0
	if len(sections) > 0 {
		mean = qualitySum / float64(len(sections))
	}
	log.Printf("StructuringService: chapter %d structured into %d sections via %s (mean quality %.2f)",
		chapter.ID, len(sections), boundaries.Strategy, mean)

	result, _ := json.Marshal(chapterJobResult{
		ChapterID:    chapter.ID,
		SectionCount: len(sections),
		Strategy:     boundaries.Strategy,
		MeanQuality:  mean,
	})
	return result, nil
}

// replaceSections writes the section rows and flips sections_generated in one
// transaction. Any sections left over from a partially-failed earlier attempt
// are removed first so sequence numbers stay gap-free.
func (s *StructuringService) replaceSections(ctx context.Context, chapter *model.Chapter, sections []model.Section) error {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Unscoped().Where("chapter_id = ?", chapter.ID).Delete(&model.Section{}).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to clear stale sections: %w", err)
	}
	for i := range sections {
		if err := tx.Create(&sections[i]).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to create section %q: %w", sections[i].Name, err)
		}
	}
	if err := tx.Model(chapter).Update("sections_generated", true).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to mark chapter structured: %w", err)
	}
	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit sections: %w", err)
	}
	return nil
}
