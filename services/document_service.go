package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"mime/multipart"
	"os"
	"strings"

	"github.com/sahilchouksey/studymill/model"
	"github.com/sahilchouksey/studymill/services/digitalocean"
	"github.com/sahilchouksey/studymill/utils/pdfvalidation"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// JobEnqueuer hands a persisted job to the worker pool for its type.
type JobEnqueuer interface {
	Enqueue(jobType model.JobType, jobUUID string) error
}

// DocumentService handles document upload and the document_upload pipeline
// stage: extraction, chunking, chapter classification.
type DocumentService struct {
	db         *gorm.DB
	spaces     *digitalocean.SpacesClient
	extractor  *PDFExtractor
	chunker    *Chunker
	classifier *ChapterClassifier
	tracker    *ProgressTracker
	enqueuer   JobEnqueuer
}

// NewDocumentService creates a new document service
func NewDocumentService(db *gorm.DB, spaces *digitalocean.SpacesClient, classifier *ChapterClassifier, chunker *Chunker, tracker *ProgressTracker) *DocumentService {
	return &DocumentService{
		db:         db,
		spaces:     spaces,
		extractor:  NewPDFExtractor(),
		chunker:    chunker,
		classifier: classifier,
		tracker:    tracker,
	}
}

// SetEnqueuer wires the worker pool in after construction. The job runner
// depends on this service, so the reference cannot be set in the constructor.
func (s *DocumentService) SetEnqueuer(e JobEnqueuer) {
	s.enqueuer = e
}

// UploadDocumentRequest represents a request to upload a study document
type UploadDocumentRequest struct {
	TenantID      uint
	CourseID      *uint
	UploadBatchID *uint
	Title         string
	File          multipart.File
	FileHeader    *multipart.FileHeader
}

// uploadJobInput is the document_upload job payload
type uploadJobInput struct {
	DocumentID uint `json:"document_id"`
}

// uploadJobResult is the document_upload job result payload
type uploadJobResult struct {
	DocumentID    uint     `json:"document_id"`
	PageCount     int      `json:"page_count"`
	ChunkCount    int      `json:"chunk_count"`
	ChapterCount  int      `json:"chapter_count"`
	ChapterJobIDs []string `json:"chapter_job_ids,omitempty"`
}

// UploadDocument validates and stages a PDF, creates the Document row and a
// pending document_upload job, and hands the job to the worker pool. Storage
// and database writes form one atomic unit: a database failure removes the
// already-written storage bytes.
func (s *DocumentService) UploadDocument(ctx context.Context, req UploadDocumentRequest) (*model.Document, *model.Job, error) {
	validation, err := pdfvalidation.ValidatePDFFile(req.FileHeader, pdfvalidation.StudyMaterialLimits)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to validate PDF: %w", err)
	}
	if !validation.Valid {
		return nil, nil, fmt.Errorf("invalid study material: %s", validation.Error)
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = strings.TrimSuffix(req.FileHeader.Filename, ".pdf")
	}

	// Stage the PDF in Spaces first
	key := digitalocean.GenerateKey(fmt.Sprintf("tenants/%d/documents", req.TenantID), req.FileHeader.Filename)
	if _, err := req.File.Seek(0, 0); err != nil {
		return nil, nil, fmt.Errorf("failed to rewind upload: %w", err)
	}
	spacesURL, err := s.spaces.UploadFile(ctx, key, req.File, "application/pdf")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to upload to storage: %w", err)
	}

	document := &model.Document{
		TenantID:      req.TenantID,
		CourseID:      req.CourseID,
		UploadBatchID: req.UploadBatchID,
		Title:         title,
		Filename:      req.FileHeader.Filename,
		SpacesURL:     spacesURL,
		SpacesKey:     key,
		FileSize:      req.FileHeader.Size,
		PageCount:     validation.PageCount,
		Status:        model.DocumentStatusUploaded,
	}

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		s.removeStagedFile(ctx, key)
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			s.removeStagedFile(ctx, key)
		}
	}()

	if err := tx.Create(document).Error; err != nil {
		tx.Rollback()
		s.removeStagedFile(ctx, key)
		return nil, nil, fmt.Errorf("failed to create document: %w", err)
	}
	if err := tx.Commit().Error; err != nil {
		s.removeStagedFile(ctx, key)
		return nil, nil, fmt.Errorf("failed to commit document: %w", err)
	}

	input, _ := json.Marshal(uploadJobInput{DocumentID: document.ID})
	job, err := s.tracker.CreateJob(ctx, req.TenantID, &document.ID, model.JobTypeDocumentUpload, input)
	if err != nil {
		return nil, nil, err
	}

	if acquired, slotErr := s.tracker.AcquireUploadSlot(ctx, req.TenantID, document.ID, job.JobUUID); slotErr == nil && !acquired {
		return nil, nil, fmt.Errorf("document %d already has an active upload job", document.ID)
	}

	if s.enqueuer != nil {
		if err := s.enqueuer.Enqueue(model.JobTypeDocumentUpload, job.JobUUID); err != nil {
			return nil, nil, err
		}
	}

	return document, job, nil
}

func (s *DocumentService) removeStagedFile(ctx context.Context, key string) {
	if err := s.spaces.DeleteFile(ctx, key); err != nil {
		log.Printf("DocumentService: failed to remove staged file %s after rollback: %v", key, err)
	}
}

// ProcessUpload runs the document_upload job body: download, extract pages,
// chunk, classify chapters, persist everything and enqueue one
// chapter_extraction job per chapter.
func (s *DocumentService) ProcessUpload(ctx context.Context, job *model.Job) (datatypes.JSON, error) {
	var input uploadJobInput
	if err := json.Unmarshal(job.InputPayload, &input); err != nil {
		return nil, fmt.Errorf("invalid upload job payload: %w", err)
	}

	var document model.Document
	if err := s.db.WithContext(ctx).First(&document, input.DocumentID).Error; err != nil {
		return nil, fmt.Errorf("document %d not found: %w", input.DocumentID, err)
	}
	defer s.tracker.ReleaseUploadSlot(ctx, document.TenantID, document.ID)

	s.db.WithContext(ctx).Model(&document).Update("status", model.DocumentStatusProcessing)
	s.tracker.UpdateProgress(ctx, job.JobUUID, 5, "Downloading source document")

	content, err := s.spaces.DownloadFile(ctx, document.SpacesKey)
	if err != nil {
		s.failDocument(ctx, &document)
		return nil, fmt.Errorf("failed to download document: %w", err)
	}

	// Stage the download to a temp file owned by this job; extraction reads
	// from the staged copy and the file is removed whatever the outcome
	tmpPath, err := stageDocument(document.ID, content)
	if err != nil {
		s.failDocument(ctx, &document)
		return nil, fmt.Errorf("failed to stage document: %w", err)
	}
	defer os.Remove(tmpPath)
	content = nil

	s.tracker.UpdateProgress(ctx, job.JobUUID, 15, "Extracting page text")
	staged, err := os.ReadFile(tmpPath)
	if err != nil {
		s.failDocument(ctx, &document)
		return nil, fmt.Errorf("failed to read staged document: %w", err)
	}
	pages, err := s.extractor.ExtractPages(staged)
	if err != nil {
		s.failDocument(ctx, &document)
		return nil, fmt.Errorf("failed to extract text: %w", err)
	}
	if document.PageCount == 0 {
		s.db.WithContext(ctx).Model(&document).Update("page_count", len(pages))
		document.PageCount = len(pages)
	}

	s.tracker.UpdateProgress(ctx, job.JobUUID, 30, "Chunking document text")
	chunkCount, err := s.persistChunks(ctx, &document, pages)
	if err != nil {
		s.failDocument(ctx, &document)
		return nil, err
	}

	s.tracker.UpdateProgress(ctx, job.JobUUID, 50, "Classifying chapter structure")
	sample := classificationSample(pages)
	classification, err := s.classifier.Classify(ctx, document.Title, sample, document.PageCount)
	if err != nil {
		s.failDocument(ctx, &document)
		return nil, fmt.Errorf("chapter classification failed: %w", err)
	}

	s.tracker.UpdateProgress(ctx, job.JobUUID, 70, "Persisting chapters")
	chapters, err := s.persistChapters(ctx, &document, classification, pages)
	if err != nil {
		s.failDocument(ctx, &document)
		return nil, err
	}

	s.tracker.UpdateProgress(ctx, job.JobUUID, 90, "Scheduling section extraction")
	chapterJobIDs, err := s.enqueueChapterJobs(ctx, &document, chapters)
	if err != nil {
		s.failDocument(ctx, &document)
		return nil, err
	}

	s.db.WithContext(ctx).Model(&document).Updates(map[string]interface{}{
		"status":        model.DocumentStatusStructured,
		"chapter_count": len(chapters),
	})

	result, _ := json.Marshal(uploadJobResult{
		DocumentID:    document.ID,
		PageCount:     document.PageCount,
		ChunkCount:    chunkCount,
		ChapterCount:  len(chapters),
		ChapterJobIDs: chapterJobIDs,
	})
	return result, nil
}

// stageDocument writes downloaded bytes to a job-owned temp file and returns
// its path. The caller removes the file regardless of outcome.
func stageDocument(documentID uint, content []byte) (string, error) {
	tmpFile, err := os.CreateTemp("", fmt.Sprintf("studymill-doc-%d-*.pdf", documentID))
	if err != nil {
		return "", err
	}
	if _, err := tmpFile.Write(content); err != nil {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		return "", err
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpFile.Name())
		return "", err
	}
	return tmpFile.Name(), nil
}

func (s *DocumentService) failDocument(ctx context.Context, document *model.Document) {
	if err := s.db.WithContext(ctx).Model(document).Update("status", model.DocumentStatusFailed).Error; err != nil {
		log.Printf("DocumentService: failed to mark document %d failed: %v", document.ID, err)
	}
}

// persistChunks writes the chunker output. The insert is conflict-tolerant on
// (document_id, content_hash) so a retried job never duplicates chunks.
func (s *DocumentService) persistChunks(ctx context.Context, document *model.Document, pages []PageText) (int, error) {
	chunks := s.chunker.Chunk(pages)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("chunker produced no chunks for document %d", document.ID)
	}

	rows := make([]model.Chunk, 0, len(chunks))
	for _, c := range chunks {
		rows = append(rows, model.Chunk{
			DocumentID:  document.ID,
			SequenceNum: c.Index,
			PageStart:   c.PageStart,
			PageEnd:     c.PageEnd,
			Text:        c.Text,
			TokenCount:  c.TokenCount,
			ContentHash: model.ChunkContentHash(c.PageStart, c.PageEnd, c.Text),
		})
	}

	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(rows, 100).Error; err != nil {
		return 0, fmt.Errorf("failed to persist chunks: %w", err)
	}
	return len(rows), nil
}

// classificationSample returns the first pages of text, capped, as the
// classification prompt input.
func classificationSample(pages []PageText) string {
	const sampleCap = 20_000
	var sb strings.Builder
	for _, p := range pages {
		if sb.Len() >= sampleCap {
			break
		}
		sb.WriteString(fmt.Sprintf("[page %d]\n", p.Page))
		sb.WriteString(NormalizeText(p.Text))
		sb.WriteString("\n\n")
	}
	sample := sb.String()
	if len(sample) > sampleCap {
		sample = sample[:alignRuneStart(sample, sampleCap)]
	}
	return sample
}

// persistChapters writes the classified chapter rows with their raw markdown
// in one transaction.
func (s *DocumentService) persistChapters(ctx context.Context, document *model.Document, classification *ClassificationResult, pages []PageText) ([]model.Chapter, error) {
	var rows []model.Chapter

	if classification.MultiChapter {
		for _, entry := range classification.Chapters {
			number := entry.Number
			rows = append(rows, model.Chapter{
				DocumentID:       document.ID,
				Number:           &number,
				Title:            entry.Title,
				PageStart:        entry.PageStart,
				PageEnd:          entry.PageEnd,
				PageEndEstimated: entry.EndEstimated,
				RawMarkdown:      pageRangeText(pages, entry.PageStart, entry.PageEnd),
			})
		}
	} else {
		title := classification.Title
		if title == "" {
			title = document.Title
		}
		one := 1
		rows = append(rows, model.Chapter{
			DocumentID:  document.ID,
			Number:      &one,
			Title:       title,
			PageStart:   1,
			PageEnd:     document.PageCount,
			RawMarkdown: pageRangeText(pages, 1, document.PageCount),
		})
	}

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	for i := range rows {
		if err := tx.Create(&rows[i]).Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to create chapter %q: %w", rows[i].Title, err)
		}
	}
	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit chapters: %w", err)
	}
	return rows, nil
}

// pageRangeText joins the normalized text of pages in [start,end].
func pageRangeText(pages []PageText, start, end int) string {
	var sb strings.Builder
	for _, p := range pages {
		if p.Page < start || (end > 0 && p.Page > end) {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(NormalizeText(p.Text))
	}
	return sb.String()
}

// enqueueChapterJobs creates one independent chapter_extraction job per
// chapter. Jobs run independently and may complete in any order.
func (s *DocumentService) enqueueChapterJobs(ctx context.Context, document *model.Document, chapters []model.Chapter) ([]string, error) {
	ids := make([]string, 0, len(chapters))
	for _, chapter := range chapters {
		input, _ := json.Marshal(chapterJobInput{ChapterID: chapter.ID})
		job, err := s.tracker.CreateJob(ctx, document.TenantID, &document.ID, model.JobTypeChapterExtraction, input)
		if err != nil {
			return nil, fmt.Errorf("failed to create chapter job: %w", err)
		}
		if s.enqueuer != nil {
			if err := s.enqueuer.Enqueue(model.JobTypeChapterExtraction, job.JobUUID); err != nil {
				return nil, err
			}
		}
		ids = append(ids, job.JobUUID)
	}
	return ids, nil
}
