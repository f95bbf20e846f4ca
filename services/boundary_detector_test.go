package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/sahilchouksey/studymill/services/digitalocean"
)

// fakeExtractionClient returns canned responses in order, then repeats the
// last one.
type fakeExtractionClient struct {
	responses []string
	err       error
	calls     int
}

func (f *fakeExtractionClient) SimpleCompletion(ctx context.Context, systemPrompt, userPrompt string, options ...digitalocean.InferenceOption) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	idx := f.calls - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], nil
}

func structuredChapterText() string {
	var sb strings.Builder
	sb.WriteString("1.1 Introduction\n")
	sb.WriteString(strings.Repeat("This opening part explains what the subject is about and why it matters. ", 5))
	sb.WriteString("\n\n1.2 Core Concepts\n")
	sb.WriteString(strings.Repeat("Here the fundamental ideas are developed one by one with worked examples. ", 5))
	sb.WriteString("\n\n1.3 Summary\n")
	sb.WriteString(strings.Repeat("The closing part restates the key results and points to further reading. ", 5))
	return sb.String()
}

func TestDetectSectionsTOCScan(t *testing.T) {
	detector := NewBoundaryDetector(nil)

	result, err := detector.DetectSections(context.Background(), structuredChapterText(), 3)
	if err != nil {
		t.Fatalf("DetectSections failed: %v", err)
	}
	if result.Strategy != "toc_scan" {
		t.Fatalf("strategy = %q, want toc_scan", result.Strategy)
	}
	if len(result.Sections) != 3 {
		t.Fatalf("got %d sections, want 3", len(result.Sections))
	}

	wantNames := []string{"1.1 Introduction", "1.2 Core Concepts", "1.3 Summary"}
	for i, want := range wantNames {
		if result.Sections[i].Name != want {
			t.Errorf("section %d name = %q, want %q", i, result.Sections[i].Name, want)
		}
		if result.Sections[i].Number != i+1 {
			t.Errorf("section %d number = %d, want %d", i, result.Sections[i].Number, i+1)
		}
	}
}

func TestDetectSectionsTOCRejectsTooFewHeadings(t *testing.T) {
	detector := NewBoundaryDetector(nil)
	text := "1.1 Introduction\n" + strings.Repeat("plain body prose without any headings. ", 50)

	result, err := detector.DetectSections(context.Background(), text, 10)
	if err != nil {
		t.Fatalf("DetectSections failed: %v", err)
	}
	if result.Strategy != "equal_division" {
		t.Errorf("strategy = %q, want equal_division (one heading is below the scan minimum)", result.Strategy)
	}
}

func TestDetectSectionsModelAssisted(t *testing.T) {
	client := &fakeExtractionClient{responses: []string{
		`{"sections":[
			{"number":1,"name":"Getting Started","description":"Basics."},
			{"number":2,"name":"Advanced Usage","description":"Deeper material."},
			{"number":3,"name":"Troubleshooting Guide","description":"Common problems."}
		]}`,
	}}
	detector := NewBoundaryDetector(client)
	text := strings.Repeat("unstructured prose with no recognizable headings whatsoever. ", 100)

	result, err := detector.DetectSections(context.Background(), text, 20)
	if err != nil {
		t.Fatalf("DetectSections failed: %v", err)
	}
	if result.Strategy != "model_assisted" {
		t.Fatalf("strategy = %q, want model_assisted", result.Strategy)
	}
	if len(result.Sections) != 3 {
		t.Fatalf("got %d sections, want 3", len(result.Sections))
	}
	if result.Sections[0].Name != "Getting Started" {
		t.Errorf("first section = %q", result.Sections[0].Name)
	}
}

func TestDetectSectionsModelRejectsInvalidNames(t *testing.T) {
	// All returned names fail the validity heuristic, so the model strategy
	// must be rejected and the fallback used
	client := &fakeExtractionClient{responses: []string{
		`{"sections":[{"number":1,"name":"42"},{"number":2,"name":"NASA"}]}`,
	}}
	detector := NewBoundaryDetector(client)
	text := strings.Repeat("unstructured prose with no recognizable headings whatsoever. ", 100)

	result, err := detector.DetectSections(context.Background(), text, 20)
	if err != nil {
		t.Fatalf("DetectSections failed: %v", err)
	}
	if result.Strategy != "equal_division" {
		t.Errorf("strategy = %q, want equal_division", result.Strategy)
	}
}

func TestDetectSectionsFallbackOnProviderError(t *testing.T) {
	client := &fakeExtractionClient{err: errors.New("invalid api key")}
	detector := NewBoundaryDetector(client)
	text := strings.Repeat("unstructured prose with no recognizable headings whatsoever. ", 100)

	result, err := detector.DetectSections(context.Background(), text, 40)
	if err != nil {
		t.Fatalf("DetectSections failed: %v", err)
	}
	if result.Strategy != "equal_division" {
		t.Fatalf("strategy = %q, want equal_division", result.Strategy)
	}
	// 40 pages / 5 = 8 parts
	if len(result.Sections) != 8 {
		t.Errorf("got %d sections, want 8", len(result.Sections))
	}
}

func TestDetectSectionsEmptyText(t *testing.T) {
	detector := NewBoundaryDetector(nil)
	if _, err := detector.DetectSections(context.Background(), "   ", 5); err == nil {
		t.Error("expected error for empty text")
	}
}

func TestSectionCountForPages(t *testing.T) {
	tests := []struct {
		pages int
		want  int
	}{
		{5, 3},
		{10, 3},
		{11, 6},
		{30, 6},
		{31, 9},
		{500, 9},
	}
	for _, tt := range tests {
		if got := sectionCountForPages(tt.pages); got != tt.want {
			t.Errorf("sectionCountForPages(%d) = %d, want %d", tt.pages, got, tt.want)
		}
	}
}

func TestEqualDivisionCoversAllPages(t *testing.T) {
	for _, pages := range []int{1, 4, 15, 40, 100} {
		sections := equalDivision(pages)
		if len(sections) < 1 {
			t.Fatalf("pages=%d: no sections", pages)
		}
		if len(sections) > fallbackMaxParts {
			t.Errorf("pages=%d: %d parts exceeds maximum %d", pages, len(sections), fallbackMaxParts)
		}

		if sections[0].PageStart != 1 {
			t.Errorf("pages=%d: first part starts at %d", pages, sections[0].PageStart)
		}
		if last := sections[len(sections)-1]; last.PageEnd != pages {
			t.Errorf("pages=%d: last part ends at %d", pages, last.PageEnd)
		}
		for i := 1; i < len(sections); i++ {
			if sections[i].PageStart != sections[i-1].PageEnd+1 {
				t.Errorf("pages=%d: gap between part %d and %d", pages, i, i+1)
			}
		}
	}
}

func TestSampleTextMultibyteSafe(t *testing.T) {
	// Over the full-text limit with two-byte runes on odd offsets, so every
	// fixed sampling offset would land mid-rune without boundary alignment
	text := "x" + strings.Repeat("é", 60_000)

	sample := sampleText(text)
	if !utf8.ValidString(sample) {
		t.Error("composite sample contains invalid UTF-8 at slice edges")
	}
	if len(sample) >= len(text) {
		t.Errorf("sample length %d not reduced from %d", len(sample), len(text))
	}
}
