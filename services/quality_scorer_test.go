package services

import (
	"math"
	"strings"
	"testing"
)

func TestScoreExtractionQualityPerfect(t *testing.T) {
	// Own name present, span is 20% of the document, no sibling leakage
	body := "Graph Traversal\n" + strings.Repeat("breadth first search walks level by level. ", 4)
	fullText := body + strings.Repeat("x", len(body)*4)

	span := SectionSpan{
		Section: SectionBoundary{Number: 1, Name: "Graph Traversal"},
		Text:    body,
	}
	siblings := []SectionBoundary{
		{Number: 1, Name: "Graph Traversal"},
		{Number: 2, Name: "Shortest Paths"},
		{Number: 3, Name: "Minimum Spanning Trees"},
	}

	got := ScoreExtractionQuality(span, siblings, fullText)
	if math.Abs(got-1.0) > 1e-9 {
		t.Errorf("score = %v, want 1.0", got)
	}
}

func TestScoreExtractionQualityOverExtraction(t *testing.T) {
	// Span is the whole document and leaks two sibling names: every
	// component contributes its penalty and the clamp floors the result
	fullText := "unrelated heading one here and unrelated heading two there plus lots of prose"
	span := SectionSpan{
		Section: SectionBoundary{Number: 1, Name: "missing name"},
		Text:    fullText,
	}
	siblings := []SectionBoundary{
		{Number: 2, Name: "unrelated heading one"},
		{Number: 3, Name: "unrelated heading two"},
	}

	got := ScoreExtractionQuality(span, siblings, fullText)
	if got != 0 {
		t.Errorf("score = %v, want 0 after clamping", got)
	}
}

func TestScoreExtractionQualityOneSiblingLeak(t *testing.T) {
	body := "Sorting\nquicksort and mergesort, with a forward reference to Searching."
	fullText := body + strings.Repeat("y", len(body)*4)

	span := SectionSpan{
		Section: SectionBoundary{Number: 1, Name: "Sorting"},
		Text:    body,
	}
	siblings := []SectionBoundary{
		{Number: 1, Name: "Sorting"},
		{Number: 2, Name: "Searching"},
	}

	// 0.3 own name + 0.3 length + 0.2 one sibling
	got := ScoreExtractionQuality(span, siblings, fullText)
	if math.Abs(got-0.8) > 1e-9 {
		t.Errorf("score = %v, want 0.8", got)
	}
}

func TestScoreExtractionQualityEmptyFullText(t *testing.T) {
	span := SectionSpan{Section: SectionBoundary{Number: 1, Name: "Alone"}, Text: "Alone"}

	// No length component, own name and no siblings still count
	got := ScoreExtractionQuality(span, nil, "")
	if math.Abs(got-0.7) > 1e-9 {
		t.Errorf("score = %v, want 0.7", got)
	}
}
