package services

import (
	"strings"
	"testing"
)

func splitterSections(names ...string) []SectionBoundary {
	sections := make([]SectionBoundary, 0, len(names))
	for i, name := range names {
		sections = append(sections, SectionBoundary{Number: i + 1, Name: name})
	}
	return sections
}

func TestSplitHeadingAnchors(t *testing.T) {
	text := "# Introduction\nOpening prose about the topic.\n\n" +
		"## Core Concepts\nThe main ideas, developed in detail.\n\n" +
		"# Summary\nClosing remarks and recap."

	splitter := NewMarkdownSplitter()
	spans, err := splitter.Split(text, splitterSections("Introduction", "Core Concepts", "Summary"))
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(spans) != 3 {
		t.Fatalf("got %d spans, want 3", len(spans))
	}

	for i, span := range spans {
		if span.Anchor != "heading" {
			t.Errorf("span %d anchor = %q, want heading", i, span.Anchor)
		}
	}
	if !strings.Contains(spans[0].Text, "Opening prose") {
		t.Errorf("span 0 text = %q", spans[0].Text)
	}
	if !strings.Contains(spans[1].Text, "main ideas") {
		t.Errorf("span 1 text = %q", spans[1].Text)
	}
	if !strings.Contains(spans[2].Text, "Closing remarks") {
		t.Errorf("span 2 text = %q", spans[2].Text)
	}
}

func TestSplitBoldAnchors(t *testing.T) {
	text := "**Introduction**\nSome opening prose.\n\n**Methods**\nHow it was done."

	splitter := NewMarkdownSplitter()
	spans, err := splitter.Split(text, splitterSections("Introduction", "Methods"))
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if spans[0].Anchor != "bold" || spans[1].Anchor != "bold" {
		t.Errorf("anchors = %q, %q, want bold, bold", spans[0].Anchor, spans[1].Anchor)
	}
}

func TestSplitSpansNonOverlappingAndCovering(t *testing.T) {
	text := "# Alpha\n" + strings.Repeat("alpha body text. ", 30) + "\n\n" +
		"# Beta\n" + strings.Repeat("beta body text. ", 30) + "\n\n" +
		"# Gamma\n" + strings.Repeat("gamma body text. ", 30)

	splitter := NewMarkdownSplitter()
	spans, err := splitter.Split(text, splitterSections("Alpha", "Beta", "Gamma"))
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	for i := 1; i < len(spans); i++ {
		if spans[i].Start != spans[i-1].End {
			t.Errorf("span %d starts at %d but span %d ends at %d",
				i, spans[i].Start, i-1, spans[i-1].End)
		}
	}
	if spans[len(spans)-1].End != len(text) {
		t.Errorf("last span ends at %d, want %d", spans[len(spans)-1].End, len(text))
	}
	for i, span := range spans {
		if span.Text == "" {
			t.Errorf("span %d has empty text", i)
		}
	}
}

func TestSplitSmartFallbackForMissingNames(t *testing.T) {
	// Names that appear nowhere force the proportional smart boundary
	var sb strings.Builder
	for i := 0; i < 40; i++ {
		sb.WriteString("A sentence of filler prose that ends cleanly. ")
		if i%8 == 7 {
			sb.WriteString("\n\n")
		}
	}
	text := sb.String()

	splitter := NewMarkdownSplitter()
	spans, err := splitter.Split(text, splitterSections("Nonexistent One", "Nonexistent Two", "Nonexistent Three"))
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	for i, span := range spans {
		if span.Anchor != "smart" {
			t.Errorf("span %d anchor = %q, want smart", i, span.Anchor)
		}
		if span.End < span.Start {
			t.Errorf("span %d inverted: [%d,%d)", i, span.Start, span.End)
		}
	}
	// Starts must be strictly ordered so end=next-start keeps spans disjoint
	for i := 1; i < len(spans); i++ {
		if spans[i].Start < spans[i-1].Start {
			t.Errorf("span %d start %d before span %d start %d",
				i, spans[i].Start, i-1, spans[i-1].Start)
		}
	}
}

func TestSplitSmartStartNeverPrecedesPriorSection(t *testing.T) {
	// The first section is anchored by a heading deep in the document and the
	// second section's name appears nowhere, so its start falls back to a
	// smart boundary. The boundary window reaches back over paragraph breaks
	// that precede the heading; the chosen start must still stay behind the
	// first section's, or the first span collapses to nothing.
	var sb strings.Builder
	for i := 0; i < 10; i++ {
		sb.WriteString(strings.Repeat("front matter prose with no heading structure at all. ", 4))
		sb.WriteString("\n\n")
	}
	sb.WriteString(strings.Repeat("one more run of plain prose before the heading line. ", 4))
	sb.WriteString("\n")
	headingAt := sb.Len()
	sb.WriteString("# Zebra Target\n")
	sb.WriteString(strings.Repeat("closing body text that runs on without paragraph breaks ", 10))
	text := sb.String()

	splitter := NewMarkdownSplitter()
	spans, err := splitter.Split(text, splitterSections("Zebra Target", "Missing Section Name"))
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}

	if spans[0].Start != headingAt || spans[0].Anchor != "heading" {
		t.Errorf("span 0 start=%d anchor=%q, want start %d anchor heading",
			spans[0].Start, spans[0].Anchor, headingAt)
	}
	if spans[1].Start <= spans[0].Start {
		t.Errorf("span 1 starts at %d, at or before span 0 at %d", spans[1].Start, spans[0].Start)
	}
	for i, span := range spans {
		if span.Text == "" {
			t.Errorf("span %d has empty trimmed text", i)
		}
	}
}

func TestSplitCaseInsensitiveHeadingMatch(t *testing.T) {
	text := "# INTRODUCTION\nBody text follows here."

	splitter := NewMarkdownSplitter()
	spans, err := splitter.Split(text, splitterSections("Introduction"))
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if spans[0].Anchor != "heading" {
		t.Errorf("anchor = %q, want heading", spans[0].Anchor)
	}
}

func TestSplitEmptyInputs(t *testing.T) {
	splitter := NewMarkdownSplitter()
	if _, err := splitter.Split("", splitterSections("A")); err == nil {
		t.Error("expected error for empty text")
	}
	if _, err := splitter.Split("some text", nil); err == nil {
		t.Error("expected error for no sections")
	}
}

func TestSmartBoundaryPrefersParagraphBreak(t *testing.T) {
	text := "first paragraph text here.\n\nsecond paragraph starts now and continues for a while."
	breakAt := strings.Index(text, "second")

	got := smartBoundary(text, breakAt-5)
	if got != breakAt {
		t.Errorf("smartBoundary = %d, want paragraph break at %d", got, breakAt)
	}
}
