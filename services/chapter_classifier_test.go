package services

import (
	"testing"
)

func TestParseClassificationPipeTable(t *testing.T) {
	response := `No | Title | Start
---|-------|------
1 | Introduction | 1
2 | Data Structures | 12
3 | Algorithms | 30
LAST_PAGE: 55`

	result, err := ParseClassificationResponse(response, 60)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !result.MultiChapter {
		t.Fatal("expected multi-chapter result")
	}
	if len(result.Chapters) != 3 {
		t.Fatalf("got %d chapters, want 3", len(result.Chapters))
	}

	want := []ChapterEntry{
		{Number: 1, Title: "Introduction", PageStart: 1, PageEnd: 11},
		{Number: 2, Title: "Data Structures", PageStart: 12, PageEnd: 29},
		{Number: 3, Title: "Algorithms", PageStart: 30, PageEnd: 55},
	}
	for i, w := range want {
		got := result.Chapters[i]
		if got.Number != w.Number || got.Title != w.Title ||
			got.PageStart != w.PageStart || got.PageEnd != w.PageEnd {
			t.Errorf("chapter %d = %+v, want %+v", i, got, w)
		}
		if got.EndEstimated {
			t.Errorf("chapter %d flagged as estimated", i)
		}
	}
}

func TestParseClassificationSpaceTable(t *testing.T) {
	response := "1 Linear Regression 1 14\n2 Logistic Regression 15 28\n3 Neural Networks 29 50"

	result, err := ParseClassificationResponse(response, 50)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !result.MultiChapter || len(result.Chapters) != 3 {
		t.Fatalf("got %+v", result)
	}
	second := result.Chapters[1]
	if second.Title != "Logistic Regression" || second.PageStart != 15 || second.PageEnd != 28 {
		t.Errorf("chapter 2 = %+v", second)
	}
}

func TestParseClassificationDelimitedBlocks(t *testing.T) {
	response := `---CHAPTER_START---
NUMBER: 1
TITLE: Thermodynamics
START_PAGE: 1
END_PAGE: 20
---CHAPTER_END---
---CHAPTER_START---
NUMBER: 2
TITLE: Heat Transfer
START_PAGE: 21
---CHAPTER_END---
LAST_PAGE: 44`

	result, err := ParseClassificationResponse(response, 44)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !result.MultiChapter || len(result.Chapters) != 2 {
		t.Fatalf("got %+v", result)
	}
	if result.Chapters[0].PageEnd != 20 {
		t.Errorf("chapter 1 end = %d, want 20", result.Chapters[0].PageEnd)
	}
	if result.Chapters[1].PageEnd != 44 {
		t.Errorf("chapter 2 end = %d, want 44 from last-page marker", result.Chapters[1].PageEnd)
	}
}

func TestParseDelimitedChaptersSkipsMalformedBlocks(t *testing.T) {
	response := `---CHAPTER_START---
NUMBER: 1
START_PAGE: 1
---CHAPTER_END---
---CHAPTER_START---
NUMBER: 2
TITLE: Valid Chapter
START_PAGE: 10
---CHAPTER_END---`

	entries := ParseDelimitedChapters(response)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Title != "Valid Chapter" {
		t.Errorf("entry = %+v", entries[0])
	}
}

func TestParseClassificationSectionDelimited(t *testing.T) {
	response := `===SECTION: Kinematics===
START_PAGE: 1
END_PAGE: 14
===SECTION: Dynamics===
NUMBER: 2
START_PAGE: 15
===SECTION: Appendix===
LAST_PAGE: 42`

	result, err := ParseClassificationResponse(response, 42)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !result.MultiChapter || len(result.Chapters) != 2 {
		t.Fatalf("got %+v", result)
	}
	first := result.Chapters[0]
	if first.Number != 1 || first.Title != "Kinematics" || first.PageStart != 1 || first.PageEnd != 14 {
		t.Errorf("chapter 1 = %+v", first)
	}
	second := result.Chapters[1]
	if second.Number != 2 || second.Title != "Dynamics" || second.PageStart != 15 || second.PageEnd != 42 {
		t.Errorf("chapter 2 = %+v", second)
	}
}

func TestParseSectionDelimitedSkipsMalformedBlocks(t *testing.T) {
	response := `===SECTION: No Start Page===
END_PAGE: 9
===SECTION: Valid Section===
START_PAGE: 10`

	entries := ParseSectionDelimited(response)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Title != "Valid Section" || entries[0].PageStart != 10 {
		t.Errorf("entry = %+v", entries[0])
	}
}

func TestParseClassificationSingleChapter(t *testing.T) {
	response := "TITLE: Operating System Scheduling\nThis chapter covers process scheduling policies and their tradeoffs."

	result, err := ParseClassificationResponse(response, 18)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if result.MultiChapter {
		t.Fatal("expected single-chapter result")
	}
	if result.Title != "Operating System Scheduling" {
		t.Errorf("title = %q", result.Title)
	}
	if result.Content == "" {
		t.Error("expected non-empty content")
	}
}

func TestParseClassificationUnrecognized(t *testing.T) {
	if _, err := ParseClassificationResponse("", 10); err == nil {
		t.Error("expected error for empty response")
	}
	if _, err := ParseClassificationResponse("no structure here at all", 10); err == nil {
		t.Error("expected error for unrecognized shape")
	}
}

func TestDeriveEndPagesFallbacks(t *testing.T) {
	// No last-page marker: final chapter ends at the page total
	entries := DeriveEndPages([]ChapterEntry{
		{Number: 1, Title: "A", PageStart: 1},
		{Number: 2, Title: "B", PageStart: 10},
	}, 0, 25)
	if entries[0].PageEnd != 9 {
		t.Errorf("chapter 1 end = %d, want 9", entries[0].PageEnd)
	}
	if entries[1].PageEnd != 25 || entries[1].EndEstimated {
		t.Errorf("chapter 2 = %+v, want end 25 not estimated", entries[1])
	}

	// Neither marker nor a usable total: fixed offset, flagged estimated
	entries = DeriveEndPages([]ChapterEntry{
		{Number: 1, Title: "A", PageStart: 40},
	}, 0, 0)
	if entries[0].PageEnd != 50 || !entries[0].EndEstimated {
		t.Errorf("entry = %+v, want end 50 estimated", entries[0])
	}
}

func TestConsolidateChaptersMergesContiguous(t *testing.T) {
	entries := []ChapterEntry{
		{Number: 1, Title: "A", PageStart: 1, PageEnd: 5},
		{Number: 1, Title: "A", PageStart: 6, PageEnd: 10},
		{Number: 2, Title: "B", PageStart: 11, PageEnd: 20},
	}

	out := ConsolidateChapters(entries)
	if len(out) != 2 {
		t.Fatalf("got %d entries, want 2", len(out))
	}
	if out[0].PageStart != 1 || out[0].PageEnd != 10 {
		t.Errorf("merged chapter = %+v", out[0])
	}
}

func TestConsolidateChaptersKeepsNonContiguousSeparate(t *testing.T) {
	entries := []ChapterEntry{
		{Number: 1, Title: "A", PageStart: 1, PageEnd: 10},
		{Number: 2, Title: "B", PageStart: 11, PageEnd: 20},
		{Number: 1, Title: "A", PageStart: 25, PageEnd: 30},
	}

	out := ConsolidateChapters(entries)
	if len(out) != 3 {
		t.Fatalf("got %d entries, want 3: the interrupted chapter must not swallow pages 11-24", len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i].PageStart < out[i-1].PageStart {
			t.Errorf("output not sorted by start page: %+v", out)
		}
	}
	if out[2].Number != 1 || out[2].PageStart != 25 {
		t.Errorf("resumed chapter = %+v", out[2])
	}
}
