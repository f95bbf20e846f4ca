package services

import (
	"strings"
	"testing"
)

func TestNormalizeTextRemovesNoiseLines(t *testing.T) {
	input := strings.Join([]string{
		"Chapter One",
		"42",
		"Page 3 of 120",
		"----------",
		"Real content here.",
	}, "\n")

	got := NormalizeText(input)
	if strings.Contains(got, "42") {
		t.Errorf("bare page number survived normalization: %q", got)
	}
	if strings.Contains(got, "Page 3 of 120") {
		t.Errorf("page-of-page footer survived normalization: %q", got)
	}
	if strings.Contains(got, "----") {
		t.Errorf("separator line survived normalization: %q", got)
	}
	if !strings.Contains(got, "Chapter One") || !strings.Contains(got, "Real content here.") {
		t.Errorf("real content lost during normalization: %q", got)
	}
}

func TestNormalizeTextStripsDotLeaders(t *testing.T) {
	got := NormalizeText("Introduction ............. 12")
	if strings.Contains(got, "....") {
		t.Errorf("dot leader survived: %q", got)
	}
	if !strings.Contains(got, "Introduction") {
		t.Errorf("heading label lost: %q", got)
	}
}

func TestNormalizeTextCollapsesBlankRuns(t *testing.T) {
	got := NormalizeText("one\n\n\n\n\ntwo")
	if got != "one\n\ntwo" {
		t.Errorf("NormalizeText = %q, want %q", got, "one\n\ntwo")
	}
}

func TestNormalizeTextHandlesCRLF(t *testing.T) {
	got := NormalizeText("alpha\r\nbeta\rgamma")
	if strings.ContainsAny(got, "\r") {
		t.Errorf("carriage returns survived: %q", got)
	}
	if got != "alpha\nbeta\ngamma" {
		t.Errorf("NormalizeText = %q", got)
	}
}
