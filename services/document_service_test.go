package services

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestStageDocumentRoundTrip(t *testing.T) {
	content := []byte("%PDF-1.4\nfake body bytes\n%%EOF")

	path, err := stageDocument(42, content)
	if err != nil {
		t.Fatalf("stageDocument failed: %v", err)
	}
	defer os.Remove(path)

	if !strings.Contains(path, "studymill-doc-42-") {
		t.Errorf("staged path %q does not carry the document id", path)
	}

	staged, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read staged file: %v", err)
	}
	if !bytes.Equal(staged, content) {
		t.Errorf("staged bytes differ from the download")
	}
}

func TestClassificationSampleCapsAndMarksPages(t *testing.T) {
	pages := []PageText{
		{Page: 1, Text: "First page body text."},
		{Page: 2, Text: "Second page body text."},
	}

	sample := classificationSample(pages)
	if !strings.Contains(sample, "[page 1]") || !strings.Contains(sample, "[page 2]") {
		t.Errorf("sample missing page markers: %q", sample)
	}

	big := make([]PageText, 0, 40)
	for i := 1; i <= 40; i++ {
		big = append(big, PageText{Page: i, Text: strings.Repeat("filler sentence text. ", 50)})
	}
	if got := classificationSample(big); len(got) > 20_000 {
		t.Errorf("sample length %d exceeds the cap", len(got))
	}
}
