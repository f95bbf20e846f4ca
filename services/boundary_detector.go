package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/sahilchouksey/studymill/services/digitalocean"
	"github.com/sahilchouksey/studymill/utils"
)

const (
	// TOC scan acceptance window
	tocMinHeadings = 3
	tocMaxHeadings = 30
	// Lines per estimated page when no real page data is available
	linesPerPage = 50

	// Model-assisted sampling
	fullTextLimit   = 100_000
	sampleSliceSize = 10_000

	// Model-assisted validation bounds
	modelMinSections = 2
	modelMaxSections = 15

	// Equal-division fallback bounds
	fallbackMinParts = 3
	fallbackMaxParts = 8
)

// SectionBoundary describes one detected structural unit of a document.
type SectionBoundary struct {
	Number      int    `json:"number"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	PageStart   int    `json:"page_start,omitempty"`
	PageEnd     int    `json:"page_end,omitempty"`
}

// BoundaryResult carries the detected sections and which strategy produced
// them.
type BoundaryResult struct {
	Sections []SectionBoundary
	Strategy string // "toc_scan", "model_assisted", "equal_division"
}

// BoundaryDetector produces an ordered section list for a document using
// three escalating strategies: table-of-contents pattern matching,
// model-assisted extraction, equal-division fallback.
type BoundaryDetector struct {
	client ExtractionClient
}

// NewBoundaryDetector creates a boundary detector backed by the given
// extraction client. A nil client disables the model-assisted strategy.
func NewBoundaryDetector(client ExtractionClient) *BoundaryDetector {
	return &BoundaryDetector{client: client}
}

// DetectSections tries each strategy in order and returns the first success.
// The equal-division fallback never fails, so an error is only possible for
// empty input.
func (d *BoundaryDetector) DetectSections(ctx context.Context, fullText string, estimatedPages int) (*BoundaryResult, error) {
	fullText = strings.TrimSpace(fullText)
	if fullText == "" {
		return nil, fmt.Errorf("empty document text")
	}
	if estimatedPages < 1 {
		estimatedPages = 1
	}

	if sections := d.scanTableOfContents(fullText); sections != nil {
		log.Printf("BoundaryDetector: TOC scan found %d sections", len(sections))
		return &BoundaryResult{Sections: sections, Strategy: "toc_scan"}, nil
	}

	if d.client != nil {
		sections, err := d.extractWithModel(ctx, fullText, estimatedPages)
		if err != nil {
			log.Printf("BoundaryDetector: model-assisted extraction failed, falling back: %v", err)
		} else {
			log.Printf("BoundaryDetector: model returned %d sections", len(sections))
			return &BoundaryResult{Sections: sections, Strategy: "model_assisted"}, nil
		}
	}

	sections := equalDivision(estimatedPages)
	log.Printf("BoundaryDetector: equal division produced %d sections", len(sections))
	return &BoundaryResult{Sections: sections, Strategy: "equal_division"}, nil
}

// scanTableOfContents scans every line against the heading pattern families
// and the validity heuristic. Accepts only when 3-30 genuine headings are
// found; each heading becomes a section with a line-index page estimate.
func (d *BoundaryDetector) scanTableOfContents(fullText string) []SectionBoundary {
	lines := strings.Split(fullText, "\n")

	var sections []SectionBoundary
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !MatchesHeadingPattern(trimmed) || !IsValidHeading(trimmed) {
			continue
		}
		sections = append(sections, SectionBoundary{
			Number:    len(sections) + 1,
			Name:      trimmed,
			PageStart: i/linesPerPage + 1,
		})
		if len(sections) > tocMaxHeadings {
			// Too many headings means the patterns are matching body text
			return nil
		}
	}

	if len(sections) < tocMinHeadings {
		return nil
	}
	return sections
}

// sectionCountForPages maps estimated page count to a requested section
// count. The count is the midpoint of the band the page count falls into.
func sectionCountForPages(pages int) int {
	switch {
	case pages <= 10:
		return 3 // band 2-4
	case pages <= 30:
		return 6 // band 4-8
	default:
		return 9 // band 6-12
	}
}

// sampleText returns the full text when it is under the limit, otherwise a
// beginning/middle/end composite.
func sampleText(fullText string) string {
	if len(fullText) < fullTextLimit {
		return fullText
	}

	// Slice offsets are byte positions; align them so no sample edge splits
	// a multibyte rune
	mid := len(fullText) / 2
	var sb strings.Builder
	sb.WriteString(fullText[:alignRuneStart(fullText, sampleSliceSize)])
	sb.WriteString("\n\n[...]\n\n")
	sb.WriteString(fullText[alignRuneStart(fullText, mid-sampleSliceSize/2):alignRuneStart(fullText, mid+sampleSliceSize/2)])
	sb.WriteString("\n\n[...]\n\n")
	sb.WriteString(fullText[alignRuneStart(fullText, len(fullText)-sampleSliceSize):])
	return sb.String()
}

type modelSectionsResponse struct {
	Sections []SectionBoundary `json:"sections"`
}

// extractWithModel asks the extraction capability for named sections, parses
// the response defensively and validates every returned name.
func (d *BoundaryDetector) extractWithModel(ctx context.Context, fullText string, estimatedPages int) ([]SectionBoundary, error) {
	target := sectionCountForPages(estimatedPages)
	sample := sampleText(fullText)

	systemPrompt := fmt.Sprintf(`You are given text extracted from a study document. Identify its %d main sections. Output ONLY valid JSON:
{"sections":[{"number":1,"name":"Section Name","description":"one sentence"}]}

Rules:
1. name: copy the section heading VERBATIM from the text, do not invent or rephrase
2. description: one short sentence summarizing the section
3. Sections must appear in document order`, target)

	userPrompt := fmt.Sprintf("Document (%d estimated pages):\n\n%s", estimatedPages, sample)

	var response string
	err := withProviderRetry(ctx, func(ctx context.Context) error {
		var callErr error
		response, callErr = d.client.SimpleCompletion(ctx, systemPrompt, userPrompt,
			digitalocean.WithInferenceMaxTokens(4096),
			digitalocean.WithInferenceTemperature(0),
			digitalocean.WithResponseFormatJSON())
		return callErr
	}, nil)
	if err != nil {
		return nil, err
	}

	var parsed modelSectionsResponse
	if err := utils.ExtractJSONTo(response, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse section response: %w", err)
	}

	valid := make([]SectionBoundary, 0, len(parsed.Sections))
	for _, s := range parsed.Sections {
		s.Name = strings.TrimSpace(s.Name)
		if s.Name == "" || !IsValidHeading(s.Name) {
			continue
		}
		s.Number = len(valid) + 1
		valid = append(valid, s)
		if len(valid) == modelMaxSections {
			break
		}
	}

	if len(valid) < modelMinSections {
		return nil, fmt.Errorf("model returned %d valid sections, need at least %d", len(valid), modelMinSections)
	}
	return valid, nil
}

// equalDivision divides the estimated page count into 3-8 roughly equal
// parts. Never fails.
func equalDivision(estimatedPages int) []SectionBoundary {
	parts := estimatedPages / 5
	if parts < fallbackMinParts {
		parts = fallbackMinParts
	}
	if parts > fallbackMaxParts {
		parts = fallbackMaxParts
	}

	sections := make([]SectionBoundary, 0, parts)
	pagesPerPart := estimatedPages / parts
	if pagesPerPart < 1 {
		pagesPerPart = 1
	}

	start := 1
	for i := 1; i <= parts; i++ {
		end := start + pagesPerPart - 1
		if i == parts || end > estimatedPages {
			end = estimatedPages
		}
		if end < start {
			end = start
		}
		sections = append(sections, SectionBoundary{
			Number:    i,
			Name:      fmt.Sprintf("Part %d", i),
			PageStart: start,
			PageEnd:   end,
		})
		start = end + 1
		if start > estimatedPages {
			break
		}
	}
	return sections
}
