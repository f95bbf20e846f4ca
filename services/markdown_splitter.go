package services

import (
	"fmt"
	"regexp"
	"strings"
)

// smartWindow is the search radius around a proportional estimate when no
// textual anchor for a section name is found.
const smartWindow = 500

var (
	sentenceEndRe  = regexp.MustCompile(`[.!?]\s`)
	paragraphGapRe = regexp.MustCompile(`\n\n+`)
)

// SectionSpan is one section's resolved textual span within the document.
type SectionSpan struct {
	Section SectionBoundary
	Start   int    // Character offset, inclusive
	End     int    // Character offset, exclusive
	Text    string // Trimmed span text
	Anchor  string // How the start was found: "heading", "bold", "plain", "smart"
}

// MarkdownSplitter assigns each section in an ordered list its exact textual
// span. Pure computation, no I/O.
type MarkdownSplitter struct{}

func NewMarkdownSplitter() *MarkdownSplitter {
	return &MarkdownSplitter{}
}

// Split resolves a start position for every section, in order, and derives
// each end from the next section's start (end-of-document for the last).
// Spans never overlap and together cover the document from the first
// section's start to the end.
func (m *MarkdownSplitter) Split(fullText string, sections []SectionBoundary) ([]SectionSpan, error) {
	if strings.TrimSpace(fullText) == "" {
		return nil, fmt.Errorf("empty document text")
	}
	if len(sections) == 0 {
		return nil, fmt.Errorf("no sections to split")
	}

	n := len(sections)
	spans := make([]SectionSpan, n)

	searchFrom := 0
	for i, section := range sections {
		start, anchor := m.findSectionStart(fullText, section.Name, i, n, searchFrom)
		spans[i] = SectionSpan{
			Section: section,
			Start:   start,
			Anchor:  anchor,
		}
		// The next section's anchor search begins strictly after this start
		searchFrom = start + 1
	}

	for i := range spans {
		if i+1 < n {
			spans[i].End = spans[i+1].Start
		} else {
			spans[i].End = len(fullText)
		}
		if spans[i].End < spans[i].Start {
			spans[i].End = spans[i].Start
		}
		spans[i].Text = strings.TrimSpace(fullText[spans[i].Start:spans[i].End])
	}

	return spans, nil
}

// findSectionStart tries, in order: a markdown heading matching the name, the
// name in bold markers, a plain-text search confined to the section's
// proportional region, and finally a smart boundary at the proportional
// position.
func (m *MarkdownSplitter) findSectionStart(fullText, name string, index, total, searchFrom int) (int, string) {
	name = strings.TrimSpace(name)

	if name != "" {
		if pos := findHeadingAnchor(fullText, name, searchFrom); pos >= 0 {
			return pos, "heading"
		}
		if pos := findBoldAnchor(fullText, name, searchFrom); pos >= 0 {
			return pos, "bold"
		}
		if pos := findPlainInRegion(fullText, name, index, total, searchFrom); pos >= 0 {
			return pos, "plain"
		}
	}

	estimate := len(fullText) * index / total
	if estimate < searchFrom {
		estimate = searchFrom
	}
	pos := smartBoundary(fullText, estimate)
	// The boundary window can reach back before the previous section's start;
	// a start behind searchFrom would invert span order and leave the
	// previous span empty
	if pos < searchFrom {
		pos = searchFrom
	}
	return pos, "smart"
}

// findHeadingAnchor locates a markdown heading (# through ###) whose text
// matches the name case-insensitively, at or after searchFrom.
func findHeadingAnchor(fullText, name string, searchFrom int) int {
	re := regexp.MustCompile(`(?im)^#{1,3}[ \t]*` + regexp.QuoteMeta(name) + `[ \t]*$`)
	loc := re.FindStringIndex(fullText[searchFrom:])
	if loc == nil {
		return -1
	}
	return searchFrom + loc[0]
}

// findBoldAnchor locates the name wrapped in bold markers.
func findBoldAnchor(fullText, name string, searchFrom int) int {
	lower := strings.ToLower(fullText[searchFrom:])
	lowerName := strings.ToLower(name)

	for _, marker := range []string{"**", "__"} {
		needle := marker + lowerName + marker
		if idx := strings.Index(lower, needle); idx >= 0 {
			return searchFrom + idx
		}
	}
	return -1
}

// findPlainInRegion searches for the bare name, confined to the proportional
// region [index/total, (index+1)/total) of the document.
func findPlainInRegion(fullText, name string, index, total, searchFrom int) int {
	regionStart := len(fullText) * index / total
	regionEnd := len(fullText) * (index + 1) / total
	if regionStart < searchFrom {
		regionStart = searchFrom
	}
	if regionEnd > len(fullText) {
		regionEnd = len(fullText)
	}
	if regionStart >= regionEnd {
		return -1
	}

	region := strings.ToLower(fullText[regionStart:regionEnd])
	idx := strings.Index(region, strings.ToLower(name))
	if idx < 0 {
		return -1
	}
	return regionStart + idx
}

// smartBoundary picks the cleanest break near a position estimate: the
// nearest paragraph break within the window, else the nearest sentence end,
// else the nearest newline, else the raw estimate.
func smartBoundary(fullText string, estimate int) int {
	if estimate < 0 {
		estimate = 0
	}
	if estimate >= len(fullText) {
		return len(fullText)
	}

	winStart := estimate - smartWindow
	if winStart < 0 {
		winStart = 0
	}
	winEnd := estimate + smartWindow
	if winEnd > len(fullText) {
		winEnd = len(fullText)
	}
	window := fullText[winStart:winEnd]

	if pos := nearestMatchEnd(window, paragraphGapRe, estimate-winStart); pos >= 0 {
		return winStart + pos
	}
	if pos := nearestMatchEnd(window, sentenceEndRe, estimate-winStart); pos >= 0 {
		return winStart + pos
	}
	if pos := nearestNewline(window, estimate-winStart); pos >= 0 {
		return winStart + pos
	}
	return estimate
}

// nearestMatchEnd returns the end offset of the regex match closest to target
// within text, or -1 when there is no match.
func nearestMatchEnd(text string, re *regexp.Regexp, target int) int {
	matches := re.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return -1
	}

	best, bestDist := -1, -1
	for _, loc := range matches {
		end := loc[1]
		dist := end - target
		if dist < 0 {
			dist = -dist
		}
		if best == -1 || dist < bestDist {
			best, bestDist = end, dist
		}
	}
	return best
}

// nearestNewline returns the offset just past the newline closest to target.
func nearestNewline(text string, target int) int {
	best, bestDist := -1, -1
	for i := 0; i < len(text); i++ {
		if text[i] != '\n' {
			continue
		}
		dist := i + 1 - target
		if dist < 0 {
			dist = -dist
		}
		if best == -1 || dist < bestDist {
			best, bestDist = i+1, dist
		}
	}
	return best
}
