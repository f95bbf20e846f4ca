package services

import (
	"regexp"
	"strings"
)

// Noise patterns commonly left behind by PDF text extraction. Applied line by
// line before chunking so headers, footers and bare page numbers do not leak
// into chunk text.
var (
	pageNumberLineRe  = regexp.MustCompile(`^\s*(?:page\s+)?\d{1,4}\s*$`)
	pageOfPageRe      = regexp.MustCompile(`(?i)^\s*page\s+\d+\s+of\s+\d+\s*$`)
	dotLeaderRe       = regexp.MustCompile(`\.{4,}\s*\d*\s*$`)
	repeatedDashRe    = regexp.MustCompile(`^[-_=*]{4,}$`)
	excessBlankLineRe = regexp.MustCompile(`\n{3,}`)
	trailingSpaceRe   = regexp.MustCompile(`[ \t]+\n`)
)

// NormalizeText cleans extracted page text: CRLF to LF, noise lines removed,
// runs of blank lines collapsed to one.
func NormalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\x00", "")

	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if pageNumberLineRe.MatchString(trimmed) || pageOfPageRe.MatchString(trimmed) {
			continue
		}
		if repeatedDashRe.MatchString(trimmed) {
			continue
		}
		// Strip TOC dot leaders ("Introduction ........ 12") but keep the label
		line = dotLeaderRe.ReplaceAllString(line, "")
		cleaned = append(cleaned, line)
	}

	text = strings.Join(cleaned, "\n")
	text = trailingSpaceRe.ReplaceAllString(text, "\n")
	text = excessBlankLineRe.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}

// EstimateTokens approximates the token count of a text. One token is roughly
// four characters for English prose.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}
