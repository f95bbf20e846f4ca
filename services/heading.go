package services

import (
	"regexp"
	"strings"
)

// Heading pattern families used by the table-of-contents scan. A line matching
// any family is a heading candidate; candidates still must pass IsValidHeading.
var headingPatterns = []*regexp.Regexp{
	// Numbered: "1 Introduction", "2.3 Methods", "4.1.2 Results"
	regexp.MustCompile(`^\d+(?:\.\d+)*\.?\s+\S.{2,}$`),
	// Chapter headings: "Chapter 1", "CHAPTER 3: Title"
	regexp.MustCompile(`(?i)^chapter\s+\d+\b.*$`),
	// Section headings: "Section 2", "SECTION 4 - Title"
	regexp.MustCompile(`(?i)^section\s+\d+\b.*$`),
	// Long all-caps runs: "INTRODUCTION TO THERMODYNAMICS"
	regexp.MustCompile(`^[A-Z][A-Z0-9 ,:&\-]{7,}$`),
	// Capitalized multi-word phrases: "The Laws of Motion"
	regexp.MustCompile(`^(?:[A-Z][a-z]+\s+){1,6}[A-Z][a-z]+$`),
}

var (
	acronymRe       = regexp.MustCompile(`^[A-Z]{2,6}\.?$`)
	pageNumberishRe = regexp.MustCompile(`^(?:p(?:age)?\.?\s*)?\d+(?:\s*[-–]\s*\d+)?$`)
	addressishRe    = regexp.MustCompile(`(?i)\b(?:street|st\.|road|rd\.|avenue|ave\.|p\.?o\.?\s*box|suite|floor)\b`)
	leadingNumberRe = regexp.MustCompile(`^\d+(?:\.\d+)*\.?\s*`)
)

// Bare column labels that show up when a table header row is mistaken for a
// heading.
var tableHeaderWords = map[string]bool{
	"name": true, "date": true, "page": true, "no": true, "no.": true,
	"title": true, "contents": true, "index": true, "total": true,
	"sr": true, "sr.": true, "s.no": true, "s.no.": true,
}

// MatchesHeadingPattern reports whether a line matches any heading family.
func MatchesHeadingPattern(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	for _, re := range headingPatterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// IsValidHeading is the heading-validity heuristic. It rejects strings that
// match a heading pattern but are noise in practice: very short strings,
// acronyms, page-number-like strings, address fragments and bare table
// headers.
func IsValidHeading(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) < 4 {
		return false
	}
	if len(s) > 200 {
		return false
	}
	if acronymRe.MatchString(s) {
		return false
	}
	if pageNumberishRe.MatchString(s) {
		return false
	}
	if addressishRe.MatchString(s) {
		return false
	}

	// Strip a leading section number before checking the label itself
	label := strings.TrimSpace(leadingNumberRe.ReplaceAllString(s, ""))
	if label == "" {
		return false
	}
	if tableHeaderWords[strings.ToLower(strings.TrimRight(label, ":"))] {
		return false
	}

	// Require at least one letter in the label
	hasLetter := false
	for _, r := range label {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			hasLetter = true
			break
		}
	}
	return hasLetter
}

// HeadingTitle strips the numbering prefix from a heading line, returning the
// bare title. "2.3 Core Concepts" becomes "Core Concepts".
func HeadingTitle(line string) string {
	line = strings.TrimSpace(line)
	title := strings.TrimSpace(leadingNumberRe.ReplaceAllString(line, ""))
	if title == "" {
		return line
	}
	return title
}
