package services

import "strings"

// Quality score weights. The score is advisory: it is persisted and reported,
// never enforced as a hard error.
const (
	scoreOwnName        = 0.3
	scoreGoodLength     = 0.3
	scoreOverExtraction = -0.2
	scoreNoSiblings     = 0.4
	scoreOneSibling     = 0.2
	scoreManySiblings   = -0.2

	goodLengthMin = 0.05
	goodLengthMax = 0.50
)

// ScoreExtractionQuality heuristically scores one extracted section span in
// [0,1]:
//
//	+0.3 if the span contains the section's own name
//	+0.3 if the span is 5-50% of the full document, -0.2 if 50% or more
//	+0.4 if no sibling name appears in the span, +0.2 if exactly one does,
//	-0.2 if more than one does
//
// The result is clamped to [0,1].
func ScoreExtractionQuality(span SectionSpan, siblings []SectionBoundary, fullText string) float64 {
	score := 0.0
	lowerText := strings.ToLower(span.Text)

	if span.Section.Name != "" && strings.Contains(lowerText, strings.ToLower(span.Section.Name)) {
		score += scoreOwnName
	}

	if len(fullText) > 0 {
		ratio := float64(len(span.Text)) / float64(len(fullText))
		if ratio >= goodLengthMin && ratio < goodLengthMax {
			score += scoreGoodLength
		} else if ratio >= goodLengthMax {
			// Suspected over-extraction
			score += scoreOverExtraction
		}
	}

	siblingHits := 0
	for _, sib := range siblings {
		if sib.Number == span.Section.Number || sib.Name == "" {
			continue
		}
		if strings.Contains(lowerText, strings.ToLower(sib.Name)) {
			siblingHits++
		}
	}
	switch {
	case siblingHits == 0:
		score += scoreNoSiblings
	case siblingHits == 1:
		score += scoreOneSibling
	default:
		// Suspected wrong boundaries
		score += scoreManySiblings
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}
