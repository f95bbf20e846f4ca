package services

import (
	"log"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultChunkTokens is the target chunk size in estimated tokens
	DefaultChunkTokens = 900
	// DefaultOverlapPercent is the overlap between consecutive chunks,
	// as a percentage of the target size
	DefaultOverlapPercent = 10
	// charsPerToken is the character-to-token approximation used throughout
	charsPerToken = 4
	// boundaryFloorPercent is how far into the target a whitespace boundary
	// must lie to be eligible, avoiding degenerate tiny chunks
	boundaryFloorPercent = 60
	// walkbackDecrement shrinks an over-budget chunk end in fixed steps
	walkbackDecrement = 64
)

// PageText is one page of normalized input to the chunker, 1-indexed.
type PageText struct {
	Page int
	Text string
}

// TextChunk is a token-bounded slice of document text with page attribution.
type TextChunk struct {
	Index      int
	PageStart  int
	PageEnd    int
	Text       string
	TokenCount int
	// Character span within the concatenated document text
	CharStart int
	CharEnd   int
}

// ChunkerConfig controls chunk sizing.
type ChunkerConfig struct {
	TargetTokens   int // Default: 900
	OverlapPercent int // Default: 10 (% of target size)
}

// DefaultChunkerConfig returns the default chunking configuration
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		TargetTokens:   DefaultChunkTokens,
		OverlapPercent: DefaultOverlapPercent,
	}
}

// pageBoundary records where a page's text landed in the concatenated document.
type pageBoundary struct {
	page  int
	start int
	end   int
}

// Chunker splits page text into overlapping token-bounded chunks. Pure
// computation, no I/O.
type Chunker struct {
	config ChunkerConfig
}

// NewChunker creates a chunker with the given config, applying defaults for
// unset fields.
func NewChunker(config ChunkerConfig) *Chunker {
	if config.TargetTokens <= 0 {
		config.TargetTokens = DefaultChunkTokens
	}
	if config.OverlapPercent < 0 || config.OverlapPercent >= 100 {
		config.OverlapPercent = DefaultOverlapPercent
	}
	return &Chunker{config: config}
}

// Chunk normalizes and concatenates the pages, then walks the text producing
// chunks of at most TargetTokens with OverlapPercent overlap. Returns nil for
// empty input.
func (c *Chunker) Chunk(pages []PageText) []TextChunk {
	full, bounds := c.concatenate(pages)
	if full == "" {
		return nil
	}

	targetChars := c.config.TargetTokens * charsPerToken
	overlapChars := targetChars * c.config.OverlapPercent / 100
	floorChars := targetChars * boundaryFloorPercent / 100

	var chunks []TextChunk
	pos := 0
	for pos < len(full) {
		end := pos + targetChars
		if end >= len(full) {
			end = len(full)
		} else {
			// Prefer the nearest preceding whitespace past the floor so we
			// do not cut mid-word
			if ws := lastWhitespaceBefore(full, pos+floorChars, end); ws > 0 {
				end = ws
			}
		}

		// Walk the end back in fixed decrements until the token estimate fits
		for end > pos+1 && EstimateTokens(full[pos:end]) > c.config.TargetTokens {
			end -= walkbackDecrement
			if end <= pos {
				end = pos + 1
				break
			}
		}
		end = alignRuneStart(full, end)
		if end <= pos {
			_, size := utf8.DecodeRuneInString(full[pos:])
			end = pos + size
		}

		text := full[pos:end]
		pageStart, pageEnd := pagesForSpan(bounds, pos, end)
		chunks = append(chunks, TextChunk{
			Index:      len(chunks),
			PageStart:  pageStart,
			PageEnd:    pageEnd,
			Text:       text,
			TokenCount: EstimateTokens(text),
			CharStart:  pos,
			CharEnd:    end,
		})

		if end >= len(full) {
			break
		}

		next := alignRuneStart(full, end-overlapChars)
		if next <= pos {
			_, size := utf8.DecodeRuneInString(full[pos:])
			next = pos + size
		}
		pos = next
	}

	log.Printf("Chunker: Produced %d chunks from %d pages (%d chars, target=%d tokens, overlap=%d%%)",
		len(chunks), len(pages), len(full), c.config.TargetTokens, c.config.OverlapPercent)

	return chunks
}

// concatenate joins normalized page texts with a two-character separator and
// records each page's character span.
func (c *Chunker) concatenate(pages []PageText) (string, []pageBoundary) {
	var sb strings.Builder
	bounds := make([]pageBoundary, 0, len(pages))

	for _, p := range pages {
		text := NormalizeText(p.Text)
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		start := sb.Len()
		sb.WriteString(text)
		bounds = append(bounds, pageBoundary{page: p.Page, start: start, end: sb.Len()})
	}

	return sb.String(), bounds
}

// lastWhitespaceBefore returns the index just after the last whitespace rune
// in text[floor:end], or 0 if none exists.
func lastWhitespaceBefore(text string, floor, end int) int {
	if floor < 0 {
		floor = 0
	}
	if end > len(text) {
		end = len(text)
	}
	for i := end - 1; i >= floor; i-- {
		if unicode.IsSpace(rune(text[i])) {
			return i + 1
		}
	}
	return 0
}

// alignRuneStart walks a byte index back to the nearest rune start so slicing
// at it never splits a multibyte sequence.
func alignRuneStart(text string, i int) int {
	if i >= len(text) {
		return len(text)
	}
	for i > 0 && !utf8.RuneStart(text[i]) {
		i--
	}
	return i
}

// pagesForSpan finds which pages a character span [start,end) intersects.
func pagesForSpan(bounds []pageBoundary, start, end int) (int, int) {
	pageStart, pageEnd := 0, 0
	for _, b := range bounds {
		if start < b.end && end > b.start {
			if pageStart == 0 {
				pageStart = b.page
			}
			pageEnd = b.page
		}
	}
	if pageStart == 0 && len(bounds) > 0 {
		// Span landed entirely inside a separator; attribute to the last
		// page that starts before it
		for _, b := range bounds {
			if b.start <= start {
				pageStart = b.page
				pageEnd = b.page
			}
		}
	}
	return pageStart, pageEnd
}
