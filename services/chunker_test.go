package services

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func makePages(count, charsPerPage int) []PageText {
	pages := make([]PageText, 0, count)
	for i := 0; i < count; i++ {
		// Word-shaped filler so whitespace boundaries exist
		word := "lorem "
		text := strings.Repeat(word, charsPerPage/len(word))
		pages = append(pages, PageText{Page: i + 1, Text: text})
	}
	return pages
}

func TestChunkRespectsTokenBudget(t *testing.T) {
	chunker := NewChunker(DefaultChunkerConfig())
	pages := makePages(10, 4000)

	chunks := chunker.Chunk(pages)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks for 40k chars, got %d", len(chunks))
	}

	for _, chunk := range chunks {
		if chunk.TokenCount > DefaultChunkTokens {
			t.Errorf("chunk %d has %d tokens, budget is %d", chunk.Index, chunk.TokenCount, DefaultChunkTokens)
		}
		if chunk.TokenCount != EstimateTokens(chunk.Text) {
			t.Errorf("chunk %d token count %d does not match its text estimate %d",
				chunk.Index, chunk.TokenCount, EstimateTokens(chunk.Text))
		}
	}
}

func TestChunkOverlapAndCoverage(t *testing.T) {
	chunker := NewChunker(DefaultChunkerConfig())
	pages := makePages(10, 4000)

	chunks := chunker.Chunk(pages)

	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		if cur.CharStart >= prev.CharEnd {
			t.Errorf("chunk %d starts at %d, after chunk %d ends at %d: gap in coverage",
				cur.Index, cur.CharStart, prev.Index, prev.CharEnd)
		}
		if cur.CharStart <= prev.CharStart {
			t.Errorf("chunk %d does not advance past chunk %d", cur.Index, prev.Index)
		}
	}

	if chunks[0].CharStart != 0 {
		t.Errorf("first chunk starts at %d, want 0", chunks[0].CharStart)
	}
}

func TestChunkSmallDocumentSingleChunk(t *testing.T) {
	chunker := NewChunker(DefaultChunkerConfig())
	pages := []PageText{{Page: 1, Text: "A short page of text."}}

	chunks := chunker.Chunk(pages)
	if len(chunks) != 1 {
		t.Fatalf("expected one chunk, got %d", len(chunks))
	}
	if chunks[0].PageStart != 1 || chunks[0].PageEnd != 1 {
		t.Errorf("page attribution = [%d,%d], want [1,1]", chunks[0].PageStart, chunks[0].PageEnd)
	}
}

func TestChunkPageAttribution(t *testing.T) {
	chunker := NewChunker(DefaultChunkerConfig())
	pages := makePages(20, 2000)

	chunks := chunker.Chunk(pages)
	for _, chunk := range chunks {
		if chunk.PageStart < 1 || chunk.PageEnd > 20 {
			t.Errorf("chunk %d page range [%d,%d] outside document",
				chunk.Index, chunk.PageStart, chunk.PageEnd)
		}
		if chunk.PageEnd < chunk.PageStart {
			t.Errorf("chunk %d has inverted page range [%d,%d]",
				chunk.Index, chunk.PageStart, chunk.PageEnd)
		}
	}

	// Later chunks must come from later pages
	if last := chunks[len(chunks)-1]; last.PageEnd != 20 {
		t.Errorf("last chunk ends on page %d, want 20", last.PageEnd)
	}
}

func TestChunkEmptyInput(t *testing.T) {
	chunker := NewChunker(DefaultChunkerConfig())
	if chunks := chunker.Chunk(nil); len(chunks) != 0 {
		t.Errorf("expected no chunks for empty input, got %d", len(chunks))
	}
	if chunks := chunker.Chunk([]PageText{{Page: 1, Text: "   "}}); len(chunks) != 0 {
		t.Errorf("expected no chunks for whitespace-only input, got %d", len(chunks))
	}
}

func TestChunkMultibyteTextStaysValidUTF8(t *testing.T) {
	chunker := NewChunker(DefaultChunkerConfig())
	// An odd one-byte prefix puts every two-byte rune on an odd offset, so a
	// byte-count cut with no whitespace to snap to would land mid-rune
	pages := []PageText{{Page: 1, Text: "x" + strings.Repeat("é", 6000)}}

	chunks := chunker.Chunk(pages)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for _, chunk := range chunks {
		if !utf8.ValidString(chunk.Text) {
			t.Errorf("chunk %d contains invalid UTF-8 at its edges", chunk.Index)
		}
	}
}

func TestChunkUnbrokenTextStillTerminates(t *testing.T) {
	chunker := NewChunker(DefaultChunkerConfig())
	// No whitespace at all: the walk-back has no boundary to find
	pages := []PageText{{Page: 1, Text: strings.Repeat("x", 20000)}}

	chunks := chunker.Chunk(pages)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for _, chunk := range chunks {
		if chunk.TokenCount > DefaultChunkTokens {
			t.Errorf("chunk %d exceeds token budget: %d", chunk.Index, chunk.TokenCount)
		}
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abc", 1},
		{"abcd", 1},
		{"abcdefgh", 2},
		{strings.Repeat("a", 3600), 900},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%d chars) = %d, want %d", len(tt.text), got, tt.want)
		}
	}
}
