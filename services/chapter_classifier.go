package services

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/sahilchouksey/studymill/services/digitalocean"
)

// lastChapterFallbackPages is the page-count guess for a final chapter whose
// end page the response never stated. Entries derived this way carry
// EndEstimated so callers can surface the low confidence.
const lastChapterFallbackPages = 10

// ChapterEntry is one chapter's page range as parsed from a classification
// response. Pages are 1-indexed and inclusive.
type ChapterEntry struct {
	Number       int
	Title        string
	PageStart    int
	PageEnd      int
	EndEstimated bool
}

// ClassificationResult is the outcome of classifying a source document.
type ClassificationResult struct {
	MultiChapter bool
	Chapters     []ChapterEntry // Multi-chapter only, sorted by start page
	Title        string         // Single-chapter title from the metadata header
	Content      string         // Single-chapter free-text content
}

// ChapterClassifier determines whether a document is single- or
// multi-chapter and parses the chapter page-range list from the response.
type ChapterClassifier struct {
	client ExtractionClient
}

func NewChapterClassifier(client ExtractionClient) *ChapterClassifier {
	return &ChapterClassifier{client: client}
}

// Classify asks the extraction capability about the document's chapter
// structure and parses whichever response encoding comes back.
func (c *ChapterClassifier) Classify(ctx context.Context, title, sampleText string, totalPages int) (*ClassificationResult, error) {
	systemPrompt := `You are given the beginning of a study document. Decide whether it contains MULTIPLE chapters or is a SINGLE chapter/topic.

If MULTIPLE chapters, output one line per chapter in this exact pipe-delimited format:
number | title | start_page
and finish with a line:
LAST_PAGE: <last page number of the document body>

If SINGLE chapter, output exactly:
TITLE: <chapter title>
followed by a one-paragraph summary of the content.

Do not output anything else.`

	userPrompt := fmt.Sprintf("Document: %s (%d pages)\n\n%s", title, totalPages, sampleText)

	var response string
	err := withProviderRetry(ctx, func(ctx context.Context) error {
		var callErr error
		response, callErr = c.client.SimpleCompletion(ctx, systemPrompt, userPrompt,
			digitalocean.WithInferenceMaxTokens(2048),
			digitalocean.WithInferenceTemperature(0))
		return callErr
	}, nil)
	if err != nil {
		return nil, err
	}

	return ParseClassificationResponse(response, totalPages)
}

// ParseClassificationResponse tries each known response encoding in order:
// delimited chapter blocks, a pipe- or space-delimited table, and finally the
// single-chapter metadata header form.
func ParseClassificationResponse(response string, totalPages int) (*ClassificationResult, error) {
	response = strings.TrimSpace(response)
	if response == "" {
		return nil, fmt.Errorf("empty classification response")
	}

	if entries := ParseDelimitedChapters(response); len(entries) > 0 {
		entries = DeriveEndPages(entries, findLastPageMarker(response), totalPages)
		return &ClassificationResult{
			MultiChapter: true,
			Chapters:     ConsolidateChapters(entries),
		}, nil
	}

	if entries := ParseSectionDelimited(response); len(entries) > 0 {
		entries = DeriveEndPages(entries, findLastPageMarker(response), totalPages)
		return &ClassificationResult{
			MultiChapter: true,
			Chapters:     ConsolidateChapters(entries),
		}, nil
	}

	if entries := ParseChapterTable(response); len(entries) > 0 {
		entries = DeriveEndPages(entries, findLastPageMarker(response), totalPages)
		return &ClassificationResult{
			MultiChapter: true,
			Chapters:     ConsolidateChapters(entries),
		}, nil
	}

	title, content := parseSingleChapter(response)
	if title == "" && content == "" {
		return nil, fmt.Errorf("unrecognized classification response shape")
	}
	return &ClassificationResult{
		MultiChapter: false,
		Title:        title,
		Content:      content,
	}, nil
}

var (
	lastPageRe     = regexp.MustCompile(`(?im)^\s*LAST[_ ]?PAGE\s*[:=]?\s*(\d+)\s*$`)
	chapterBlockRe = regexp.MustCompile(`(?s)---CHAPTER_START---(.*?)---CHAPTER_END---`)
	sectionDelimRe = regexp.MustCompile(`(?m)^\s*===SECTION:\s*(.+?)\s*===\s*$`)
	blockFieldRe   = regexp.MustCompile(`(?im)^\s*(NUMBER|TITLE|START_PAGE|END_PAGE)\s*[:=]\s*(.+?)\s*$`)
	titleHeaderRe  = regexp.MustCompile(`(?im)^\s*TITLE\s*[:=]\s*(.+?)\s*$`)
	tableSepRe     = regexp.MustCompile(`^[\s|:\-]+$`)
)

// findLastPageMarker returns the explicit last-page marker value, or 0.
func findLastPageMarker(response string) int {
	m := lastPageRe.FindStringSubmatch(response)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// ParseDelimitedChapters parses ---CHAPTER_START---...---CHAPTER_END---
// blocks. Malformed blocks are skipped with a warning rather than failing
// the batch.
func ParseDelimitedChapters(response string) []ChapterEntry {
	blocks := chapterBlockRe.FindAllStringSubmatch(response, -1)
	if len(blocks) == 0 {
		return nil
	}

	var entries []ChapterEntry
	for i, block := range blocks {
		fields := blockFieldRe.FindAllStringSubmatch(block[1], -1)
		entry := ChapterEntry{}
		for _, f := range fields {
			value := strings.TrimSpace(f[2])
			switch strings.ToUpper(f[1]) {
			case "NUMBER":
				entry.Number, _ = strconv.Atoi(value)
			case "TITLE":
				entry.Title = value
			case "START_PAGE":
				entry.PageStart, _ = strconv.Atoi(value)
			case "END_PAGE":
				entry.PageEnd, _ = strconv.Atoi(value)
			}
		}
		if entry.Title == "" || entry.PageStart < 1 {
			log.Printf("ChapterClassifier: skipping malformed chapter block %d", i+1)
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

// ParseSectionDelimited parses "===SECTION: Title===" headers, each followed
// by NUMBER/START_PAGE/END_PAGE field lines that run until the next header.
// The title comes from the header itself; NUMBER defaults to the block's
// ordinal when absent.
func ParseSectionDelimited(response string) []ChapterEntry {
	markers := sectionDelimRe.FindAllStringSubmatchIndex(response, -1)
	if len(markers) == 0 {
		return nil
	}

	var entries []ChapterEntry
	for i, m := range markers {
		bodyEnd := len(response)
		if i+1 < len(markers) {
			bodyEnd = markers[i+1][0]
		}
		entry := ChapterEntry{Title: strings.TrimSpace(response[m[2]:m[3]])}
		for _, f := range blockFieldRe.FindAllStringSubmatch(response[m[1]:bodyEnd], -1) {
			value := strings.TrimSpace(f[2])
			switch strings.ToUpper(f[1]) {
			case "NUMBER":
				entry.Number, _ = strconv.Atoi(value)
			case "START_PAGE":
				entry.PageStart, _ = strconv.Atoi(value)
			case "END_PAGE":
				entry.PageEnd, _ = strconv.Atoi(value)
			}
		}
		if entry.Number == 0 {
			entry.Number = i + 1
		}
		if entry.Title == "" || entry.PageStart < 1 {
			log.Printf("ChapterClassifier: skipping malformed section block %d", i+1)
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

// ParseChapterTable parses line-oriented pipe- or space-delimited chapter
// tables: "number | title | start_page[ | end_page]" or
// "number title words start_page[ end_page]". Header and separator rows are
// tolerated and skipped.
func ParseChapterTable(response string) []ChapterEntry {
	var entries []ChapterEntry

	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || tableSepRe.MatchString(line) || lastPageRe.MatchString(line) {
			continue
		}

		var entry *ChapterEntry
		if strings.Contains(line, "|") {
			entry = parsePipeRow(line)
		} else {
			entry = parseSpaceRow(line)
		}
		if entry != nil {
			entries = append(entries, *entry)
		}
	}
	return entries
}

func parsePipeRow(line string) *ChapterEntry {
	parts := strings.Split(strings.Trim(line, "|"), "|")
	if len(parts) < 3 {
		return nil
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	number, err := strconv.Atoi(parts[0])
	if err != nil {
		// Likely a header row ("No | Title | Page")
		return nil
	}
	start, err := strconv.Atoi(parts[2])
	if err != nil || start < 1 {
		return nil
	}

	entry := &ChapterEntry{Number: number, Title: parts[1], PageStart: start}
	if len(parts) >= 4 {
		if end, err := strconv.Atoi(parts[3]); err == nil && end >= start {
			entry.PageEnd = end
		}
	}
	return entry
}

func parseSpaceRow(line string) *ChapterEntry {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return nil
	}

	number, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil
	}

	// Work backwards: the last one or two fields are page numbers, the rest
	// is the title
	last, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil || last < 1 {
		return nil
	}

	titleEnd := len(fields) - 1
	start := last
	end := 0
	if len(fields) >= 4 {
		if prev, err := strconv.Atoi(fields[len(fields)-2]); err == nil && prev >= 1 && last >= prev {
			start = prev
			end = last
			titleEnd = len(fields) - 2
		}
	}

	title := strings.Join(fields[1:titleEnd], " ")
	if title == "" {
		return nil
	}
	return &ChapterEntry{Number: number, Title: title, PageStart: start, PageEnd: end}
}

// parseSingleChapter handles the metadata-header-plus-content encoding.
func parseSingleChapter(response string) (title, content string) {
	m := titleHeaderRe.FindStringSubmatchIndex(response)
	if m == nil {
		return "", ""
	}
	title = strings.TrimSpace(response[m[2]:m[3]])
	content = strings.TrimSpace(response[m[1]:])
	return title, content
}

// DeriveEndPages fills missing end pages: each chapter ends where the next
// one starts minus one; the final chapter ends at the explicit last-page
// marker, or a fixed fallback offset flagged as estimated.
func DeriveEndPages(entries []ChapterEntry, lastPage, totalPages int) []ChapterEntry {
	if len(entries) == 0 {
		return entries
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].PageStart < entries[j].PageStart
	})

	for i := range entries {
		if entries[i].PageEnd >= entries[i].PageStart {
			continue
		}
		if i+1 < len(entries) {
			entries[i].PageEnd = entries[i+1].PageStart - 1
			if entries[i].PageEnd < entries[i].PageStart {
				entries[i].PageEnd = entries[i].PageStart
			}
			continue
		}
		// Final chapter
		switch {
		case lastPage >= entries[i].PageStart:
			entries[i].PageEnd = lastPage
		case totalPages >= entries[i].PageStart:
			entries[i].PageEnd = totalPages
		default:
			entries[i].PageEnd = entries[i].PageStart + lastChapterFallbackPages
			entries[i].EndEstimated = true
		}
	}
	return entries
}

// ConsolidateChapters groups entries sharing a chapter number: contiguous
// ranges merge into one, non-contiguous ranges stay as separate same-numbered
// entries so an interrupted chapter does not swallow unrelated content in
// between. Output is sorted by start page.
func ConsolidateChapters(entries []ChapterEntry) []ChapterEntry {
	if len(entries) <= 1 {
		return entries
	}

	groups := make(map[int][]ChapterEntry)
	order := []int{}
	for _, e := range entries {
		if _, seen := groups[e.Number]; !seen {
			order = append(order, e.Number)
		}
		groups[e.Number] = append(groups[e.Number], e)
	}

	var out []ChapterEntry
	for _, number := range order {
		group := groups[number]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].PageStart < group[j].PageStart
		})

		current := group[0]
		for _, e := range group[1:] {
			if e.PageStart <= current.PageEnd+1 {
				// Contiguous or overlapping: merge
				if e.PageEnd > current.PageEnd {
					current.PageEnd = e.PageEnd
					current.EndEstimated = e.EndEstimated
				}
				continue
			}
			out = append(out, current)
			current = e
		}
		out = append(out, current)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PageStart < out[j].PageStart
	})
	return out
}
