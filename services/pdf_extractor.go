package services

import (
	"bytes"
	"fmt"
	"log"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PageRange represents a range of pages (1-indexed, inclusive)
type PageRange struct {
	Start int
	End   int
}

// PDFExtractor handles PDF text extraction using ledongthuc/pdf
type PDFExtractor struct{}

// NewPDFExtractor creates a new PDF extractor
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// sanitizePDF truncates trailing garbage after the last %%EOF marker. PDFs
// downloaded from the web often have HTML or other data appended.
func sanitizePDF(content []byte) []byte {
	if len(content) == 0 {
		return content
	}
	if !bytes.HasPrefix(content, []byte("%PDF-")) {
		return content
	}

	eofMarker := []byte("%%EOF")
	lastEOF := bytes.LastIndex(content, eofMarker)
	if lastEOF == -1 {
		return content
	}

	pdfEnd := lastEOF + len(eofMarker)
	for pdfEnd < len(content) && (content[pdfEnd] == '\n' || content[pdfEnd] == '\r') {
		pdfEnd++
	}

	if pdfEnd < len(content) {
		extraBytes := len(content) - pdfEnd
		if extraBytes > 10 {
			log.Printf("PDF Sanitizer: Removing %d bytes of trailing garbage after %%EOF", extraBytes)
			return content[:pdfEnd]
		}
	}
	return content
}

func openReader(content []byte) (*pdf.Reader, error) {
	if len(content) == 0 {
		return nil, fmt.Errorf("empty PDF content")
	}
	content = sanitizePDF(content)
	reader := bytes.NewReader(content)

	pdfReader, err := pdf.NewReader(reader, int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse PDF: %w", err)
	}
	if pdfReader.NumPage() == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}
	return pdfReader, nil
}

// extractPageText pulls the text from one page, preferring row extraction
// for structure preservation with a plain-text fallback.
func extractPageText(pdfReader *pdf.Reader, pageNum int) (string, error) {
	page := pdfReader.Page(pageNum)
	if page.V.IsNull() {
		return "", fmt.Errorf("page %d is null", pageNum)
	}

	rows, err := page.GetTextByRow()
	if err != nil {
		text, plainErr := page.GetPlainText(nil)
		if plainErr != nil {
			return "", fmt.Errorf("failed to extract page %d: %v (row error: %v)", pageNum, plainErr, err)
		}
		return text, nil
	}

	var sb strings.Builder
	for _, row := range rows {
		var rowText strings.Builder
		for _, word := range row.Content {
			rowText.WriteString(word.S)
		}
		line := strings.TrimSpace(rowText.String())
		if line != "" {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

// ExtractPages extracts the text of every page separately, for page-aware
// chunking. Pages that fail extraction are skipped with a warning.
func (p *PDFExtractor) ExtractPages(content []byte) ([]PageText, error) {
	pdfReader, err := openReader(content)
	if err != nil {
		return nil, err
	}

	numPages := pdfReader.NumPage()
	pages := make([]PageText, 0, numPages)
	totalChars := 0

	for i := 1; i <= numPages; i++ {
		text, err := extractPageText(pdfReader, i)
		if err != nil {
			log.Printf("PDF Extractor: %v, skipping", err)
			continue
		}
		pages = append(pages, PageText{Page: i, Text: text})
		totalChars += len(text)
	}

	if totalChars < 50 {
		return nil, fmt.Errorf("insufficient text extracted from PDF (only %d characters), PDF may be scanned/image-based", totalChars)
	}

	log.Printf("PDF Extractor: Extracted %d characters from %d of %d pages", totalChars, len(pages), numPages)
	return pages, nil
}

// ExtractText extracts the whole document as one string
func (p *PDFExtractor) ExtractText(content []byte) (string, error) {
	pages, err := p.ExtractPages(content)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for i, page := range pages {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(page.Text)
	}
	return strings.TrimSpace(sb.String()), nil
}

// ExtractPageRange extracts text from a specific page range (1-indexed,
// inclusive)
func (p *PDFExtractor) ExtractPageRange(content []byte, startPage, endPage int) (string, error) {
	pdfReader, err := openReader(content)
	if err != nil {
		return "", err
	}

	numPages := pdfReader.NumPage()
	if startPage < 1 {
		startPage = 1
	}
	if endPage > numPages {
		endPage = numPages
	}
	if startPage > endPage {
		return "", fmt.Errorf("invalid page range: start=%d, end=%d", startPage, endPage)
	}

	var sb strings.Builder
	for i := startPage; i <= endPage; i++ {
		text, err := extractPageText(pdfReader, i)
		if err != nil {
			log.Printf("PDF Extractor: %v, skipping", err)
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	return strings.TrimSpace(sb.String()), nil
}

// GetPageCount returns the total number of pages in the PDF
func (p *PDFExtractor) GetPageCount(content []byte) (int, error) {
	pdfReader, err := openReader(content)
	if err != nil {
		return 0, err
	}
	return pdfReader.NumPage(), nil
}
