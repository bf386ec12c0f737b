package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"llm-chatbot/internal/logger"

	"github.com/ledongthuc/pdf"
)

// ErrNoText is returned when a PDF parses but yields no text.
var ErrNoText = errors.New("no text extracted from pdf")

// maxPDFBytes caps in-memory extraction.
const maxPDFBytes = 200 << 20

// PDFExtractor pulls plain text out of PDF bytes.
type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// ExtractionResult contains the result of PDF text extraction
type ExtractionResult struct {
	Text           string
	Pages          int
	ProcessingTime time.Duration
	WordCount      int
}

// ExtractText returns the text of every page in page order, joined by "\n".
// Pages that fail to decode are skipped with a warning.
func (e *PDFExtractor) ExtractText(ctx context.Context, content []byte) (result *ExtractionResult, err error) {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(content) == 0 {
		return nil, errors.New("empty pdf")
	}
	if len(content) > maxPDFBytes {
		return nil, fmt.Errorf("pdf too large for in-memory extraction")
	}

	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF reader: %w", err)
	}

	pages := reader.NumPage()
	texts := make([]string, 0, pages)
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			logger.Warn("Failed to extract text from page", "page", i, "error", err)
			continue
		}
		texts = append(texts, text)
	}

	extracted := strings.Join(texts, "\n")
	if strings.TrimSpace(extracted) == "" {
		return nil, ErrNoText
	}

	return &ExtractionResult{
		Text:           extracted,
		Pages:          pages,
		ProcessingTime: time.Since(start),
		WordCount:      len(strings.Fields(extracted)),
	}, nil
}
