package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"llm-chatbot/internal/ai"
	"llm-chatbot/models"
)

// onePagePDF builds a minimal single-page PDF that draws text in Helvetica.
func onePagePDF(text string) []byte {
	content := fmt.Sprintf("BT /F1 24 Tf 72 720 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

// fakeGenerator answers deterministically and fails on prompts containing
// "fail".
type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	lengths []int
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string, opts ai.GenerateOptions) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.lengths = append(g.lengths, opts.MaxLength)
	g.mu.Unlock()

	if strings.Contains(prompt, "fail") {
		return "", errors.New("inference error (status 500)")
	}
	return prompt + " and a reply", nil
}

func (g *fakeGenerator) last() (string, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.prompts[len(g.prompts)-1], g.lengths[len(g.lengths)-1]
}

type stubRetriever struct {
	texts []string
	err   error
}

func (r stubRetriever) Retrieve(context.Context, string, int) ([]string, error) {
	return r.texts, r.err
}

// fakeArchive records reads and serves fixed entries.
type fakeArchive struct {
	entries []models.Entry
	err     error
	calls   int
	limit   int
}

func (f *fakeArchive) History(_ context.Context, _ string, limit int) ([]models.Entry, error) {
	f.calls++
	f.limit = limit
	return f.entries, f.err
}
