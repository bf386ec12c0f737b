package services

import (
	"context"
	"errors"
	"time"

	"llm-chatbot/internal/ai"
	"llm-chatbot/internal/logger"
	"llm-chatbot/internal/telemetry"
	"llm-chatbot/internal/vectorindex"
	"llm-chatbot/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Ingester is what the upload route and the queue worker call.
type Ingester interface {
	Ingest(ctx context.Context, content []byte, filename string) error
}

// IngestionService turns an uploaded PDF into one indexed vector keyed by its
// filename. A later upload with the same filename replaces the earlier one.
type IngestionService struct {
	extractor *PDFExtractor
	embedder  ai.Embedder
	index     vectorindex.Index
	metrics   *telemetry.Metrics
}

func NewIngestionService(extractor *PDFExtractor, embedder ai.Embedder, index vectorindex.Index, metrics *telemetry.Metrics) *IngestionService {
	if extractor == nil {
		extractor = NewPDFExtractor()
	}
	return &IngestionService{
		extractor: extractor,
		embedder:  embedder,
		index:     index,
		metrics:   metrics,
	}
}

func (s *IngestionService) Ingest(ctx context.Context, content []byte, filename string) error {
	ctx, span := otel.Tracer("ingestion").Start(ctx, "ingestion.ingest")
	defer span.End()
	span.SetAttributes(
		attribute.String("pdf.filename", filename),
		attribute.Int("pdf.bytes", len(content)),
	)
	start := time.Now()

	fail := func(kind utils.ErrorKind, msg string, err error) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
		s.metrics.RecordPDFProcessing(time.Since(start).Seconds(), "failed")
		logger.Error(msg, "filename", filename, "error", err)
		return utils.NewAppError(kind, msg, err)
	}

	if filename == "" {
		return fail(utils.KindInvalidInput, "Missing filename", nil)
	}

	result, err := s.extractor.ExtractText(ctx, content)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Retryable.
		return fail(utils.KindInternal, "PDF extraction interrupted", err)
	default:
		return fail(utils.KindInvalidDocument, "Invalid or unreadable PDF", err)
	}

	vector, err := s.embedder.Embed(ctx, result.Text)
	if err != nil {
		return fail(utils.KindUpstream, "Failed to embed document", err)
	}

	rec := vectorindex.Record{
		ID:       filename,
		Vector:   vector,
		Metadata: vectorindex.Metadata{Text: result.Text},
	}
	if err := s.index.Upsert(ctx, rec); err != nil {
		return fail(utils.KindUpstream, "Failed to index document", err)
	}

	s.metrics.RecordPDFProcessing(time.Since(start).Seconds(), "completed")
	logger.Info("PDF indexed",
		"filename", filename,
		"pages", result.Pages,
		"words", result.WordCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
