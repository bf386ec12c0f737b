package services

import (
	"context"

	"llm-chatbot/internal/ai"
	"llm-chatbot/internal/vectorindex"
	"llm-chatbot/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultTopK is the number of documents fetched per query.
const DefaultTopK = 3

// Retriever returns stored document texts relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]string, error)
}

type RetrievalService struct {
	embedder ai.Embedder
	index    vectorindex.Index
}

func NewRetrievalService(embedder ai.Embedder, index vectorindex.Index) *RetrievalService {
	return &RetrievalService{embedder: embedder, index: index}
}

// Retrieve returns the texts of the k nearest documents in the index's
// ranking order. No matches is an empty slice, not an error.
func (s *RetrievalService) Retrieve(ctx context.Context, query string, k int) ([]string, error) {
	ctx, span := otel.Tracer("retrieval").Start(ctx, "retrieval.retrieve")
	defer span.End()
	if k <= 0 {
		k = DefaultTopK
	}
	span.SetAttributes(attribute.Int("retrieval.top_k", k))

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, utils.NewAppError(utils.KindUpstream, "Failed to embed query", err)
	}

	matches, err := s.index.Query(ctx, vector, k)
	if err != nil {
		span.RecordError(err)
		return nil, utils.NewAppError(utils.KindUpstream, "Vector index query failed", err)
	}

	texts := make([]string, 0, len(matches))
	for _, m := range matches {
		texts = append(texts, m.Text)
	}
	span.SetAttributes(attribute.Int("retrieval.matches", len(texts)))
	return texts, nil
}
