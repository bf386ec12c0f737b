package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"llm-chatbot/internal/ai"
	"llm-chatbot/internal/vectorindex"
	"llm-chatbot/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPDFExtractor_OnePage(t *testing.T) {
	result, err := NewPDFExtractor().ExtractText(context.Background(), onePagePDF("Alpha Beta"))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Pages)
	assert.Contains(t, result.Text, "Alpha Beta")
	assert.NotContains(t, result.Text, "PAGE")
}

func TestPDFExtractor_RejectsNonPDF(t *testing.T) {
	_, err := NewPDFExtractor().ExtractText(context.Background(), []byte("just some text, not a pdf"))
	assert.Error(t, err)

	_, err = NewPDFExtractor().ExtractText(context.Background(), nil)
	assert.Error(t, err)
}

func newMemoryStack() (*IngestionService, *RetrievalService, *vectorindex.Memory) {
	embedder := ai.NewHashEmbedder(384)
	index := vectorindex.NewMemory()
	return NewIngestionService(nil, embedder, index, nil), NewRetrievalService(embedder, index), index
}

func TestIngestThenRetrieve(t *testing.T) {
	ingest, retrieve, index := newMemoryStack()
	ctx := context.Background()

	require.NoError(t, ingest.Ingest(ctx, onePagePDF("Alpha Beta"), "alpha.pdf"))
	require.NoError(t, ingest.Ingest(ctx, onePagePDF("Gamma Delta"), "gamma.pdf"))
	assert.Equal(t, 2, index.Len())

	texts, err := retrieve.Retrieve(ctx, "Alpha", DefaultTopK)
	require.NoError(t, err)
	require.NotEmpty(t, texts)
	assert.Contains(t, texts[0], "Alpha Beta")
}

func TestIngest_SameFilenameOverwrites(t *testing.T) {
	ingest, retrieve, index := newMemoryStack()
	ctx := context.Background()

	require.NoError(t, ingest.Ingest(ctx, onePagePDF("Alpha Beta"), "doc.pdf"))
	require.NoError(t, ingest.Ingest(ctx, onePagePDF("Epsilon Zeta"), "doc.pdf"))
	assert.Equal(t, 1, index.Len())

	texts, err := retrieve.Retrieve(ctx, "Epsilon", 3)
	require.NoError(t, err)
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "Epsilon Zeta")
}

func TestIngest_InvalidDocumentUpsertsNothing(t *testing.T) {
	ingest, _, index := newMemoryStack()

	err := ingest.Ingest(context.Background(), []byte("not a pdf"), "bad.pdf")
	require.Error(t, err)
	assert.Equal(t, utils.KindInvalidDocument, utils.KindOf(err))
	assert.Equal(t, 0, index.Len())
}

func TestIngest_CancelledContextIsNotInvalidDocument(t *testing.T) {
	ingest, _, index := newMemoryStack()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ingest.Ingest(ctx, onePagePDF("Alpha Beta"), "alpha.pdf")
	require.Error(t, err)
	assert.Equal(t, utils.KindInternal, utils.KindOf(err))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, index.Len())
}

func TestPDFExtractor_ExpiredDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), -time.Second)
	defer cancel()

	_, err := NewPDFExtractor().ExtractText(ctx, onePagePDF("Alpha Beta"))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

type brokenIndex struct{}

func (brokenIndex) Upsert(context.Context, vectorindex.Record) error {
	return errors.New("401 unauthorized")
}

func (brokenIndex) Query(context.Context, []float32, int) ([]vectorindex.Match, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func TestIngest_IndexFailureIsUpstream(t *testing.T) {
	ingest := NewIngestionService(nil, ai.NewHashEmbedder(16), brokenIndex{}, nil)

	err := ingest.Ingest(context.Background(), onePagePDF("Alpha Beta"), "a.pdf")
	assert.Equal(t, utils.KindUpstream, utils.KindOf(err))
}

func TestRetrieve_EmptyIndex(t *testing.T) {
	_, retrieve, _ := newMemoryStack()

	texts, err := retrieve.Retrieve(context.Background(), "anything", 3)
	require.NoError(t, err)
	assert.NotNil(t, texts)
	assert.Empty(t, texts)
}

func TestRetrieve_IndexFaultIsUpstream(t *testing.T) {
	retrieve := NewRetrievalService(ai.NewHashEmbedder(16), brokenIndex{})

	_, err := retrieve.Retrieve(context.Background(), "q", 3)
	require.Error(t, err)
	assert.Equal(t, utils.KindUpstream, utils.KindOf(err))
	assert.True(t, strings.Contains(err.Error(), "connection refused"))
}
