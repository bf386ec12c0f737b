package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
	"unicode"

	"llm-chatbot/internal/config"

	"github.com/google/generative-ai-go/genai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/api/option"
)

// Embedder turns text into a fixed-length vector. Implementations are
// deterministic for fixed weights and do no batching or caching.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// NewEmbedder builds the embedder selected by EMBEDDINGS_PROVIDER.
func NewEmbedder(ctx context.Context, cfg *config.Config) (Embedder, error) {
	switch cfg.EmbeddingsProvider {
	case "huggingface", "":
		return NewHuggingFaceEmbedder(cfg.InferenceURL, cfg.EmbeddingsModel, cfg.HFToken, cfg.VectorDimensions), nil

	case "google":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("missing GEMINI_API_KEY for embeddings")
		}
		return NewGeminiEmbedder(ctx, cfg.GeminiAPIKey, cfg.GoogleEmbeddingsModel, cfg.VectorDimensions)

	case "ollama":
		return NewOllamaEmbedder(cfg.OllamaURL, cfg.EmbeddingsModel, cfg.VectorDimensions), nil

	case "local":
		return NewHashEmbedder(cfg.VectorDimensions), nil

	default:
		return nil, fmt.Errorf("unknown embeddings provider: %s", cfg.EmbeddingsProvider)
	}
}

// HuggingFaceEmbedder calls the hosted feature-extraction pipeline of a
// sentence-embedding model.
type HuggingFaceEmbedder struct {
	endpoint  string
	token     string
	dimension int
	client    *http.Client
}

func NewHuggingFaceEmbedder(inferenceURL, model, token string, dimension int) *HuggingFaceEmbedder {
	return &HuggingFaceEmbedder{
		endpoint:  fmt.Sprintf("%s/models/%s/pipeline/feature-extraction", strings.TrimRight(inferenceURL, "/"), model),
		token:     token,
		dimension: dimension,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (e *HuggingFaceEmbedder) Dimension() int { return e.dimension }

func (e *HuggingFaceEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, span := otel.Tracer("embeddings").Start(ctx, "embeddings.huggingface")
	defer span.End()
	span.SetAttributes(attribute.Int("embedding.input_chars", len(text)))

	payload, err := json.Marshal(map[string]any{
		"inputs":  text,
		"options": map[string]bool{"wait_for_model": true},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("huggingface embedding error (status %d): %s", resp.StatusCode, truncate(string(body), 200))
	}

	return decodeFeatures(body)
}

// decodeFeatures accepts a pooled vector, a token-level matrix, or a batch of
// one token-level matrix. Token-level output is mean-pooled.
func decodeFeatures(body []byte) ([]float32, error) {
	var pooled []float32
	if err := json.Unmarshal(body, &pooled); err == nil {
		if len(pooled) == 0 {
			return nil, errors.New("no embedding returned")
		}
		return pooled, nil
	}

	var tokens [][]float32
	if err := json.Unmarshal(body, &tokens); err == nil {
		return meanPool(tokens)
	}

	var batch [][][]float32
	if err := json.Unmarshal(body, &batch); err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	if len(batch) == 0 {
		return nil, errors.New("no embedding returned")
	}
	return meanPool(batch[0])
}

func meanPool(tokens [][]float32) ([]float32, error) {
	if len(tokens) == 0 || len(tokens[0]) == 0 {
		return nil, errors.New("no embedding returned")
	}
	out := make([]float32, len(tokens[0]))
	for _, tok := range tokens {
		if len(tok) != len(out) {
			return nil, errors.New("ragged token embeddings")
		}
		for i, v := range tok {
			out[i] += v
		}
	}
	n := float32(len(tokens))
	for i := range out {
		out[i] /= n
	}
	return out, nil
}

// GeminiEmbedder uses Google Generative AI (text-embedding-004 by default).
type GeminiEmbedder struct {
	client    *genai.Client
	model     string
	dimension int
}

func NewGeminiEmbedder(ctx context.Context, apiKey, model string, dimension int) (*GeminiEmbedder, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &GeminiEmbedder{client: client, model: model, dimension: dimension}, nil
}

func (e *GeminiEmbedder) Dimension() int { return e.dimension }

func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, span := otel.Tracer("embeddings").Start(ctx, "embeddings.google")
	defer span.End()

	resp, err := e.client.EmbeddingModel(e.model).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, err
	}
	if resp.Embedding == nil {
		return nil, fmt.Errorf("no embedding returned")
	}

	// genai SDK returns []float32 for Embedding.Values
	return resp.Embedding.Values, nil
}

// Close releases the Gemini client.
func (e *GeminiEmbedder) Close() error {
	return e.client.Close()
}

// OllamaEmbedder calls a local Ollama server's /api/embeddings.
type OllamaEmbedder struct {
	baseURL   string
	model     string
	dimension int
	client    *http.Client
}

func NewOllamaEmbedder(baseURL, model string, dimension int) *OllamaEmbedder {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaEmbedder{
		baseURL:   strings.TrimRight(baseURL, "/"),
		model:     model,
		dimension: dimension,
		client:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (e *OllamaEmbedder) Dimension() int { return e.dimension }

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(map[string]string{"model": e.model, "prompt": text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama embedding error: %s", truncate(string(body), 200))
	}

	var out struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return out.Embedding, nil
}

// HashEmbedder is an offline embedder: lower-cased letter/digit tokens are
// hashed into buckets and the counts are L2-normalised.
type HashEmbedder struct {
	dimension int
}

func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = 384
	}
	return &HashEmbedder{dimension: dimension}
}

func (e *HashEmbedder) Dimension() int { return e.dimension }

func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimension)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[h.Sum32()%uint32(e.dimension)]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		vec[i] = float32(float64(v) / norm)
	}
	return vec, nil
}
