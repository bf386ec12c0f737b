package vectorindex

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

type PineconeConfig struct {
	URL       string
	APIKey    string
	Namespace string
	Timeout   time.Duration
}

// Pinecone talks to a Pinecone index host over its data-plane REST API.
type Pinecone struct {
	rest      restClient
	namespace string
}

func NewPinecone(cfg PineconeConfig) *Pinecone {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Pinecone{
		rest: restClient{
			baseURL:   strings.TrimRight(cfg.URL, "/"),
			keyHeader: "Api-Key",
			apiKey:    cfg.APIKey,
			client:    &http.Client{Timeout: timeout},
			name:      "pinecone",
		},
		namespace: cfg.Namespace,
	}
}

type pineconeVector struct {
	ID       string    `json:"id"`
	Values   []float32 `json:"values"`
	Metadata Metadata  `json:"metadata"`
}

func (p *Pinecone) Upsert(ctx context.Context, rec Record) error {
	ctx, span := otel.Tracer("vectorindex").Start(ctx, "pinecone.upsert")
	defer span.End()
	span.SetAttributes(attribute.String("vector.id", rec.ID))

	body := map[string]any{
		"vectors":   []pineconeVector{{ID: rec.ID, Values: rec.Vector, Metadata: rec.Metadata}},
		"namespace": p.namespace,
	}
	return p.rest.do(ctx, http.MethodPost, "/vectors/upsert", body, nil)
}

func (p *Pinecone) Query(ctx context.Context, vector []float32, k int) ([]Match, error) {
	ctx, span := otel.Tracer("vectorindex").Start(ctx, "pinecone.query")
	defer span.End()
	span.SetAttributes(attribute.Int("vector.top_k", k))

	body := map[string]any{
		"vector":          vector,
		"topK":            k,
		"includeMetadata": true,
		"namespace":       p.namespace,
	}
	var resp struct {
		Matches []struct {
			ID       string   `json:"id"`
			Score    float64  `json:"score"`
			Metadata Metadata `json:"metadata"`
		} `json:"matches"`
	}
	if err := p.rest.do(ctx, http.MethodPost, "/query", body, &resp); err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		matches = append(matches, Match{ID: m.ID, Score: m.Score, Text: m.Metadata.Text})
	}
	return matches, nil
}
