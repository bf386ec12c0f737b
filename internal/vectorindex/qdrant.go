package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Qdrant point ids must be unsigned ints or UUIDs, so document ids are mapped
// to name-based UUIDs in this namespace.
var qdrantNamespace = uuid.MustParse("8f6b3c1e-2d4a-5b7c-9e0f-1a2b3c4d5e6f")

type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// Qdrant is a minimal REST client for one collection using cosine distance.
type Qdrant struct {
	rest       restClient
	collection string
}

func NewQdrant(cfg QdrantConfig) *Qdrant {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Qdrant{
		rest: restClient{
			baseURL:   strings.TrimRight(cfg.URL, "/"),
			keyHeader: "api-key",
			apiKey:    cfg.APIKey,
			client:    &http.Client{Timeout: timeout},
			name:      "qdrant",
		},
		collection: cfg.Collection,
	}
}

// Init creates the collection unless it already exists.
func (q *Qdrant) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	path := "/collections/" + q.collection
	if err := q.rest.do(ctx, http.MethodGet, path, nil, nil); err == nil {
		return nil
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	return q.rest.do(ctx, http.MethodPut, path, body, nil)
}

// PointID is the UUID a document id is stored under.
func PointID(docID string) string {
	return uuid.NewSHA1(qdrantNamespace, []byte(docID)).String()
}

func (q *Qdrant) Upsert(ctx context.Context, rec Record) error {
	ctx, span := otel.Tracer("vectorindex").Start(ctx, "qdrant.upsert")
	defer span.End()
	span.SetAttributes(attribute.String("vector.id", rec.ID))

	body := map[string]any{
		"points": []map[string]any{{
			"id":     PointID(rec.ID),
			"vector": rec.Vector,
			"payload": map[string]any{
				"filename": rec.ID,
				"text":     rec.Metadata.Text,
			},
		}},
	}
	return q.rest.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/points?wait=true", q.collection), body, nil)
}

func (q *Qdrant) Query(ctx context.Context, vector []float32, k int) ([]Match, error) {
	ctx, span := otel.Tracer("vectorindex").Start(ctx, "qdrant.query")
	defer span.End()
	span.SetAttributes(attribute.Int("vector.top_k", k))

	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := q.rest.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", q.collection), req, &resp); err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		m := Match{Score: r.Score}
		if v, ok := r.Payload["filename"].(string); ok {
			m.ID = v
		}
		if v, ok := r.Payload["text"].(string); ok {
			m.Text = v
		}
		matches = append(matches, m)
	}
	return matches, nil
}
