// Package vectorindex stores document embeddings and answers nearest-neighbour
// queries against them.
package vectorindex

import (
	"context"
	"fmt"
	"time"

	"llm-chatbot/internal/config"
	"llm-chatbot/internal/logger"
	"llm-chatbot/internal/telemetry"

	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/mongo"
)

// Metadata is stored alongside each vector.
type Metadata struct {
	Text string `json:"text" bson:"text"`
}

// Record is one document in the index. Upserting the same ID replaces it.
type Record struct {
	ID       string
	Vector   []float32
	Metadata Metadata
}

// Match is a query hit.
type Match struct {
	ID    string
	Score float64
	Text  string
}

// Index is implemented by every backend. Query returns matches in descending
// similarity and an empty, non-nil slice when nothing is stored.
type Index interface {
	Upsert(ctx context.Context, rec Record) error
	Query(ctx context.Context, vector []float32, k int) ([]Match, error)
}

// New builds the index selected by VECTOR_INDEX_PROVIDER, wrapped in a
// circuit breaker. mongoClient is only used by the mongo provider.
func New(cfg *config.Config, mongoClient *mongo.Client, metrics *telemetry.Metrics) (Index, error) {
	var idx Index
	switch cfg.VectorIndexProvider {
	case config.VectorProviderPinecone:
		idx = NewPinecone(PineconeConfig{URL: cfg.VectorIndexURL, APIKey: cfg.VectorIndexAPIKey, Namespace: cfg.VectorIndexName})
	case config.VectorProviderQdrant:
		q := NewQdrant(QdrantConfig{URL: cfg.VectorIndexURL, APIKey: cfg.VectorIndexAPIKey, Collection: cfg.VectorIndexName})
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := q.Init(ctx, cfg.VectorDimensions); err != nil {
			return nil, fmt.Errorf("qdrant init: %w", err)
		}
		idx = q
	case config.VectorProviderMongo:
		if mongoClient == nil {
			return nil, fmt.Errorf("mongo vector index requires MONGO_URI")
		}
		idx = NewMongo(mongoClient.Database(cfg.DBName).Collection(cfg.VectorIndexName), cfg.VectorIndexName)
	case config.VectorProviderMemory:
		idx = NewMemory()
	default:
		return nil, fmt.Errorf("unknown vector index provider: %s", cfg.VectorIndexProvider)
	}

	logger.Info("Vector index ready", "provider", cfg.VectorIndexProvider, "name", cfg.VectorIndexName)
	return WithBreaker(idx, cfg.VectorIndexProvider, metrics), nil
}

// breakerIndex trips after repeated backend faults so a dead index fails fast.
type breakerIndex struct {
	inner   Index
	breaker *gobreaker.CircuitBreaker
}

// WithBreaker wraps idx in a circuit breaker named after the provider.
func WithBreaker(idx Index, name string, metrics *telemetry.Metrics) Index {
	return &breakerIndex{
		inner: idx,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "VectorIndex-" + name,
			MaxRequests: 2,
			Interval:    30 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				logger.Warn("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
				metrics.RecordCircuitBreakerState(name, to.String())
			},
		}),
	}
}

func (b *breakerIndex) Upsert(ctx context.Context, rec Record) error {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, b.inner.Upsert(ctx, rec)
	})
	return err
}

func (b *breakerIndex) Query(ctx context.Context, vector []float32, k int) ([]Match, error) {
	res, err := b.breaker.Execute(func() (interface{}, error) {
		return b.inner.Query(ctx, vector, k)
	})
	if err != nil {
		return nil, err
	}
	return res.([]Match), nil
}
