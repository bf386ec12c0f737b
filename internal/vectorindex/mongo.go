package vectorindex

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// documentVector is the stored shape; the Atlas vector search index must be
// defined on the "vector" path.
type documentVector struct {
	ID     string    `bson:"_id"`
	Vector []float32 `bson:"vector"`
	Text   string    `bson:"text"`
}

// Mongo uses an Atlas collection with a $vectorSearch index.
type Mongo struct {
	col       *mongo.Collection
	indexName string
}

func NewMongo(col *mongo.Collection, indexName string) *Mongo {
	return &Mongo{col: col, indexName: indexName}
}

func (m *Mongo) Upsert(ctx context.Context, rec Record) error {
	ctx, span := otel.Tracer("vectorindex").Start(ctx, "mongo.upsert")
	defer span.End()
	span.SetAttributes(attribute.String("vector.id", rec.ID))

	doc := documentVector{ID: rec.ID, Vector: rec.Vector, Text: rec.Metadata.Text}
	_, err := m.col.ReplaceOne(ctx, bson.M{"_id": rec.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo upsert failed: %w", err)
	}
	return nil
}

func (m *Mongo) Query(ctx context.Context, vector []float32, k int) ([]Match, error) {
	ctx, span := otel.Tracer("vectorindex").Start(ctx, "mongo.query")
	defer span.End()
	span.SetAttributes(attribute.Int("vector.top_k", k))

	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: m.indexName},
			{Key: "path", Value: "vector"},
			{Key: "queryVector", Value: vector},
			{Key: "numCandidates", Value: k * 10},
			{Key: "limit", Value: k},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "text", Value: 1},
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
	}

	cursor, err := m.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("mongo vector search failed: %w", err)
	}
	defer cursor.Close(ctx)

	matches := make([]Match, 0, k)
	for cursor.Next(ctx) {
		var hit struct {
			ID    string  `bson:"_id"`
			Text  string  `bson:"text"`
			Score float64 `bson:"score"`
		}
		if err := cursor.Decode(&hit); err != nil {
			return nil, fmt.Errorf("decode vector search hit: %w", err)
		}
		matches = append(matches, Match{ID: hit.ID, Score: hit.Score, Text: hit.Text})
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return matches, nil
}
