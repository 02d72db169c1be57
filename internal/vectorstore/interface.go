// Package vectorstore persists invoice embeddings and answers approximate
// nearest-neighbor queries over them.
//
// Vectors are grouped by the embedding provider that produced them;
// vectors from different providers live in disjoint spaces and a query
// only ever ranks against vectors of its own provider. Ranking is
// deterministic: ascending distance, ties broken by record id.
package vectorstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no embedding exists for a record.
	ErrNotFound = errors.New("embedding not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnsupportedMetric is returned when a backend cannot serve the
	// configured distance metric.
	ErrUnsupportedMetric = errors.New("unsupported distance metric")

	// ErrDimensionMismatch is returned when a vector's length differs
	// from the store's configured dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Metric selects the distance function. It applies to the whole store;
// mixing metrics within one index is not supported.
type Metric string

const (
	// MetricCosine is cosine distance, range 0-2, lower is more similar.
	MetricCosine Metric = "cosine"
	// MetricL2 is Euclidean distance.
	MetricL2 Metric = "l2"
	// MetricInnerProduct is negative inner product, so ascending order
	// still ranks most similar first.
	MetricInnerProduct Metric = "ip"
)

// EmbeddingRecord is one stored vector, tagged with the provider that
// produced it.
type EmbeddingRecord struct {
	RecordID    uuid.UUID
	Vector      []float32
	ProviderID  string
	GeneratedAt time.Time
}

// SimilarityResult is one ranked query hit.
type SimilarityResult struct {
	RecordID uuid.UUID
	Distance float64
}

// Query is a nearest-neighbor request. ProviderID scopes the search to
// vectors of one provider; Exclude (when non-nil) drops a record from the
// results, for similar-to-record queries.
type Query struct {
	Vector     []float32
	ProviderID string
	Limit      int
	Exclude    uuid.UUID
}

// Store persists embeddings and serves similarity queries.
type Store interface {
	// Upsert stores or replaces the embedding for a record.
	Upsert(ctx context.Context, rec EmbeddingRecord) error
	// Get returns the stored embedding for a record, or ErrNotFound.
	Get(ctx context.Context, recordID uuid.UUID) (*EmbeddingRecord, error)
	// Query returns up to Limit results ascending by distance, ties
	// broken by record id.
	Query(ctx context.Context, q Query) ([]SimilarityResult, error)
	// Delete removes a record's embedding. Deleting an absent record is
	// not an error.
	Delete(ctx context.Context, recordID uuid.UUID) error
	// Count returns the number of stored embeddings.
	Count(ctx context.Context) (int64, error)
	// Close releases resources held by the store.
	Close() error
}
