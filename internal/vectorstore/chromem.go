package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

const chromemCollection = "invoice_embeddings"

// ChromemConfig configures the embedded chromem-go store.
type ChromemConfig struct {
	// Path is the on-disk location. Empty keeps everything in memory.
	Path string
	// Compress enables gzip for the persisted files.
	Compress bool
	// Metric must be cosine; chromem computes nothing else.
	Metric Metric
	// Dimension, when positive, is enforced on every upsert and query.
	Dimension int
}

// ChromemStore is an embedded vector store with no external dependencies,
// for single-node deployments and tests. It serves cosine distance only.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	dimension  int
	logger     *zap.Logger
}

// NewChromemStore creates the embedded store.
func NewChromemStore(cfg ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Metric != "" && cfg.Metric != MetricCosine {
		return nil, fmt.Errorf("%w: chromem serves cosine only, got %q", ErrUnsupportedMetric, cfg.Metric)
	}

	var db *chromem.DB
	var err error
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("opening chromem db: %w", err)
		}
	}

	// Embeddings always arrive precomputed; a document without one is a
	// programming error.
	noEmbed := func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("chromem store requires precomputed embeddings")
	}
	collection, err := db.GetOrCreateCollection(chromemCollection, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("creating chromem collection: %w", err)
	}

	return &ChromemStore{
		db:         db,
		collection: collection,
		dimension:  cfg.Dimension,
		logger:     logger,
	}, nil
}

// Upsert stores or replaces the embedding for a record.
func (s *ChromemStore) Upsert(ctx context.Context, rec EmbeddingRecord) error {
	if s.dimension > 0 && len(rec.Vector) != s.dimension {
		return fmt.Errorf("%w: got %d, store holds %d", ErrDimensionMismatch, len(rec.Vector), s.dimension)
	}
	doc := chromem.Document{
		ID:        rec.RecordID.String(),
		Embedding: rec.Vector,
		Content:   rec.RecordID.String(),
		Metadata: map[string]string{
			"provider_id":  rec.ProviderID,
			"generated_at": rec.GeneratedAt.UTC().Format(time.RFC3339Nano),
		},
	}
	if err := s.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("storing embedding for %s: %w", rec.RecordID, err)
	}
	return nil
}

// Get returns the stored embedding for a record, or ErrNotFound.
func (s *ChromemStore) Get(ctx context.Context, recordID uuid.UUID) (*EmbeddingRecord, error) {
	doc, err := s.collection.GetByID(ctx, recordID.String())
	if err != nil {
		return nil, ErrNotFound
	}
	generatedAt, _ := time.Parse(time.RFC3339Nano, doc.Metadata["generated_at"])
	return &EmbeddingRecord{
		RecordID:    recordID,
		Vector:      doc.Embedding,
		ProviderID:  doc.Metadata["provider_id"],
		GeneratedAt: generatedAt,
	}, nil
}

// Query ranks vectors of the query's provider by cosine distance. Results
// are re-sorted on (distance, record id) so ties always rank the same way.
func (s *ChromemStore) Query(ctx context.Context, q Query) ([]SimilarityResult, error) {
	if q.Limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidConfig)
	}
	if s.dimension > 0 && len(q.Vector) != s.dimension {
		return nil, fmt.Errorf("%w: got %d, store holds %d", ErrDimensionMismatch, len(q.Vector), s.dimension)
	}

	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}

	// Fetch the full filtered candidate set and rank it here. Chromem's
	// internal top-K selection is a concurrent heap, so when distances tie
	// at the K boundary the tied survivors vary between runs; sorting the
	// complete set on (distance, record id) keeps rankings stable. The
	// fetch size is capped at the collection count, which chromem requires.
	where := map[string]string{"provider_id": q.ProviderID}
	hits, err := s.collection.QueryEmbedding(ctx, q.Vector, count, where, nil)
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}

	exclude := ""
	if q.Exclude != uuid.Nil {
		exclude = q.Exclude.String()
	}

	results := make([]SimilarityResult, 0, len(hits))
	for _, hit := range hits {
		if hit.ID == exclude {
			continue
		}
		id, err := uuid.Parse(hit.ID)
		if err != nil {
			continue
		}
		results = append(results, SimilarityResult{
			RecordID: id,
			Distance: 1 - float64(hit.Similarity),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].RecordID.String() < results[j].RecordID.String()
	})

	if len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results, nil
}

// Delete removes a record's embedding.
func (s *ChromemStore) Delete(ctx context.Context, recordID uuid.UUID) error {
	err := s.collection.Delete(ctx, nil, nil, recordID.String())
	if err != nil {
		return fmt.Errorf("deleting embedding for %s: %w", recordID, err)
	}
	return nil
}

// Count returns the number of stored embeddings.
func (s *ChromemStore) Count(ctx context.Context) (int64, error) {
	return int64(s.collection.Count()), nil
}

// Close is a no-op; chromem persists on write.
func (s *ChromemStore) Close() error {
	return nil
}

var _ Store = (*ChromemStore)(nil)
