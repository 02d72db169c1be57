package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// embeddingRow is the invoice_embeddings table. The vector column's
// dimension is fixed at table creation from PgvectorConfig, so the type
// tag here carries no typmod.
type embeddingRow struct {
	RecordID    uuid.UUID       `gorm:"type:uuid;primaryKey;column:record_id"`
	Vector      pgvector.Vector `gorm:"type:vector;not null"`
	ProviderID  string          `gorm:"size:128;not null;index;column:provider_id"`
	GeneratedAt time.Time       `gorm:"not null"`
}

func (embeddingRow) TableName() string { return "invoice_embeddings" }

// distanceOperators maps metrics to pgvector SQL operators.
var distanceOperators = map[Metric]string{
	MetricCosine:       "<=>",
	MetricL2:           "<->",
	MetricInnerProduct: "<#>",
}

// metricOpclasses maps metrics to ivfflat operator classes.
var metricOpclasses = map[Metric]string{
	MetricCosine:       "vector_cosine_ops",
	MetricL2:           "vector_l2_ops",
	MetricInnerProduct: "vector_ip_ops",
}

// PgvectorConfig configures the PostgreSQL-backed store.
type PgvectorConfig struct {
	// Metric is the distance function. Defaults to cosine.
	Metric Metric
	// Dimension is the vector length, fixed for the table's lifetime.
	Dimension int
}

// PgvectorStore persists embeddings in a PostgreSQL vector column.
type PgvectorStore struct {
	db        *gorm.DB
	metric    Metric
	dimension int
	logger    *zap.Logger
}

// NewPgvectorStore ensures the vector extension and table exist and
// returns the store.
func NewPgvectorStore(db *gorm.DB, cfg PgvectorConfig, logger *zap.Logger) (*PgvectorStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metric := cfg.Metric
	if metric == "" {
		metric = MetricCosine
	}
	if _, ok := distanceOperators[metric]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMetric, metric)
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}

	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return nil, fmt.Errorf("creating vector extension: %w", err)
	}
	createTable := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS invoice_embeddings (
		record_id uuid PRIMARY KEY,
		vector vector(%d) NOT NULL,
		provider_id varchar(128) NOT NULL,
		generated_at timestamptz NOT NULL
	)`, cfg.Dimension)
	if err := db.Exec(createTable).Error; err != nil {
		return nil, fmt.Errorf("creating invoice_embeddings table: %w", err)
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS invoice_embeddings_provider_idx ON invoice_embeddings (provider_id)").Error; err != nil {
		return nil, fmt.Errorf("creating provider index: %w", err)
	}

	return &PgvectorStore{db: db, metric: metric, dimension: cfg.Dimension, logger: logger}, nil
}

// Upsert stores or replaces the embedding for a record.
func (s *PgvectorStore) Upsert(ctx context.Context, rec EmbeddingRecord) error {
	if len(rec.Vector) != s.dimension {
		return fmt.Errorf("%w: got %d, store holds %d", ErrDimensionMismatch, len(rec.Vector), s.dimension)
	}
	row := embeddingRow{
		RecordID:    rec.RecordID,
		Vector:      pgvector.NewVector(rec.Vector),
		ProviderID:  rec.ProviderID,
		GeneratedAt: rec.GeneratedAt,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "record_id"}},
			UpdateAll: true,
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("upserting embedding for %s: %w", rec.RecordID, err)
	}
	return nil
}

// Get returns the stored embedding for a record, or ErrNotFound.
func (s *PgvectorStore) Get(ctx context.Context, recordID uuid.UUID) (*EmbeddingRecord, error) {
	var row embeddingRow
	err := s.db.WithContext(ctx).First(&row, "record_id = ?", recordID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading embedding for %s: %w", recordID, err)
	}
	return &EmbeddingRecord{
		RecordID:    row.RecordID,
		Vector:      row.Vector.Slice(),
		ProviderID:  row.ProviderID,
		GeneratedAt: row.GeneratedAt,
	}, nil
}

// Query ranks vectors of the query's provider by the configured distance
// operator. The ORDER BY carries the record id as a secondary key so equal
// distances always rank the same way.
func (s *PgvectorStore) Query(ctx context.Context, q Query) ([]SimilarityResult, error) {
	if q.Limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidConfig)
	}
	if len(q.Vector) != s.dimension {
		return nil, fmt.Errorf("%w: got %d, store holds %d", ErrDimensionMismatch, len(q.Vector), s.dimension)
	}

	op := distanceOperators[s.metric]
	tx := s.db.WithContext(ctx).
		Table("invoice_embeddings").
		Select(fmt.Sprintf("record_id, vector %s ? AS distance", op), pgvector.NewVector(q.Vector)).
		Where("provider_id = ?", q.ProviderID)
	if q.Exclude != uuid.Nil {
		tx = tx.Where("record_id <> ?", q.Exclude)
	}

	var rows []struct {
		RecordID uuid.UUID
		Distance float64
	}
	if err := tx.Order("distance, record_id").Limit(q.Limit).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}

	results := make([]SimilarityResult, len(rows))
	for i, r := range rows {
		results[i] = SimilarityResult{RecordID: r.RecordID, Distance: r.Distance}
	}
	return results, nil
}

// Delete removes a record's embedding.
func (s *PgvectorStore) Delete(ctx context.Context, recordID uuid.UUID) error {
	err := s.db.WithContext(ctx).Delete(&embeddingRow{}, "record_id = ?", recordID).Error
	if err != nil {
		return fmt.Errorf("deleting embedding for %s: %w", recordID, err)
	}
	return nil
}

// Count returns the number of stored embeddings.
func (s *PgvectorStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&embeddingRow{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting embeddings: %w", err)
	}
	return count, nil
}

// Metric returns the store's distance metric.
func (s *PgvectorStore) Metric() Metric {
	return s.metric
}

// Close is a no-op; the store does not own the database handle.
func (s *PgvectorStore) Close() error {
	return nil
}

var _ Store = (*PgvectorStore)(nil)
