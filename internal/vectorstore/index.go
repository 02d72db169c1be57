package vectorstore

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	indexName    = "invoice_embeddings_vector_idx"
	minIndexRows = 100
	minLists     = 10
	maxLists     = 2000
)

// IndexMaintainer rebuilds the IVFFlat index as the corpus grows. Rebuilds
// run outside the write path: inserts and queries proceed while a rebuild
// is in flight, and queries may observe the previous index (or none) until
// the swap completes. That staleness is accepted; the index is a
// discardable projection of the table, never the source of truth.
type IndexMaintainer struct {
	db       *gorm.DB
	metric   Metric
	interval time.Duration
	logger   *zap.Logger

	lastLists int
}

// NewIndexMaintainer creates a maintainer for the pgvector store's index.
func NewIndexMaintainer(db *gorm.DB, metric Metric, interval time.Duration, logger *zap.Logger) *IndexMaintainer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &IndexMaintainer{db: db, metric: metric, interval: interval, logger: logger}
}

// Run rebuilds periodically until the context is cancelled.
func (m *IndexMaintainer) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Rebuild(ctx); err != nil {
				m.logger.Warn("index rebuild failed", zap.Error(err))
			}
		}
	}
}

// Rebuild retunes the IVFFlat partition count to the current corpus size
// and recreates the index when the count changed. Small corpora skip the
// index entirely; sequential scan is exact and fast enough there.
func (m *IndexMaintainer) Rebuild(ctx context.Context) error {
	var rows int64
	if err := m.db.WithContext(ctx).Table("invoice_embeddings").Count(&rows).Error; err != nil {
		return fmt.Errorf("counting embeddings: %w", err)
	}
	if rows < minIndexRows {
		return nil
	}

	lists := listsForCorpus(rows)
	if lists == m.lastLists {
		return nil
	}

	opclass, ok := metricOpclasses[m.metric]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedMetric, m.metric)
	}

	// Build under a temporary name, then swap, so queries keep a usable
	// index throughout.
	tmpName := indexName + "_rebuild"
	drop := fmt.Sprintf("DROP INDEX CONCURRENTLY IF EXISTS %s", tmpName)
	if err := m.db.WithContext(ctx).Exec(drop).Error; err != nil {
		return fmt.Errorf("dropping stale rebuild index: %w", err)
	}

	create := fmt.Sprintf(
		"CREATE INDEX CONCURRENTLY %s ON invoice_embeddings USING ivfflat (vector %s) WITH (lists = %d)",
		tmpName, opclass, lists)
	if err := m.db.WithContext(ctx).Exec(create).Error; err != nil {
		return fmt.Errorf("building index with %d lists: %w", lists, err)
	}

	dropOld := fmt.Sprintf("DROP INDEX CONCURRENTLY IF EXISTS %s", indexName)
	if err := m.db.WithContext(ctx).Exec(dropOld).Error; err != nil {
		return fmt.Errorf("dropping previous index: %w", err)
	}
	rename := fmt.Sprintf("ALTER INDEX %s RENAME TO %s", tmpName, indexName)
	if err := m.db.WithContext(ctx).Exec(rename).Error; err != nil {
		return fmt.Errorf("renaming rebuilt index: %w", err)
	}

	m.lastLists = lists
	m.logger.Info("rebuilt vector index",
		zap.Int64("rows", rows),
		zap.Int("lists", lists))
	return nil
}

// listsForCorpus follows the pgvector tuning guidance: rows/1000 up to a
// million rows, sqrt(rows) beyond, clamped to a sane range.
func listsForCorpus(rows int64) int {
	var lists int
	if rows <= 1_000_000 {
		lists = int(rows / 1000)
	} else {
		lists = int(math.Sqrt(float64(rows)))
	}
	if lists < minLists {
		lists = minLists
	}
	if lists > maxLists {
		lists = maxLists
	}
	return lists
}
