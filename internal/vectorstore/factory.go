package vectorstore

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Config selects and configures a store backend.
type Config struct {
	// Backend is "pgvector" or "chromem".
	Backend string
	// Metric is the distance function, applied store-wide.
	Metric Metric
	// Dimension is the vector length, fixed per deployment.
	Dimension int
	// Path is the chromem data directory (empty keeps it in memory).
	Path string
}

// NewStore creates a vector store from configuration. db is required for
// the pgvector backend and ignored otherwise.
func NewStore(cfg Config, db *gorm.DB, logger *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case "pgvector", "":
		if db == nil {
			return nil, fmt.Errorf("%w: pgvector backend requires a database handle", ErrInvalidConfig)
		}
		return NewPgvectorStore(db, PgvectorConfig{
			Metric:    cfg.Metric,
			Dimension: cfg.Dimension,
		}, logger)
	case "chromem":
		return NewChromemStore(ChromemConfig{
			Path:      cfg.Path,
			Metric:    cfg.Metric,
			Dimension: cfg.Dimension,
		}, logger)
	default:
		return nil, fmt.Errorf("%w: unsupported backend %q (supported: pgvector, chromem)", ErrInvalidConfig, cfg.Backend)
	}
}
