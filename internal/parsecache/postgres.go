package parsecache

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostgresCache persists cache entries in PostgreSQL.
type PostgresCache struct {
	db *gorm.DB
}

// NewPostgresCache migrates the parse_cache table and returns the cache.
func NewPostgresCache(db *gorm.DB) (*PostgresCache, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("migrating parse cache: %w", err)
	}
	return &PostgresCache{db: db}, nil
}

// Lookup returns the entry for key, or ErrNotFound.
func (c *PostgresCache) Lookup(ctx context.Context, key string) (*Entry, error) {
	var entry Entry
	err := c.db.WithContext(ctx).First(&entry, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up parse cache entry: %w", err)
	}
	return &entry, nil
}

// Store inserts the entry with ON CONFLICT DO NOTHING, then reads back the
// row so racing writers converge on the first write.
func (c *PostgresCache) Store(ctx context.Context, entry *Entry) (*Entry, error) {
	err := c.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoNothing: true,
		}).
		Create(entry).Error
	if err != nil {
		return nil, fmt.Errorf("storing parse cache entry: %w", err)
	}
	return c.Lookup(ctx, entry.Key)
}

var _ Cache = (*PostgresCache)(nil)
