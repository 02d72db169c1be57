// Package parsecache stores extraction results keyed by document content,
// so resubmitting identical bytes never re-runs the extractor. Entries are
// immutable once written: a different byte stream is a different key, so
// nothing is ever invalidated.
package parsecache

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"

	"github.com/fyrsmithlabs/ledgerd/internal/extraction"
)

// ErrNotFound is returned by Lookup when no entry exists for the key.
var ErrNotFound = errors.New("parse cache entry not found")

// Entry is one immutable cached extraction result.
type Entry struct {
	// Key is the content hash joined with the extractor version, so a
	// template or prompt change starts a fresh cache generation without
	// touching old entries.
	Key           string                      `gorm:"primaryKey;size:80"`
	Fields        extraction.FieldSet         `gorm:"serializer:json"`
	Method        extraction.Method           `gorm:"size:16"`
	Confidence    float64                     `gorm:"not null"`
	NeedsReview   bool                        `gorm:"not null"`
	ReviewReasons datatypes.JSONSlice[string] ``
	ComputedAt    time.Time                   `gorm:"not null"`
}

// TableName implements the gorm naming override.
func (Entry) TableName() string { return "parse_cache" }

// Key builds the cache key for a document content hash under the current
// extractor version.
func Key(contentHash string) string {
	return contentHash + ":" + extraction.Version
}

// Cache is a content-addressed store of extraction results.
//
// Store is insert-if-absent: when two writers race on the same key, the
// first write wins and both callers get the winning entry back. Callers
// must use the returned entry, not the one they passed in.
type Cache interface {
	// Lookup returns the entry for key, or ErrNotFound.
	Lookup(ctx context.Context, key string) (*Entry, error)
	// Store inserts entry unless its key already exists, and returns the
	// canonical entry for the key either way.
	Store(ctx context.Context, entry *Entry) (*Entry, error)
}
