package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fyrsmithlabs/ledgerd/internal/invoice"
)

// PostgresInvoiceStore is the gorm-backed InvoiceStore.
type PostgresInvoiceStore struct {
	db *gorm.DB
}

var _ InvoiceStore = (*PostgresInvoiceStore)(nil)

// NewPostgresInvoiceStore migrates the invoice tables and returns the
// store.
func NewPostgresInvoiceStore(db *gorm.DB) (*PostgresInvoiceStore, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if err := db.AutoMigrate(&invoice.Invoice{}, &invoice.LineItem{}); err != nil {
		return nil, fmt.Errorf("migrate invoice tables: %w", err)
	}
	return &PostgresInvoiceStore{db: db}, nil
}

func (s *PostgresInvoiceStore) Create(ctx context.Context, inv *invoice.Invoice) error {
	return s.db.WithContext(ctx).Create(inv).Error
}

func (s *PostgresInvoiceStore) Update(ctx context.Context, inv *invoice.Invoice) error {
	res := s.db.WithContext(ctx).Omit("LineItems").Save(inv)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresInvoiceStore) GetByID(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error) {
	var inv invoice.Invoice
	err := s.db.WithContext(ctx).
		Preload("LineItems", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		First(&inv, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s *PostgresInvoiceStore) GetByContentHash(ctx context.Context, hash string) (*invoice.Invoice, error) {
	var inv invoice.Invoice
	err := s.db.WithContext(ctx).
		Preload("LineItems", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		First(&inv, "content_hash = ?", hash).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s *PostgresInvoiceStore) List(ctx context.Context, filter ListFilter) ([]invoice.Invoice, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	q := s.db.WithContext(ctx).Model(&invoice.Invoice{})
	if filter.Vendor != "" {
		q = q.Where("vendor_normalized = ?", filter.Vendor)
	}
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}
	if filter.NeedsReview {
		q = q.Where("needs_review")
	}

	var out []invoice.Invoice
	err := q.Order("parsed_at DESC, id").Limit(limit).Offset(filter.Offset).Find(&out).Error
	return out, err
}

func (s *PostgresInvoiceStore) SetEmbeddingStatus(ctx context.Context, id uuid.UUID, status invoice.EmbeddingStatus) error {
	res := s.db.WithContext(ctx).Model(&invoice.Invoice{}).
		Where("id = ?", id).
		Update("embedding_status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresInvoiceStore) ListByEmbeddingStatus(ctx context.Context, limit int, statuses ...invoice.EmbeddingStatus) ([]invoice.Invoice, error) {
	var out []invoice.Invoice
	q := s.db.WithContext(ctx).
		Where("embedding_status IN ?", statuses).
		Order("parsed_at, id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// PostgresJobStore is the gorm-backed JobStore.
type PostgresJobStore struct {
	db *gorm.DB
}

var _ JobStore = (*PostgresJobStore)(nil)

// NewPostgresJobStore migrates the jobs table and returns the store.
func NewPostgresJobStore(db *gorm.DB) (*PostgresJobStore, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if err := db.AutoMigrate(&invoice.Job{}); err != nil {
		return nil, fmt.Errorf("migrate jobs table: %w", err)
	}
	return &PostgresJobStore{db: db}, nil
}

func (s *PostgresJobStore) Create(ctx context.Context, job *invoice.Job) error {
	return s.db.WithContext(ctx).Create(job).Error
}

func (s *PostgresJobStore) Update(ctx context.Context, job *invoice.Job) error {
	return s.db.WithContext(ctx).Save(job).Error
}

func (s *PostgresJobStore) Get(ctx context.Context, id uuid.UUID) (*invoice.Job, error) {
	var job invoice.Job
	err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}
