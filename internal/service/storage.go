package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/ledgerd/internal/invoice"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ListFilter narrows invoice listings.
type ListFilter struct {
	// Vendor filters on the normalized vendor name when non-empty.
	Vendor string
	// Category filters on the invoice category when non-empty.
	Category string
	// NeedsReview, when true, returns only flagged invoices.
	NeedsReview bool
	// Limit caps the result count; 0 means a default of 100.
	Limit int
	// Offset skips results for paging.
	Offset int
}

// InvoiceStore persists extracted invoices.
type InvoiceStore interface {
	// Create persists a new invoice with its line items.
	Create(ctx context.Context, inv *invoice.Invoice) error
	// Update persists field changes to an existing invoice.
	Update(ctx context.Context, inv *invoice.Invoice) error
	// GetByID returns an invoice with line items, or ErrNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error)
	// GetByContentHash returns the invoice for a content hash, or
	// ErrNotFound. The content hash is unique per invoice.
	GetByContentHash(ctx context.Context, hash string) (*invoice.Invoice, error)
	// List returns invoices newest-first, narrowed by the filter.
	List(ctx context.Context, filter ListFilter) ([]invoice.Invoice, error)
	// SetEmbeddingStatus updates one invoice's embedding lifecycle state.
	SetEmbeddingStatus(ctx context.Context, id uuid.UUID, status invoice.EmbeddingStatus) error
	// ListByEmbeddingStatus returns invoices in any of the given states,
	// oldest-first, for the background retry worker.
	ListByEmbeddingStatus(ctx context.Context, limit int, statuses ...invoice.EmbeddingStatus) ([]invoice.Invoice, error)
}

// JobStore tracks asynchronous submission jobs.
type JobStore interface {
	// Create persists a new job.
	Create(ctx context.Context, job *invoice.Job) error
	// Update persists job state changes.
	Update(ctx context.Context, job *invoice.Job) error
	// Get returns a job by id, or ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*invoice.Job, error)
}
