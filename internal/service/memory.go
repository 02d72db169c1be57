package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/ledgerd/internal/invoice"
)

// MemoryInvoiceStore is an in-memory InvoiceStore for tests and
// single-process use.
type MemoryInvoiceStore struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]*invoice.Invoice
	byHash map[string]uuid.UUID
}

var _ InvoiceStore = (*MemoryInvoiceStore)(nil)

// NewMemoryInvoiceStore creates an empty store.
func NewMemoryInvoiceStore() *MemoryInvoiceStore {
	return &MemoryInvoiceStore{
		byID:   make(map[uuid.UUID]*invoice.Invoice),
		byHash: make(map[string]uuid.UUID),
	}
}

func (m *MemoryInvoiceStore) Create(ctx context.Context, inv *invoice.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byHash[inv.ContentHash]; exists {
		return fmt.Errorf("duplicate content hash %s", inv.ContentHash)
	}
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	for i := range inv.LineItems {
		if inv.LineItems[i].ID == uuid.Nil {
			inv.LineItems[i].ID = uuid.New()
		}
		inv.LineItems[i].InvoiceID = inv.ID
	}
	cp := copyInvoice(inv)
	m.byID[inv.ID] = cp
	m.byHash[inv.ContentHash] = inv.ID
	return nil
}

func (m *MemoryInvoiceStore) Update(ctx context.Context, inv *invoice.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[inv.ID]; !ok {
		return ErrNotFound
	}
	m.byID[inv.ID] = copyInvoice(inv)
	return nil
}

func (m *MemoryInvoiceStore) GetByID(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inv, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyInvoice(inv), nil
}

func (m *MemoryInvoiceStore) GetByContentHash(ctx context.Context, hash string) (*invoice.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byHash[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return copyInvoice(m.byID[id]), nil
}

func (m *MemoryInvoiceStore) List(ctx context.Context, filter ListFilter) ([]invoice.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []invoice.Invoice
	for _, inv := range m.byID {
		if filter.Vendor != "" && !strings.EqualFold(inv.VendorNormalized, filter.Vendor) {
			continue
		}
		if filter.Category != "" && !strings.EqualFold(inv.Category, filter.Category) {
			continue
		}
		if filter.NeedsReview && !inv.NeedsReview {
			continue
		}
		out = append(out, *copyInvoice(inv))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ParsedAt.Equal(out[j].ParsedAt) {
			return out[i].ParsedAt.After(out[j].ParsedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryInvoiceStore) SetEmbeddingStatus(ctx context.Context, id uuid.UUID, status invoice.EmbeddingStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	inv.EmbeddingStatus = status
	return nil
}

func (m *MemoryInvoiceStore) ListByEmbeddingStatus(ctx context.Context, limit int, statuses ...invoice.EmbeddingStatus) ([]invoice.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	want := make(map[invoice.EmbeddingStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}

	var out []invoice.Invoice
	for _, inv := range m.byID {
		if want[inv.EmbeddingStatus] {
			out = append(out, *copyInvoice(inv))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ParsedAt.Equal(out[j].ParsedAt) {
			return out[i].ParsedAt.Before(out[j].ParsedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func copyInvoice(inv *invoice.Invoice) *invoice.Invoice {
	cp := *inv
	cp.LineItems = append([]invoice.LineItem(nil), inv.LineItems...)
	return &cp
}

// MemoryJobStore is an in-memory JobStore.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*invoice.Job
}

var _ JobStore = (*MemoryJobStore)(nil)

// NewMemoryJobStore creates an empty store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[uuid.UUID]*invoice.Job)}
}

func (m *MemoryJobStore) Create(ctx context.Context, job *invoice.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *MemoryJobStore) Update(ctx context.Context, job *invoice.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[job.ID]; !ok {
		return ErrNotFound
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *MemoryJobStore) Get(ctx context.Context, id uuid.UUID) (*invoice.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *job
	return &cp, nil
}
