// Package service orchestrates the invoice pipeline: content-addressed
// deduplication, cached extraction, vendor canonicalization, persistence,
// and embedding generation, plus the semantic query operations built on
// top of the stored vectors.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/fyrsmithlabs/ledgerd/internal/embeddings"
	"github.com/fyrsmithlabs/ledgerd/internal/extraction"
	"github.com/fyrsmithlabs/ledgerd/internal/invoice"
	"github.com/fyrsmithlabs/ledgerd/internal/parsecache"
	"github.com/fyrsmithlabs/ledgerd/internal/vendor"
	"github.com/fyrsmithlabs/ledgerd/internal/vectorstore"
)

const defaultSearchLimit = 10

// ErrNotEmbedded is returned when a similar-to query targets an invoice
// whose embedding is not ready yet.
var ErrNotEmbedded = errors.New("invoice has no embedding yet")

// ErrEmptyQuery is returned when a search query is blank.
var ErrEmptyQuery = errors.New("empty query")

// RejectedError reports that a submitted document terminated in the
// rejected state, with the pipeline's reason.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return "submission rejected: " + e.Reason
}

// Extractor runs the two-stage extraction state machine over a raw
// document. Satisfied by *extraction.Pipeline.
type Extractor interface {
	Run(ctx context.Context, raw []byte) *extraction.Result
}

// Embedder produces vectors for documents and queries through the
// provider fallback chain. Satisfied by *embeddings.Chain.
type Embedder interface {
	EmbedDocument(ctx context.Context, text string) (*embeddings.Result, error)
	EmbedQuery(ctx context.Context, text string) (*embeddings.Result, error)
}

// Deps carries the service's collaborators. All fields except Logger are
// required.
type Deps struct {
	Invoices   InvoiceStore
	Jobs       JobStore
	Vendors    vendor.Store
	Normalizer *vendor.Normalizer
	Cache      parsecache.Cache
	Extractor  Extractor
	Embedder   Embedder
	Vectors    vectorstore.Store
	Logger     *zap.Logger
}

// Service is the pipeline orchestrator.
type Service struct {
	invoices   InvoiceStore
	jobs       JobStore
	vendors    vendor.Store
	normalizer *vendor.Normalizer
	cache      parsecache.Cache
	extractor  Extractor
	embedder   Embedder
	vectors    vectorstore.Store
	logger     *zap.Logger

	jobTimeout time.Duration
}

// New creates a Service, validating that every collaborator is present.
func New(deps Deps) (*Service, error) {
	switch {
	case deps.Invoices == nil:
		return nil, errors.New("invoice store is required")
	case deps.Jobs == nil:
		return nil, errors.New("job store is required")
	case deps.Vendors == nil:
		return nil, errors.New("vendor store is required")
	case deps.Normalizer == nil:
		return nil, errors.New("vendor normalizer is required")
	case deps.Cache == nil:
		return nil, errors.New("parse cache is required")
	case deps.Extractor == nil:
		return nil, errors.New("extractor is required")
	case deps.Embedder == nil:
		return nil, errors.New("embedder is required")
	case deps.Vectors == nil:
		return nil, errors.New("vector store is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Service{
		invoices:   deps.Invoices,
		jobs:       deps.Jobs,
		vendors:    deps.Vendors,
		normalizer: deps.Normalizer,
		cache:      deps.Cache,
		extractor:  deps.Extractor,
		embedder:   deps.Embedder,
		vectors:    deps.Vectors,
		logger:     deps.Logger,
		jobTimeout: 5 * time.Minute,
	}, nil
}

// ContentHash is the content address of a raw document: lowercase hex
// SHA-256 over the exact bytes.
func ContentHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Submit ingests one raw invoice document. Byte-identical resubmissions
// return the already-persisted record without running extraction again.
// A document the pipeline rejects returns a *RejectedError. Embedding
// failure never fails the submission; the record is persisted with
// embedding status failed and retried in the background.
func (s *Service) Submit(ctx context.Context, raw []byte) (*invoice.Invoice, error) {
	if len(raw) == 0 {
		return nil, &RejectedError{Reason: "empty document"}
	}
	hash := ContentHash(raw)

	if existing, err := s.invoices.GetByContentHash(ctx, hash); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("lookup by content hash: %w", err)
	}

	entry, err := s.cachedExtraction(ctx, hash, raw)
	if err != nil {
		return nil, err
	}

	inv, err := s.buildInvoice(ctx, hash, entry)
	if err != nil {
		return nil, err
	}

	if err := s.invoices.Create(ctx, inv); err != nil {
		// A concurrent submission of the same bytes may have won the
		// unique content hash; hand back its record.
		if existing, lookupErr := s.invoices.GetByContentHash(ctx, hash); lookupErr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("persist invoice: %w", err)
	}

	s.applyVendor(ctx, inv)
	s.embedInvoice(ctx, inv)

	return inv, nil
}

// cachedExtraction returns the cached extraction for the document, or
// runs the pipeline and stores the result. When two writers race on the
// same key, both end up using the first writer's entry.
func (s *Service) cachedExtraction(ctx context.Context, hash string, raw []byte) (*parsecache.Entry, error) {
	key := parsecache.Key(hash)

	entry, err := s.cache.Lookup(ctx, key)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, parsecache.ErrNotFound) {
		s.logger.Warn("parse cache lookup failed", zap.Error(err))
	}

	res := s.extractor.Run(ctx, raw)
	if !res.Accepted() {
		return nil, &RejectedError{Reason: res.RejectReason}
	}

	entry = &parsecache.Entry{
		Key:           key,
		Fields:        *res.Fields,
		Method:        res.Method,
		Confidence:    res.Confidence,
		NeedsReview:   res.NeedsReview,
		ReviewReasons: datatypes.NewJSONSlice(res.ReviewReasons),
		ComputedAt:    time.Now().UTC(),
	}
	winner, err := s.cache.Store(ctx, entry)
	if err != nil {
		// The cache is an optimization; losing a write costs a repeat
		// extraction later, not correctness.
		s.logger.Warn("parse cache store failed", zap.Error(err))
		return entry, nil
	}
	return winner, nil
}

func (s *Service) buildInvoice(ctx context.Context, hash string, entry *parsecache.Entry) (*invoice.Invoice, error) {
	fields := entry.Fields

	date, err := invoice.ParseDate(fields.Date)
	if err != nil {
		return nil, &RejectedError{Reason: fmt.Sprintf("unparseable date %q", fields.Date)}
	}

	canonical, err := s.normalizer.Resolve(ctx, fields.Vendor)
	if err != nil {
		s.logger.Warn("vendor resolution failed, using raw name",
			zap.String("vendor", fields.Vendor), zap.Error(err))
		canonical = fields.Vendor
	}

	category := fields.Category
	if category == "" {
		category = vendor.InferCategory(canonical)
	}
	currency := fields.Currency
	if currency == "" {
		currency = "USD"
	}

	inv := &invoice.Invoice{
		VendorName:       fields.Vendor,
		VendorNormalized: canonical,
		InvoiceNumber:    fields.InvoiceNumber,
		Date:             date,
		TotalAmount:      fields.TotalAmount,
		Currency:         currency,
		Category:         category,
		Purchaser:        fields.Purchaser,
		IsRecurring:      fields.IsRecurring,
		ContentHash:      hash,
		ConfidenceScore:  entry.Confidence,
		Method:           invoice.Method(entry.Method),
		NeedsReview:      entry.NeedsReview,
		ReviewReason:     strings.Join(entry.ReviewReasons, "; "),
		EmbeddingStatus:  invoice.EmbeddingPending,
		ParsedAt:         time.Now().UTC(),
	}
	for i, li := range fields.LineItems {
		inv.LineItems = append(inv.LineItems, invoice.LineItem{
			Position:    i + 1,
			Description: li.Description,
			Quantity:    li.Quantity,
			UnitPrice:   li.UnitPrice,
			Total:       li.Total,
		})
	}

	// Gate the assembled record, not just the raw field set: cache entries
	// written by other processes pass through here without a pipeline run.
	if _, err := invoice.Validate(inv); err != nil {
		return nil, &RejectedError{Reason: err.Error()}
	}
	return inv, nil
}

// applyVendor folds the invoice into the vendor aggregates. The record is
// already persisted; an aggregate failure is logged, not surfaced.
func (s *Service) applyVendor(ctx context.Context, inv *invoice.Invoice) {
	up := vendor.Upsert{
		Canonical: inv.VendorNormalized,
		Category:  inv.Category,
		Amount:    inv.TotalAmount,
		Date:      inv.Date,
	}
	if !strings.EqualFold(inv.VendorName, inv.VendorNormalized) {
		up.Alias = inv.VendorName
	}
	if err := s.vendors.Apply(ctx, up); err != nil {
		s.logger.Warn("vendor aggregate update failed",
			zap.String("vendor", inv.VendorNormalized), zap.Error(err))
	}
}

// embedInvoice generates and stores the invoice's document vector and
// records the resulting embedding status.
func (s *Service) embedInvoice(ctx context.Context, inv *invoice.Invoice) {
	text := embeddings.CanonicalText(inv)

	res, err := s.embedder.EmbedDocument(ctx, text)
	if err != nil {
		s.logger.Warn("embedding generation failed",
			zap.String("invoice_id", inv.ID.String()), zap.Error(err))
		s.setEmbeddingStatus(ctx, inv, invoice.EmbeddingFailed)
		return
	}

	rec := vectorstore.EmbeddingRecord{
		RecordID:    inv.ID,
		Vector:      res.Vector,
		ProviderID:  res.ProviderID,
		GeneratedAt: time.Now().UTC(),
	}
	if err := s.vectors.Upsert(ctx, rec); err != nil {
		s.logger.Warn("embedding upsert failed",
			zap.String("invoice_id", inv.ID.String()), zap.Error(err))
		s.setEmbeddingStatus(ctx, inv, invoice.EmbeddingFailed)
		return
	}
	s.setEmbeddingStatus(ctx, inv, invoice.EmbeddingReady)
}

func (s *Service) setEmbeddingStatus(ctx context.Context, inv *invoice.Invoice, status invoice.EmbeddingStatus) {
	if err := s.invoices.SetEmbeddingStatus(ctx, inv.ID, status); err != nil {
		s.logger.Error("embedding status update failed",
			zap.String("invoice_id", inv.ID.String()), zap.Error(err))
		return
	}
	inv.EmbeddingStatus = status
}

// SearchHit is one ranked search result joined with its invoice.
type SearchHit struct {
	Invoice  invoice.Invoice `json:"invoice"`
	Distance float64         `json:"distance"`
}

// SemanticSearch embeds a natural-language query and returns the closest
// invoices. The query vector only ranks against vectors produced by the
// same provider; results are ordered ascending by distance with ties
// broken by record id.
func (s *Service) SemanticSearch(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	res, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.vectors.Query(ctx, vectorstore.Query{
		Vector:     res.Vector,
		ProviderID: res.ProviderID,
		Limit:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	return s.resolveHits(ctx, hits)
}

// FindSimilar returns the invoices closest to an existing invoice,
// excluding the invoice itself. The stored vector is reused; no embedding
// call is made.
func (s *Service) FindSimilar(ctx context.Context, id uuid.UUID, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	rec, err := s.vectors.Get(ctx, id)
	if errors.Is(err, vectorstore.ErrNotFound) {
		if _, invErr := s.invoices.GetByID(ctx, id); invErr == nil {
			return nil, ErrNotEmbedded
		}
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load embedding: %w", err)
	}

	hits, err := s.vectors.Query(ctx, vectorstore.Query{
		Vector:     rec.Vector,
		ProviderID: rec.ProviderID,
		Limit:      limit,
		Exclude:    id,
	})
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	return s.resolveHits(ctx, hits)
}

// resolveHits joins similarity results with their invoice rows. A vector
// whose invoice has since been deleted is skipped.
func (s *Service) resolveHits(ctx context.Context, hits []vectorstore.SimilarityResult) ([]SearchHit, error) {
	out := make([]SearchHit, 0, len(hits))
	for _, h := range hits {
		inv, err := s.invoices.GetByID(ctx, h.RecordID)
		if errors.Is(err, ErrNotFound) {
			s.logger.Debug("dangling embedding skipped",
				zap.String("record_id", h.RecordID.String()))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load invoice %s: %w", h.RecordID, err)
		}
		out = append(out, SearchHit{Invoice: *inv, Distance: h.Distance})
	}
	return out, nil
}

// GetInvoice returns one invoice by id.
func (s *Service) GetInvoice(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error) {
	return s.invoices.GetByID(ctx, id)
}

// ListInvoices returns invoices newest-first, narrowed by the filter.
func (s *Service) ListInvoices(ctx context.Context, filter ListFilter) ([]invoice.Invoice, error) {
	return s.invoices.List(ctx, filter)
}

// ListVendors returns all canonical vendors ordered by total spend.
func (s *Service) ListVendors(ctx context.Context) ([]invoice.Vendor, error) {
	return s.vendors.List(ctx)
}
