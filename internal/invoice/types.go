// Package invoice defines the ledgerd domain model: extracted invoice
// records, their line items, canonical vendors and processing jobs.
package invoice

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Method tags how an invoice's fields were extracted.
type Method string

const (
	// MethodTemplate marks a deterministic template match.
	MethodTemplate Method = "template"
	// MethodGenerative marks LLM-based extraction.
	MethodGenerative Method = "generative"
)

// EmbeddingStatus tracks the lifecycle of an invoice's vector embedding.
// A record is searchable only once its embedding is ready; embedding
// failure never blocks persistence of the record itself.
type EmbeddingStatus string

const (
	// EmbeddingPending means no embedding has been stored yet.
	EmbeddingPending EmbeddingStatus = "pending"
	// EmbeddingReady means the vector is stored and searchable.
	EmbeddingReady EmbeddingStatus = "ready"
	// EmbeddingFailed means generation failed and awaits background retry.
	EmbeddingFailed EmbeddingStatus = "failed"
)

// Invoice is an extracted invoice record.
type Invoice struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	VendorName       string    `gorm:"size:255;not null" json:"vendor_name"`
	VendorNormalized string    `gorm:"size:255;not null;index" json:"vendor_normalized"`
	InvoiceNumber    string    `gorm:"size:100" json:"invoice_number"`
	Date             time.Time `gorm:"type:date;not null;index" json:"date"`
	TotalAmount      float64   `gorm:"not null" json:"total_amount"`
	Currency         string    `gorm:"size:8" json:"currency"`

	Category    string `gorm:"size:100;index;default:Other" json:"category"`
	Purchaser   string `gorm:"size:100" json:"purchaser,omitempty"`
	IsRecurring bool   `gorm:"default:false" json:"is_recurring"`

	ContentHash     string          `gorm:"size:64;not null;uniqueIndex" json:"content_hash"`
	ConfidenceScore float64         `json:"confidence_score"`
	Method          Method          `gorm:"size:20;not null" json:"method"`
	NeedsReview     bool            `gorm:"default:false" json:"needs_review"`
	ReviewReason    string          `gorm:"size:255" json:"review_reason,omitempty"`
	EmbeddingStatus EmbeddingStatus `gorm:"size:20;not null;default:pending;index" json:"embedding_status"`

	ParsedAt time.Time `gorm:"not null" json:"parsed_at"`

	LineItems []LineItem `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE" json:"line_items,omitempty"`
}

// LineItem is a single billed line within an invoice.
type LineItem struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	InvoiceID uuid.UUID `gorm:"type:uuid;not null;index" json:"invoice_id"`
	Position  int       `gorm:"not null" json:"position"`

	Description string  `gorm:"type:text;not null" json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Total       float64 `gorm:"not null" json:"total"`
}

// Vendor is the canonical identity a set of vendor-name variants resolves
// to, with aggregate spend statistics. Owned by the vendor normalizer and
// mutated only through its atomic upsert.
type Vendor struct {
	ID             uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	Name           string                      `gorm:"size:255;not null" json:"name"`
	NormalizedName string                      `gorm:"size:255;not null;uniqueIndex" json:"normalized_name"`
	Category       string                      `gorm:"size:100" json:"category,omitempty"`
	Aliases        datatypes.JSONSlice[string] `json:"aliases"`
	TotalSpent     float64                     `gorm:"not null;default:0" json:"total_spent"`
	InvoiceCount   int64                       `gorm:"not null;default:0" json:"invoice_count"`
	FirstSeen      time.Time                   `gorm:"type:date;not null" json:"first_seen"`
	LastSeen       time.Time                   `gorm:"type:date;not null" json:"last_seen"`
}

// JobStatus is the lifecycle state of a submission job.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobComplete   JobStatus = "complete"
	JobError      JobStatus = "error"
)

// Job tracks a single document submission through the pipeline.
type Job struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Status       JobStatus  `gorm:"size:20;not null;index" json:"status"`
	InvoiceID    *uuid.UUID `gorm:"type:uuid" json:"invoice_id,omitempty"`
	ErrorMessage string     `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
