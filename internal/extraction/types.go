// Package extraction turns raw invoice documents into structured field
// sets. It runs a deterministic template matcher first and falls back to a
// generative extractor, tracking every intermediate state explicitly so
// each terminal and intermediate outcome is enumerable and testable.
package extraction

import (
	"context"
	"errors"
)

// Version tags extraction results so a matcher upgrade naturally produces
// new cache entries.
const Version = "2"

// Sentinel errors for extraction outcomes.
var (
	// ErrNoText indicates the document carries no extractable text. It is
	// reported before either extraction stage runs.
	ErrNoText = errors.New("no extractable text")

	// ErrUnavailable indicates the generative collaborator failed with a
	// network or timeout error after bounded retries.
	ErrUnavailable = errors.New("generative extractor unavailable")

	// ErrNoMatch indicates no template matched the document.
	ErrNoMatch = errors.New("no template match")
)

// FieldSet is the structured field set produced by one extraction attempt.
// Date is kept as the raw extracted string; parsing happens at validation.
type FieldSet struct {
	Vendor        string           `json:"vendor"`
	InvoiceNumber string           `json:"invoice_number,omitempty"`
	Date          string           `json:"date,omitempty"`
	TotalAmount   float64          `json:"total_amount"`
	Currency      string           `json:"currency,omitempty"`
	Category      string           `json:"category,omitempty"`
	Purchaser     string           `json:"purchaser,omitempty"`
	IsRecurring   bool             `json:"is_recurring,omitempty"`
	LineItems     []LineItemFields `json:"line_items,omitempty"`
}

// LineItemFields is one extracted line item.
type LineItemFields struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity,omitempty"`
	UnitPrice   float64 `json:"unit_price,omitempty"`
	Total       float64 `json:"total"`
}

// State is a node in the extraction state machine.
type State string

const (
	StatePending           State = "pending"
	StateTemplateAttempt   State = "template_attempt"
	StateTemplateSuccess   State = "template_success"
	StateTemplateFailure   State = "template_failure"
	StateGenerativeAttempt State = "generative_attempt"
	StateValidate          State = "validate"
	StateAccepted          State = "accepted"
	StateRejected          State = "rejected"
)

// Method tags which stage produced the accepted field set.
type Method string

const (
	MethodTemplate   Method = "template"
	MethodGenerative Method = "generative"
)

// Transition records one state-machine step with the reason it was taken.
type Transition struct {
	From   State  `json:"from"`
	To     State  `json:"to"`
	Reason string `json:"reason,omitempty"`
}

// Result is the explicit outcome of one pipeline run. Terminal state is
// either StateAccepted or StateRejected; Trace holds every transition in
// between.
type Result struct {
	State         State            `json:"state"`
	Fields        *FieldSet        `json:"fields,omitempty"`
	Method        Method           `json:"method,omitempty"`
	Confidence    float64          `json:"confidence"`
	NeedsReview   bool             `json:"needs_review"`
	ReviewReasons []string         `json:"review_reasons,omitempty"`
	RejectReason  string           `json:"reject_reason,omitempty"`
	Trace         []Transition     `json:"trace,omitempty"`
}

// Accepted reports whether the run terminated in an accepted record.
func (r *Result) Accepted() bool {
	return r.State == StateAccepted
}

// Generative is a collaborator that extracts a structured field set from
// unstructured document text. Implementations are external calls with
// bounded timeouts; they never hold locks.
type Generative interface {
	// Extract returns a structured field set for the document text.
	Extract(ctx context.Context, text string) (*FieldSet, error)

	// Available reports whether the extractor is configured and ready.
	Available() bool
}
