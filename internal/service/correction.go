package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ledgerd/internal/invoice"
)

// Correction carries operator edits to an extracted record. Nil fields are
// left unchanged.
type Correction struct {
	VendorName  *string `json:"vendor_name,omitempty"`
	Category    *string `json:"category,omitempty"`
	Purchaser   *string `json:"purchaser,omitempty"`
	IsRecurring *bool   `json:"is_recurring,omitempty"`
}

// CorrectInvoice applies operator corrections to an invoice. Every
// correctable field feeds the canonical embed text, so any change
// regenerates the record's vector; the old vector is replaced, not mixed.
func (s *Service) CorrectInvoice(ctx context.Context, id uuid.UUID, cor Correction) (*invoice.Invoice, error) {
	inv, err := s.invoices.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	changed := false
	if cor.VendorName != nil && *cor.VendorName != inv.VendorName {
		canonical, err := s.normalizer.Resolve(ctx, *cor.VendorName)
		if err != nil {
			s.logger.Warn("vendor resolution failed, using raw name",
				zap.String("vendor", *cor.VendorName), zap.Error(err))
			canonical = *cor.VendorName
		}
		inv.VendorName = *cor.VendorName
		inv.VendorNormalized = canonical
		changed = true
	}
	if cor.Category != nil && *cor.Category != inv.Category {
		inv.Category = *cor.Category
		changed = true
	}
	if cor.Purchaser != nil && *cor.Purchaser != inv.Purchaser {
		inv.Purchaser = *cor.Purchaser
		changed = true
	}
	if cor.IsRecurring != nil && *cor.IsRecurring != inv.IsRecurring {
		inv.IsRecurring = *cor.IsRecurring
		changed = true
	}
	if !changed {
		return inv, nil
	}

	// A correction must not blank the mandatory fields.
	if _, err := invoice.Validate(inv); err != nil {
		return nil, fmt.Errorf("invalid correction: %w", err)
	}

	if err := s.invoices.Update(ctx, inv); err != nil {
		return nil, err
	}
	s.embedInvoice(ctx, inv)
	return inv, nil
}
