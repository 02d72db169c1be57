package invoice

import (
	"errors"
	"fmt"
	"math"
)

// AmountTolerance is the permitted absolute difference when reconciling
// line-item totals against the stated invoice total, and quantity times
// unit price against a line's total. Differences of a full cent or more
// are flagged; the epsilon keeps float noise from tipping the comparison.
const AmountTolerance = 0.01 - 1e-9

// ErrMissingFields is returned when the mandatory fields (vendor, amount,
// date) are entirely absent. It is the only validation failure that rejects
// a record.
var ErrMissingFields = errors.New("mandatory fields missing")

// ValidationResult reports the outcome of record validation. A consistency
// finding demotes confidence and flags the record for review; it never
// rejects.
type ValidationResult struct {
	// ReviewReasons lists consistency findings, empty when clean.
	ReviewReasons []string
}

// NeedsReview reports whether any consistency finding was recorded.
func (r ValidationResult) NeedsReview() bool {
	return len(r.ReviewReasons) > 0
}

// Validate checks mandatory field presence and amount consistency.
//
// Missing vendor, total amount or date returns ErrMissingFields and the
// record must be rejected. Everything else - line items that do not sum to
// the stated total, lines whose quantity times unit price disagrees with
// the line total - is reported in the result for review flagging.
func Validate(inv *Invoice) (ValidationResult, error) {
	var res ValidationResult

	if inv.VendorName == "" || inv.TotalAmount <= 0 || inv.Date.IsZero() {
		return res, fmt.Errorf("%w: vendor=%q amount=%v date=%v",
			ErrMissingFields, inv.VendorName, inv.TotalAmount, inv.Date)
	}

	if len(inv.LineItems) > 0 {
		var sum float64
		for _, li := range inv.LineItems {
			sum += li.Total
			if li.Quantity != 0 && li.UnitPrice != 0 {
				if math.Abs(li.Quantity*li.UnitPrice-li.Total) > AmountTolerance {
					res.ReviewReasons = append(res.ReviewReasons,
						fmt.Sprintf("line %d: %v x %v != %v", li.Position, li.Quantity, li.UnitPrice, li.Total))
				}
			}
		}
		if math.Abs(sum-inv.TotalAmount) > AmountTolerance {
			res.ReviewReasons = append(res.ReviewReasons,
				fmt.Sprintf("line items sum %.2f, stated total %.2f", sum, inv.TotalAmount))
		}
	}

	return res, nil
}
