package invoice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInvoice() *Invoice {
	return &Invoice{
		VendorName:  "Amazon Web Services",
		TotalAmount: 120.00,
		Date:        time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestValidate_MandatoryFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Invoice)
	}{
		{name: "missing vendor", mutate: func(i *Invoice) { i.VendorName = "" }},
		{name: "zero amount", mutate: func(i *Invoice) { i.TotalAmount = 0 }},
		{name: "negative amount", mutate: func(i *Invoice) { i.TotalAmount = -5 }},
		{name: "zero date", mutate: func(i *Invoice) { i.Date = time.Time{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := testInvoice()
			tt.mutate(inv)
			_, err := Validate(inv)
			require.ErrorIs(t, err, ErrMissingFields)
		})
	}
}

func TestValidate_LineItemSum(t *testing.T) {
	t.Run("one cent off is accepted with review flag", func(t *testing.T) {
		inv := testInvoice()
		inv.TotalAmount = 120.00
		inv.LineItems = []LineItem{
			{Position: 0, Description: "EC2", Total: 100.00},
			{Position: 1, Description: "S3", Total: 19.99},
		}

		res, err := Validate(inv)
		require.NoError(t, err)
		assert.True(t, res.NeedsReview())
		require.Len(t, res.ReviewReasons, 1)
		assert.Contains(t, res.ReviewReasons[0], "119.99")
	})

	t.Run("exact sum passes clean", func(t *testing.T) {
		inv := testInvoice()
		inv.LineItems = []LineItem{
			{Position: 0, Description: "EC2", Total: 100.00},
			{Position: 1, Description: "S3", Total: 20.00},
		}

		res, err := Validate(inv)
		require.NoError(t, err)
		assert.False(t, res.NeedsReview())
	})

	t.Run("within tolerance passes clean", func(t *testing.T) {
		inv := testInvoice()
		inv.TotalAmount = 120.00
		inv.LineItems = []LineItem{
			{Position: 0, Description: "EC2", Total: 119.995},
		}

		res, err := Validate(inv)
		require.NoError(t, err)
		assert.False(t, res.NeedsReview())
	})

	t.Run("quantity times unit price mismatch is flagged", func(t *testing.T) {
		inv := testInvoice()
		inv.LineItems = []LineItem{
			{Position: 0, Description: "Seats", Quantity: 3, UnitPrice: 10.00, Total: 120.00},
		}

		res, err := Validate(inv)
		require.NoError(t, err)
		assert.True(t, res.NeedsReview())
	})

	t.Run("no line items skips consistency checks", func(t *testing.T) {
		inv := testInvoice()
		res, err := Validate(inv)
		require.NoError(t, err)
		assert.False(t, res.NeedsReview())
	})
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"11/22/2025", time.Date(2025, 11, 22, 0, 0, 0, 0, time.UTC)},
		{"2025-11-22", time.Date(2025, 11, 22, 0, 0, 0, 0, time.UTC)},
		{"01-02-2026", time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"Jan 2, 2026", time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)},
		{" 2025-11-22 ", time.Date(2025, 11, 22, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseDate(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseDate("sometime soon")
	assert.ErrorIs(t, err, ErrUnparseableDate)

	_, err = ParseDate("")
	assert.ErrorIs(t, err, ErrUnparseableDate)
}
