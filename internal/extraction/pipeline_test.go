package extraction

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGenerative is a scriptable Generative for pipeline tests.
type fakeGenerative struct {
	fields    *FieldSet
	err       error
	available bool
	calls     int
}

func (f *fakeGenerative) Extract(ctx context.Context, text string) (*FieldSet, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.fields, nil
}

func (f *fakeGenerative) Available() bool { return f.available }

func TestPipeline_TemplateSuccessSkipsGenerative(t *testing.T) {
	gen := &fakeGenerative{available: true, fields: &FieldSet{Vendor: "x", TotalAmount: 1}}
	p := NewPipeline(Config{ConfidenceThreshold: 0.8}, gen, nil)

	res := p.Run(context.Background(), []byte(awsInvoiceText))

	require.True(t, res.Accepted())
	assert.Equal(t, MethodTemplate, res.Method)
	assert.Equal(t, 0, gen.calls, "generative stage must be skipped on a confident template match")
	assert.Equal(t, "Amazon Web Services", res.Fields.Vendor)

	// Trace walks template_attempt -> template_success -> validate -> accepted.
	states := []State{}
	for _, tr := range res.Trace {
		states = append(states, tr.To)
	}
	assert.Equal(t, []State{StateTemplateAttempt, StateTemplateSuccess, StateValidate, StateAccepted}, states)
}

func TestPipeline_TemplateMatchesWithoutVendorAcronym(t *testing.T) {
	// An invoice that spells the vendor out but never abbreviates it must
	// still template-match, even with no generative stage to fall back on.
	gen := &fakeGenerative{available: false}
	p := NewPipeline(Config{}, gen, nil)

	doc := "Amazon Web Services, Inc.\nInvoice Number: 1462308129\nInvoice Date: August 1, 2025\nTOTAL AMOUNT DUE: $120.00\n"
	res := p.Run(context.Background(), []byte(doc))

	require.True(t, res.Accepted())
	assert.Equal(t, MethodTemplate, res.Method)
	assert.Equal(t, 0, gen.calls)
	assert.Equal(t, "Amazon Web Services", res.Fields.Vendor)
	assert.Equal(t, 120.00, res.Fields.TotalAmount)
}

func TestPipeline_FallsBackToGenerative(t *testing.T) {
	gen := &fakeGenerative{
		available: true,
		fields: &FieldSet{
			Vendor:      "Initech",
			TotalAmount: 42.00,
			Date:        "11/05/2025",
			Category:    "Professional Services",
		},
	}
	p := NewPipeline(Config{ConfidenceThreshold: 0.8}, gen, nil)

	res := p.Run(context.Background(), []byte("Some invoice from an unknown vendor, amount owed 42 dollars"))

	require.True(t, res.Accepted())
	assert.Equal(t, MethodGenerative, res.Method)
	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, "Initech", res.Fields.Vendor)
	assert.InDelta(t, generativeConfidence, res.Confidence, 0.001)
}

func TestPipeline_GenerativeUnavailableDegradesToTemplate(t *testing.T) {
	// Sub-threshold template capture (amount only) with a failing
	// generative stage: the record is accepted with a review flag.
	gen := &fakeGenerative{available: true, err: ErrUnavailable}
	p := NewPipeline(Config{ConfidenceThreshold: 0.8}, gen, nil)

	res := p.Run(context.Background(), []byte("Amazon Web Services aws\nInvoice Date: 11/01/2025\nTotal Due: $99.50"))

	require.True(t, res.Accepted())
	assert.Equal(t, MethodTemplate, res.Method)
	assert.True(t, res.NeedsReview)
	assert.NotEmpty(t, res.ReviewReasons)
}

func TestPipeline_RejectsWhenNothingMatches(t *testing.T) {
	gen := &fakeGenerative{available: true, err: ErrUnavailable}
	p := NewPipeline(Config{}, gen, nil)

	res := p.Run(context.Background(), []byte("completely unstructured text with no totals"))

	require.False(t, res.Accepted())
	assert.Equal(t, StateRejected, res.State)
	assert.Nil(t, res.Fields)
	assert.NotEmpty(t, res.RejectReason)
}

func TestPipeline_UnparseableRejectedBeforeAttempts(t *testing.T) {
	gen := &fakeGenerative{available: true}
	p := NewPipeline(Config{}, gen, nil)

	res := p.Run(context.Background(), []byte{0x00, 0xff, 0x13, 0x37})

	require.False(t, res.Accepted())
	assert.Equal(t, 0, gen.calls)
	assert.Contains(t, res.RejectReason, "text")
	// Rejection happens straight from pending, before template_attempt.
	require.NotEmpty(t, res.Trace)
	assert.Equal(t, StatePending, res.Trace[0].From)
	assert.Equal(t, StateRejected, res.Trace[0].To)
}

func TestPipeline_MandatoryFieldsMissingRejects(t *testing.T) {
	gen := &fakeGenerative{available: true, fields: &FieldSet{Vendor: "", TotalAmount: 0}}
	p := NewPipeline(Config{}, gen, nil)

	res := p.Run(context.Background(), []byte("invoice text the template set does not know"))

	require.False(t, res.Accepted())
	assert.Contains(t, res.RejectReason, "mandatory")
}

func TestPipeline_LineItemMismatchFlagsReview(t *testing.T) {
	gen := &fakeGenerative{
		available: true,
		fields: &FieldSet{
			Vendor:      "Initech",
			TotalAmount: 120.00,
			Date:        "11/05/2025",
			LineItems: []LineItemFields{
				{Description: "Widgets", Total: 100.00},
				{Description: "Shipping", Total: 19.99},
			},
		},
	}
	p := NewPipeline(Config{}, gen, nil)

	res := p.Run(context.Background(), []byte("unknown vendor invoice"))

	// Accepted with a review flag, never rejected.
	require.True(t, res.Accepted())
	assert.True(t, res.NeedsReview)
	assert.InDelta(t, generativeConfidence-reviewDemotion, res.Confidence, 0.001)
	require.NotEmpty(t, res.ReviewReasons)
	assert.Contains(t, res.ReviewReasons[0], "119.99")
}

func TestPipeline_MissingDateRejects(t *testing.T) {
	gen := &fakeGenerative{
		available: true,
		fields:    &FieldSet{Vendor: "Initech", TotalAmount: 10.00},
	}
	p := NewPipeline(Config{}, gen, nil)

	res := p.Run(context.Background(), []byte("unknown vendor invoice"))

	require.False(t, res.Accepted())
	assert.Contains(t, res.RejectReason, "mandatory")
}

func TestPipeline_GenerativeErrorIsUnavailable(t *testing.T) {
	gen := &fakeGenerative{available: true, err: errors.New("connection refused")}
	p := NewPipeline(Config{}, gen, nil)

	res := p.Run(context.Background(), []byte("unknown vendor invoice"))

	require.False(t, res.Accepted())
	assert.Contains(t, res.RejectReason, "connection refused")
}
