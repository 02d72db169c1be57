package extraction

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ledgerd/internal/invoice"
)

// reviewDemotion is subtracted from the confidence score when validation
// finds a consistency problem.
const reviewDemotion = 0.15

// Config holds pipeline settings.
type Config struct {
	// ConfidenceThreshold below which a template match falls through to
	// the generative extractor.
	ConfidenceThreshold float64
	// Templates extends the built-in template set.
	Templates []Template
}

// Pipeline runs the two-stage extraction state machine over raw documents.
// Each submission gets its own run; the pipeline itself is stateless and
// safe for concurrent use.
type Pipeline struct {
	matcher    *Matcher
	generative Generative
	threshold  float64
	logger     *zap.Logger
}

// NewPipeline creates an extraction pipeline. generative may be an
// unavailable extractor; the pipeline probes Available() per run.
func NewPipeline(cfg Config, generative Generative, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	threshold := cfg.ConfidenceThreshold
	if threshold == 0 {
		threshold = 0.8
	}
	templates := DefaultTemplates()
	templates = append(templates, cfg.Templates...)

	return &Pipeline{
		matcher:    NewMatcher(templates),
		generative: generative,
		threshold:  threshold,
		logger:     logger,
	}
}

// Run processes one raw document through the state machine:
//
//	Pending -> TemplateAttempt -> {TemplateSuccess | TemplateFailure}
//	        -> [GenerativeAttempt ->] Validate -> {Accepted | Rejected}
//
// The returned Result is always terminal (Accepted or Rejected) and carries
// the full transition trace.
func (p *Pipeline) Run(ctx context.Context, raw []byte) *Result {
	res := &Result{State: StatePending}

	text, err := ExtractText(raw)
	if err != nil {
		// Unparseable input is rejected before either attempt runs.
		return p.reject(res, StatePending, err.Error())
	}

	res.step(StatePending, StateTemplateAttempt, "")

	fields, confidence, matchErr := p.matcher.Match(text)
	switch {
	case matchErr == nil && confidence >= p.threshold:
		res.step(StateTemplateAttempt, StateTemplateSuccess,
			fmt.Sprintf("confidence %.2f", confidence))
		res.Fields = fields
		res.Method = MethodTemplate
		res.Confidence = confidence

	case matchErr == nil:
		// Sub-threshold match: keep the fields as a fallback in case the
		// generative stage is unavailable.
		res.step(StateTemplateAttempt, StateTemplateFailure,
			fmt.Sprintf("confidence %.2f below threshold %.2f", confidence, p.threshold))
		p.runGenerative(ctx, res, text, fields, confidence)

	default:
		res.step(StateTemplateAttempt, StateTemplateFailure, matchErr.Error())
		p.runGenerative(ctx, res, text, nil, 0)
	}

	if res.State == StateRejected {
		return res
	}
	return p.validate(res)
}

// runGenerative advances the machine through the generative stage. When the
// stage is unavailable or fails, a sub-threshold template result (if any)
// is accepted with a review flag instead of rejecting the document.
func (p *Pipeline) runGenerative(ctx context.Context, res *Result, text string, templateFields *FieldSet, templateConfidence float64) {
	if !p.generative.Available() {
		if templateFields != nil {
			p.degradeToTemplate(res, templateFields, templateConfidence, "generative extractor not configured")
			return
		}
		p.reject(res, StateTemplateFailure, "no template match and generative extractor not configured")
		return
	}

	res.step(res.State, StateGenerativeAttempt, "")

	fields, err := p.generative.Extract(ctx, text)
	if err != nil {
		p.logger.Warn("generative extraction failed", zap.Error(err))
		if templateFields != nil {
			p.degradeToTemplate(res, templateFields, templateConfidence, "generative extractor unavailable")
			return
		}
		p.reject(res, StateGenerativeAttempt, err.Error())
		return
	}

	res.Fields = fields
	res.Method = MethodGenerative
	res.Confidence = generativeConfidence
}

// degradeToTemplate accepts a sub-threshold template result with a review
// flag. Low confidence triggers the fallback but is not an error.
func (p *Pipeline) degradeToTemplate(res *Result, fields *FieldSet, confidence float64, reason string) {
	res.Fields = fields
	res.Method = MethodTemplate
	res.Confidence = confidence
	res.NeedsReview = true
	res.ReviewReasons = append(res.ReviewReasons, reason)
}

// validate checks mandatory field presence and arithmetic consistency.
// Consistency failures demote confidence and flag for review; only entirely
// absent mandatory fields (vendor, amount, date) reject the record.
func (p *Pipeline) validate(res *Result) *Result {
	res.step(res.State, StateValidate, "")
	fields := res.Fields

	if fields == nil || fields.Vendor == "" || fields.TotalAmount <= 0 || fields.Date == "" {
		return p.reject(res, StateValidate, "mandatory fields missing: vendor, amount and date required")
	}

	if len(fields.LineItems) > 0 {
		var sum float64
		for i, li := range fields.LineItems {
			sum += li.Total
			if li.Quantity != 0 && li.UnitPrice != 0 &&
				math.Abs(li.Quantity*li.UnitPrice-li.Total) > invoice.AmountTolerance {
				res.NeedsReview = true
				res.ReviewReasons = append(res.ReviewReasons,
					fmt.Sprintf("line %d: quantity x unit price disagrees with total", i))
			}
		}
		if math.Abs(sum-fields.TotalAmount) > invoice.AmountTolerance {
			res.NeedsReview = true
			res.ReviewReasons = append(res.ReviewReasons,
				fmt.Sprintf("line items sum %.2f, stated total %.2f", sum, fields.TotalAmount))
		}
	}

	if res.NeedsReview {
		res.Confidence = math.Max(0, res.Confidence-reviewDemotion)
	}

	res.step(StateValidate, StateAccepted, "")
	return res
}

func (p *Pipeline) reject(res *Result, from State, reason string) *Result {
	res.step(from, StateRejected, reason)
	res.RejectReason = reason
	res.Fields = nil
	return res
}

// step appends a transition and advances the current state.
func (r *Result) step(from, to State, reason string) {
	r.Trace = append(r.Trace, Transition{From: from, To: to, Reason: reason})
	r.State = to
}
