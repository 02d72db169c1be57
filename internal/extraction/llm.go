package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// generativeConfidence is the score assigned to accepted LLM extractions.
const generativeConfidence = 0.95

// extractionPrompt asks for strict JSON so the response parses without
// post-hoc repair. The date stays a string; parsing happens at validation.
const extractionPrompt = `Extract the following fields from this invoice text and return ONLY a JSON object, no markdown, no explanations:

{
  "vendor": "vendor company name",
  "invoice_number": "invoice number or empty string",
  "date": "invoice date as written",
  "total_amount": 0.0,
  "currency": "ISO currency code, default USD",
  "category": "one of: Software/SaaS, Office Supplies, Marketing/Advertising, Professional Services, Travel & Entertainment, Utilities, Equipment/Hardware, Insurance, Rent/Facilities, Payroll Services, Shipping/Fulfillment, Other",
  "purchaser": "who made the purchase, or empty string",
  "is_recurring": false,
  "line_items": [{"description": "", "quantity": 0, "unit_price": 0, "total": 0}]
}

Invoice text:
%s`

// maxPromptText bounds how much document text is sent to the extractor.
const maxPromptText = 8000

// LLMExtractor implements Generative using a completion API.
type LLMExtractor struct {
	client completionClient
}

// completionClient abstracts the completion transport for testing.
type completionClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// NewLLMExtractor creates a generative extractor from config. Returns an
// unavailable extractor when no API key is configured, so callers can probe
// Available() instead of branching on config.
func NewLLMExtractor(cfg LLMConfig) (*LLMExtractor, error) {
	if cfg.APIKey == "" {
		return &LLMExtractor{}, nil
	}
	client, err := newAnthropicClient(cfg)
	if err != nil {
		return nil, err
	}
	return &LLMExtractor{client: client}, nil
}

// Available reports whether the extractor is configured.
func (e *LLMExtractor) Available() bool {
	return e.client != nil
}

// Extract sends the document text to the completion API and parses the
// returned field set. Transport failures surface as ErrUnavailable.
func (e *LLMExtractor) Extract(ctx context.Context, text string) (*FieldSet, error) {
	if e.client == nil {
		return nil, fmt.Errorf("%w: no API key configured", ErrUnavailable)
	}

	text = truncateRunes(text, maxPromptText)

	response, err := e.client.Complete(ctx, fmt.Sprintf(extractionPrompt, text))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	fields, err := parseFieldSetJSON(response)
	if err != nil {
		return nil, fmt.Errorf("parsing extraction response: %w", err)
	}
	return fields, nil
}

// truncateRunes cuts s to at most max bytes, backing up so a multi-byte
// UTF-8 sequence is never split.
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// parseFieldSetJSON parses a field set from a completion response,
// tolerating markdown fences and surrounding prose around the JSON object.
func parseFieldSetJSON(response string) (*FieldSet, error) {
	payload := strings.TrimSpace(response)

	// Strip markdown code fences if present.
	if strings.HasPrefix(payload, "```") {
		payload = strings.TrimPrefix(payload, "```json")
		payload = strings.TrimPrefix(payload, "```")
		if idx := strings.LastIndex(payload, "```"); idx >= 0 {
			payload = payload[:idx]
		}
		payload = strings.TrimSpace(payload)
	}

	// Locate the outermost JSON object when prose surrounds it.
	if !strings.HasPrefix(payload, "{") {
		start := strings.Index(payload, "{")
		end := strings.LastIndex(payload, "}")
		if start < 0 || end <= start {
			return nil, fmt.Errorf("no JSON object in response")
		}
		payload = payload[start : end+1]
	}

	var fields FieldSet
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		return nil, fmt.Errorf("unmarshaling field set: %w", err)
	}
	return &fields, nil
}

var _ Generative = (*LLMExtractor)(nil)
