package extraction

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// templateConfidence is the score assigned to a full template match, scaled
// down for each optional field the template failed to capture.
const templateConfidence = 0.95

// Template is a deterministic field-layout matcher for one vendor. A
// template applies when every keyword appears in the document text; its
// field regexes then capture the individual values.
type Template struct {
	// Issuer is the vendor name this template belongs to.
	Issuer string `json:"issuer"`
	// Keywords must all appear (case-insensitive) for the template to apply.
	Keywords []string `json:"keywords"`
	// Fields maps a field name (amount, date, invoice_number, purchaser)
	// to a regex with a single capture group.
	Fields map[string]string `json:"fields"`
	// Currency reported for matches. Default: USD.
	Currency string `json:"currency,omitempty"`
	// Category reported for matches. Optional.
	Category string `json:"category,omitempty"`
	// IsRecurring marks the vendor's invoices as subscription charges.
	IsRecurring bool `json:"is_recurring,omitempty"`
}

type compiledTemplate struct {
	Template
	keywords []string // lowercased
	fields   map[string]*regexp.Regexp
}

// Matcher applies the known templates to document text.
type Matcher struct {
	templates []*compiledTemplate
}

// NewMatcher compiles the given templates. Templates with an invalid regex
// or no keywords are skipped rather than failing the whole set.
func NewMatcher(templates []Template) *Matcher {
	m := &Matcher{}
	for _, t := range templates {
		if len(t.Keywords) == 0 || t.Issuer == "" {
			continue
		}
		ct := &compiledTemplate{Template: t, fields: make(map[string]*regexp.Regexp)}
		for _, kw := range t.Keywords {
			ct.keywords = append(ct.keywords, strings.ToLower(kw))
		}
		ok := true
		for name, pattern := range t.Fields {
			re, err := regexp.Compile(pattern)
			if err != nil || re.NumSubexp() < 1 {
				ok = false
				break
			}
			ct.fields[name] = re
		}
		if ok {
			m.templates = append(m.templates, ct)
		}
	}
	return m
}

// Match applies the first template whose keywords all appear in the text.
// The amount field is mandatory; a template that cannot capture it does not
// match. Confidence starts at the template ceiling and drops for each
// optional field (date, invoice_number) the template failed to capture.
func (m *Matcher) Match(text string) (*FieldSet, float64, error) {
	lower := strings.ToLower(text)

	for _, ct := range m.templates {
		if !keywordsPresent(lower, ct.keywords) {
			continue
		}

		fields, captured := ct.capture(text)
		if fields == nil {
			continue // amount missing, template does not match
		}

		confidence := templateConfidence * float64(captured) / float64(len(ct.fields))
		return fields, confidence, nil
	}

	return nil, 0, ErrNoMatch
}

func keywordsPresent(lowerText string, keywords []string) bool {
	for _, kw := range keywords {
		if !strings.Contains(lowerText, kw) {
			return false
		}
	}
	return true
}

// capture extracts the template's fields from text. Returns nil when the
// mandatory amount field cannot be captured, otherwise the field set and
// the number of fields captured.
func (ct *compiledTemplate) capture(text string) (*FieldSet, int) {
	fs := &FieldSet{
		Vendor:      ct.Issuer,
		Currency:    ct.Currency,
		Category:    ct.Category,
		IsRecurring: ct.IsRecurring,
	}
	if fs.Currency == "" {
		fs.Currency = "USD"
	}

	captured := 0
	for name, re := range ct.fields {
		match := re.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		value := strings.TrimSpace(match[1])
		switch name {
		case "amount":
			amount, err := parseAmount(value)
			if err != nil {
				continue
			}
			fs.TotalAmount = amount
		case "date":
			fs.Date = value
		case "invoice_number":
			fs.InvoiceNumber = value
		case "purchaser":
			fs.Purchaser = value
		default:
			continue
		}
		captured++
	}

	if fs.TotalAmount <= 0 {
		return nil, 0
	}
	return fs, captured
}

// parseAmount parses a captured money string, tolerating thousands
// separators and a leading currency symbol.
func parseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "$€£ ")
	s = strings.ReplaceAll(s, ",", "")
	return strconv.ParseFloat(s, 64)
}

// LoadDir reads user-supplied *.json templates from dir. Unreadable or
// invalid files are skipped; a missing directory yields no templates.
func LoadDir(dir string) ([]Template, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading templates dir: %w", err)
	}

	var templates []Template
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		var t Template
		if err := json.Unmarshal(content, &t); err != nil {
			continue
		}
		templates = append(templates, t)
	}
	return templates, nil
}

// DefaultTemplates returns the built-in vendor templates.
func DefaultTemplates() []Template {
	amount := `(?i)(?:total|amount)\s+due[:\s]*\$?\s*([0-9][0-9,]*\.?[0-9]*)`
	date := `(?i)(?:invoice\s+)?date[:\s]*([A-Za-z0-9, /-]+)`
	number := `(?i)invoice\s*(?:number|#|no\.?)[:\s]*([A-Za-z0-9-]+)`

	return []Template{
		{
			Issuer:   "Amazon Web Services",
			Keywords: []string{"amazon web services"},
			Fields: map[string]string{
				"amount":         amount,
				"date":           date,
				"invoice_number": number,
			},
			Category:    "Software/SaaS",
			IsRecurring: true,
		},
		{
			Issuer:   "Microsoft Azure",
			Keywords: []string{"microsoft azure"},
			Fields: map[string]string{
				"amount":         amount,
				"date":           date,
				"invoice_number": number,
			},
			Category:    "Software/SaaS",
			IsRecurring: true,
		},
		{
			Issuer:   "Google Cloud Platform",
			Keywords: []string{"google cloud"},
			Fields: map[string]string{
				"amount":         amount,
				"date":           date,
				"invoice_number": number,
			},
			Category:    "Software/SaaS",
			IsRecurring: true,
		},
		{
			Issuer:   "GitHub",
			Keywords: []string{"github"},
			Fields: map[string]string{
				"amount":         amount,
				"date":           date,
				"invoice_number": number,
			},
			Category:    "Software/SaaS",
			IsRecurring: true,
		},
		{
			Issuer:   "DigitalOcean",
			Keywords: []string{"digitalocean"},
			Fields: map[string]string{
				"amount":         amount,
				"date":           date,
				"invoice_number": number,
			},
			Category:    "Software/SaaS",
			IsRecurring: true,
		},
	}
}
