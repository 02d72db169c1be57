package extraction

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// minPrintableRatio is the fraction of printable runes a payload must carry
// to count as text-bearing. Binary payloads fall well below it.
const minPrintableRatio = 0.85

// ExtractText returns the text content of a raw document payload, or
// ErrNoText when the payload carries no extractable text at all. Byte-level
// format validation (magic bytes, structure) is a collaborator concern;
// this only distinguishes text-bearing payloads from binary or empty ones.
func ExtractText(raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("%w: empty document", ErrNoText)
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%w: payload is not valid text", ErrNoText)
	}

	text := string(raw)
	var printable, total int
	for _, r := range text {
		total++
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			printable++
		}
	}
	if total == 0 || float64(printable)/float64(total) < minPrintableRatio {
		return "", fmt.Errorf("%w: payload is mostly non-printable", ErrNoText)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: document is blank", ErrNoText)
	}
	return text, nil
}
