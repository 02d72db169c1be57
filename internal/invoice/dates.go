package invoice

import (
	"errors"
	"strings"
	"time"
)

// dateLayouts lists the formats tried when parsing extracted date strings,
// most common first. US month-first forms take precedence over day-first.
var dateLayouts = []string{
	"01/02/2006",
	"01-02-2006",
	"02/01/2006",
	"02-01-2006",
	"2006-01-02",
	"01/02/06",
	"02/01/06",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
}

// ErrUnparseableDate is returned when a date string matches no known layout.
var ErrUnparseableDate = errors.New("unparseable date")

// ParseDate parses an extracted date string against the known layouts.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrUnparseableDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrUnparseableDate
}
