package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// NormalizeAmount parses a monetary string as extracted by the AI.
// Currency symbols, letters and spaces are stripped first. When more
// than one '.' appears the dots are thousands separators and are all
// removed ("1.234.567" -> 1234567); a single '.' is a decimal point
// ("1234.56" -> 1234.56). Commas get the symmetric treatment, so both
// "$8.500.000,00 COP" and "1,234,567.89" parse correctly.
func NormalizeAmount(raw string) (float64, error) {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) || r == '.' || r == ',' || r == '-' {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if s == "" {
		return 0, fmt.Errorf("no digits in amount %q", raw)
	}

	if strings.Count(s, ".") > 1 {
		s = strings.ReplaceAll(s, ".", "")
	}
	if strings.Count(s, ",") > 1 {
		s = strings.ReplaceAll(s, ",", "")
	}

	// One of each left: the rightmost separator is the decimal point.
	if strings.Contains(s, ".") && strings.Contains(s, ",") {
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	}
	s = strings.ReplaceAll(s, ",", ".")

	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("unparsable amount %q: %w", raw, err)
	}
	return value, nil
}

// NormalizeCounterparty upper-cases and collapses internal whitespace.
// Idempotent.
func NormalizeCounterparty(raw string) string {
	return strings.Join(strings.Fields(strings.ToUpper(raw)), " ")
}

// NormalizeTaxID strips dots and whitespace from a tax identifier.
func NormalizeTaxID(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r == '.' || unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var dateLayouts = []string{"2006-01-02", "02/01/2006", "2006/01/02", "02-01-2006"}

// NormalizeDate returns the ISO form of a date string when one of the
// known layouts matches; otherwise the trimmed input is kept as-is.
func NormalizeDate(raw string) string {
	s := strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}
