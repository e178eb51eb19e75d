package utils

import (
	"strconv"
	"strings"
)

// ParsePrice turns scraped price text such as "12,50 €" or "Cena: 3,99"
// into a number. Only digits, '.' and ',' are kept and commas act as decimal
// points. When several separators remain the last one is the decimal point,
// so "1.234,50" reads as 1234.5 and ",99" as 0.99. Text without a usable
// number yields nil.
func ParsePrice(priceStr string) *float64 {
	var b strings.Builder
	for _, r := range priceStr {
		switch {
		case r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
		case r == ',':
			b.WriteRune('.')
		}
	}

	cleaned := strings.TrimRight(b.String(), ".")
	if cleaned == "" {
		return nil
	}
	if last := strings.LastIndex(cleaned, "."); last >= 0 {
		cleaned = strings.ReplaceAll(cleaned[:last], ".", "") + cleaned[last:]
	}

	price, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &price
}
