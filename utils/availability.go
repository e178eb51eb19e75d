package utils

import (
	"strings"

	"PharmacyScanner/internal/models"
)

// inStockPhrases are lower-case markers of positive stock. Slovak and Czech
// pharmacies dominate the profiles; ">0" is what some stores print as a raw
// stock counter.
var inStockPhrases = []string{
	"skladom",
	"na sklade",
	"na predajni",
	"áno",
	"in stock",
	">0",
}

// ClassifyAvailability maps raw availability text to a status. Any positive
// phrase means ok; everything else, including empty text, is not_found.
func ClassifyAvailability(text string) models.Status {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return models.StatusNotFound
	}
	for _, phrase := range inStockPhrases {
		if strings.Contains(lower, phrase) {
			return models.StatusOK
		}
	}
	return models.StatusNotFound
}
