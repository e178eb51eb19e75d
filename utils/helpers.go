package utils

import (
	"regexp"
	"strings"
)

// UniqueStrings returns the slice without duplicates, keeping first
// occurrences in order.
func UniqueStrings(slice []string) []string {
	keys := make(map[string]bool)
	uniqueSlice := []string{}
	for _, entry := range slice {
		if _, value := keys[entry]; !value {
			keys[entry] = true
			uniqueSlice = append(uniqueSlice, entry)
		}
	}
	return uniqueSlice
}

// UnknownSlug stands in for rows without a readable name.
const UnknownSlug = "unknown"

// slugRegex matches runs of anything that is not a letter or a number.
var slugRegex = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// CreateSlug builds the stable row identifier used in change keys:
// "Paralen 500mg (tbl.)" becomes "paralen-500mg-tbl".
func CreateSlug(name string) string {
	slug := strings.ToLower(name)
	slug = slugRegex.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return UnknownSlug
	}
	return slug
}
