package app

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"PharmacyScanner/internal/detector"
	"PharmacyScanner/internal/extractor"
	"PharmacyScanner/internal/models"
	"PharmacyScanner/internal/scraper"
	"PharmacyScanner/utils"
)

// observation is one forward-or-suppress decision unit.
type observation struct {
	key       string
	siteID    string
	productID string
	status    models.Status
	price     *float64
	details   map[string]any
}

// observe turns a scan result into observations. Each row is its own
// observation keyed by the row name slug; a single result or a failed scan
// is keyed by site and product. Values captured during navigation are added
// to every observation's details.
func observe(siteID string, product models.Product, res models.ScanResult) []observation {
	if res.Status == models.StatusError {
		return []observation{{
			key:       detector.Key(siteID, "", product.ID),
			siteID:    siteID,
			productID: product.ID,
			status:    models.StatusError,
			details:   errorDetails(res),
		}}
	}

	switch raw := res.Raw.(type) {
	case models.RowResults:
		slugs := rowSlugs(raw.Rows)
		out := make([]observation, 0, len(raw.Rows))
		for i, row := range raw.Rows {
			details := row.Details()
			if len(res.Captures) > 0 {
				details["captures"] = res.Captures
			}
			out = append(out, observation{
				key:       detector.Key(siteID, slugs[i], product.ID),
				siteID:    siteID,
				productID: product.ID,
				status:    utils.ClassifyAvailability(row.AvailabilityText),
				price:     utils.ParsePrice(row.PriceText),
				details:   details,
			})
		}
		return out

	case models.SingleResult:
		status := res.Status
		if text, ok := raw.Fields[models.FieldAvailability]; ok {
			status = utils.ClassifyAvailability(text)
		}
		details := make(map[string]any, len(raw.Fields)+1)
		for k, v := range raw.Fields {
			details[k] = v
		}
		if len(res.Captures) > 0 {
			details["captures"] = res.Captures
		}
		return []observation{{
			key:       detector.Key(siteID, "", product.ID),
			siteID:    siteID,
			productID: product.ID,
			status:    status,
			price:     res.Price,
			details:   details,
		}}
	}
	return nil
}

// rowSlugs names each row by its slug. Rows sharing a slug are told apart by
// a digest of their identifying fields (everything but price and
// availability), so the keys survive the site reordering them. Rows that are
// identical on those fields fall back to an ordinal.
func rowSlugs(rows []models.Row) []string {
	slugs := make([]string, len(rows))
	count := make(map[string]int, len(rows))
	for i, row := range rows {
		slugs[i] = utils.CreateSlug(row.Name)
		count[slugs[i]]++
	}

	seen := make(map[string]int)
	for i, row := range rows {
		if count[slugs[i]] < 2 {
			continue
		}
		slug := slugs[i] + "-" + rowIdentity(row)
		seen[slug]++
		if n := seen[slug]; n > 1 {
			slug = fmt.Sprintf("%s-%d", slug, n)
		}
		slugs[i] = slug
	}
	return slugs
}

func rowIdentity(row models.Row) string {
	names := make([]string, 0, len(row.Fields))
	for name := range row.Fields {
		if name == models.FieldPrice || name == models.FieldAvailability {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte(0)
		b.WriteString(row.Fields[name])
		b.WriteByte(0)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:8]
}

// errorDetails describes a failed scan by kind rather than by full message,
// so that a site failing the same way twice is suppressed the second time.
func errorDetails(res models.ScanResult) map[string]any {
	details := map[string]any{"error": "scan failed"}

	var ne *scraper.NavigationError
	var ee *extractor.ExtractionError
	switch {
	case errors.As(res.Err, &ne):
		details["error"] = ne.Kind.Error()
		if ne.Step >= 0 {
			details["step"] = ne.Step
			details["action"] = string(ne.Action)
		}
	case errors.As(res.Err, &ee):
		details["error"] = "extraction failed"
	}

	switch raw := res.Raw.(type) {
	case models.RowResults:
		if len(raw.Rows) > 0 {
			rows := make([]map[string]any, 0, len(raw.Rows))
			for _, r := range raw.Rows {
				rows = append(rows, r.Details())
			}
			details["rows"] = rows
		}
	case models.SingleResult:
		if len(raw.Fields) > 0 {
			details["fields"] = raw.Fields
		}
	}
	return details
}
