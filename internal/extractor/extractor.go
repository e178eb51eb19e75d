// Package extractor applies a profile's extraction rules to a rendered page.
//
// The engine only captures raw strings. Turning them into a price or an
// availability status is left to the caller.
package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"PharmacyScanner/internal/models"
	"PharmacyScanner/internal/scraper"
)

// ExtractionError reports that neither the primary nor the fallback rule set
// produced a result.
type ExtractionError struct {
	Primary  error
	Fallback error
}

func (e *ExtractionError) Error() string {
	if e.Fallback == nil {
		return fmt.Sprintf("extraction failed: %v", e.Primary)
	}
	return fmt.Sprintf("extraction failed: %v; fallback: %v", e.Primary, e.Fallback)
}

func (e *ExtractionError) Unwrap() []error {
	errs := []error{e.Primary}
	if e.Fallback != nil {
		errs = append(errs, e.Fallback)
	}
	return errs
}

// ErrNoRows is returned when the iteration selector matched nothing.
var ErrNoRows = errors.New("no rows matched")

// Extract applies rules to doc. The fallback rule set is tried when the
// primary one errors or yields zero rows. Failures never escape: the result
// then has status error, Err set and whatever was captured in Raw.
func Extract(doc *goquery.Document, rules models.ExtractionRules) models.ScanResult {
	raw, err := apply(doc, rules.RuleSet)
	if err == nil {
		return models.ScanResult{Status: models.StatusOK, Raw: raw}
	}
	if rules.Fallback == nil {
		return failed(raw, &ExtractionError{Primary: err})
	}

	fbRaw, fbErr := apply(doc, *rules.Fallback)
	if fbErr == nil {
		return models.ScanResult{Status: models.StatusOK, Raw: fbRaw}
	}
	if isEmpty(fbRaw) {
		fbRaw = raw
	}
	return failed(fbRaw, &ExtractionError{Primary: err, Fallback: fbErr})
}

// ExtractHTML parses markup and calls Extract.
func ExtractHTML(markup string, rules models.ExtractionRules) models.ScanResult {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return failed(nil, &ExtractionError{Primary: fmt.Errorf("parse html: %w", err)})
	}
	return Extract(doc, rules)
}

// FromSession reads the session's current document and extracts from it.
func FromSession(ctx context.Context, sess scraper.Session, rules models.ExtractionRules) models.ScanResult {
	markup, err := sess.HTML(ctx)
	if err != nil {
		return failed(nil, &ExtractionError{Primary: fmt.Errorf("read page: %w", err)})
	}
	return ExtractHTML(markup, rules)
}

func failed(raw models.RawPayload, err error) models.ScanResult {
	if raw == nil {
		raw = models.SingleResult{Fields: map[string]string{}}
	}
	return models.ScanResult{Status: models.StatusError, Raw: raw, Err: err}
}

func isEmpty(raw models.RawPayload) bool {
	switch r := raw.(type) {
	case models.RowResults:
		return len(r.Rows) == 0
	case models.SingleResult:
		return len(r.Fields) == 0
	}
	return true
}

func apply(doc *goquery.Document, rs models.RuleSet) (models.RawPayload, error) {
	if rs.IterateRows == "" {
		fields, err := readFields(doc.Selection, rs.Fields)
		return models.SingleResult{Fields: fields}, err
	}

	rowSel, err := cascadia.Compile(rs.IterateRows)
	if err != nil {
		return models.RowResults{}, fmt.Errorf("iterateRows %q: %w", rs.IterateRows, err)
	}
	matches := doc.FindMatcher(rowSel)
	if matches.Length() == 0 {
		return models.RowResults{}, fmt.Errorf("%w: %s", ErrNoRows, rs.IterateRows)
	}

	rows := make([]models.Row, 0, matches.Length())
	var rowErr error
	matches.EachWithBreak(func(_ int, row *goquery.Selection) bool {
		fields, err := readFields(row, rs.Fields)
		if err != nil {
			rowErr = err
			return false
		}
		rows = append(rows, models.NewRow(fields, outerHTML(row)))
		return true
	})
	return models.RowResults{Rows: rows}, rowErr
}

// readFields evaluates every field rule within scope. A selector that
// matches nothing yields an empty value; an invalid selector is an error.
func readFields(scope *goquery.Selection, rules map[string]models.FieldRule) (map[string]string, error) {
	fields := make(map[string]string, len(rules))
	for name, rule := range rules {
		m, err := cascadia.Compile(rule.Selector)
		if err != nil {
			return fields, fmt.Errorf("field %q selector %q: %w", name, rule.Selector, err)
		}
		fields[name] = readValue(scope.FindMatcher(m).First(), rule)
	}
	return fields, nil
}

func readValue(sel *goquery.Selection, rule models.FieldRule) string {
	if sel.Length() == 0 {
		return ""
	}
	if rule.Type == models.FieldAttribute || rule.Attribute != "" {
		v, _ := sel.Attr(rule.Attribute)
		return v
	}
	return collapse(sel.Text())
}

// collapse folds whitespace runs into single spaces and trims.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func outerHTML(sel *goquery.Selection) string {
	var buf bytes.Buffer
	for _, n := range sel.Nodes {
		if err := html.Render(&buf, n); err != nil {
			return ""
		}
	}
	return buf.String()
}
