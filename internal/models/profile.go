package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// QueryPlaceholder is replaced by the (URL-escaped) product query in
// search URLs and navigate steps.
const QueryPlaceholder = "{query}"

// SiteProfile is the declarative description of one target site: how to
// reach the result page for a product and how to read it.
type SiteProfile struct {
	ID                 string           `json:"id"`
	Name               string           `json:"name"`
	SearchURL          string           `json:"searchUrl,omitempty"`
	Navigation         []NavigationStep `json:"navigation,omitempty"`
	Extraction         ExtractionRules  `json:"extraction"`
	RateLimitMs        int              `json:"rateLimitMs,omitempty"`
	Network            *NetworkHints    `json:"network,omitempty"`
	Geolocation        *Geolocation     `json:"geolocation,omitempty"`
	RequiresJavascript bool             `json:"requiresJavascript,omitempty"`
	SinglePageApp      bool             `json:"singlePageApp,omitempty"`

	// Source is the file the profile was loaded from. Not part of the schema.
	Source string `json:"-"`
}

// NetworkHints tune how the browser session treats network traffic.
type NetworkHints struct {
	// WaitForResponse lists URL regexes; after the last navigation the
	// session waits for a matching response unless the flow already has an
	// explicit waitForResponse step.
	WaitForResponse   []string `json:"waitForResponse,omitempty"`
	ResponseTimeoutMs int      `json:"responseTimeoutMs,omitempty"`
	// BlockResources lists resource types not worth downloading
	// (images, fonts, media, stylesheets).
	BlockResources []string `json:"blockResources,omitempty"`
}

// Geolocation overrides the browser's reported position. Pharmacy chains
// often price per region.
type Geolocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty"`
}

// FieldType is the declared type of an extracted field. Values are always
// captured raw; the type only decides whether text or an attribute is read.
type FieldType string

const (
	FieldText      FieldType = "text"
	FieldNumber    FieldType = "number"
	FieldAttribute FieldType = "attribute"
)

// Well-known field names interpreted by the scanner.
const (
	FieldName         = "name"
	FieldPrice        = "price"
	FieldAvailability = "availability"
)

// FieldRule selects one value, relative to a row or to the whole document.
type FieldRule struct {
	Selector  string    `json:"selector"`
	Type      FieldType `json:"type,omitempty"`
	Attribute string    `json:"attribute,omitempty"`
}

// RuleSet is an optional row-iteration selector plus the fields to read.
// An empty IterateRows means "single result".
type RuleSet struct {
	IterateRows string               `json:"iterateRows,omitempty"`
	Fields      map[string]FieldRule `json:"fields"`
}

// ExtractionRules is the primary rule set plus an optional fallback used
// only when the primary yields zero rows or fails.
type ExtractionRules struct {
	RuleSet
	Fallback *RuleSet `json:"fallback,omitempty"`
}

// UnmarshalJSON decodes a profile strictly: unknown fields are rejected and
// an explicitly empty navigation flow is an error.
func (p *SiteProfile) UnmarshalJSON(data []byte) error {
	type plain SiteProfile
	aux := struct {
		*plain
		Navigation *[]NavigationStep `json:"navigation"`
	}{plain: (*plain)(p)}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&aux); err != nil {
		return err
	}
	if aux.Navigation != nil {
		if len(*aux.Navigation) == 0 {
			return errors.New("navigation: flow must not be empty when present")
		}
		p.Navigation = *aux.Navigation
	}
	return nil
}

// MinDelay is the minimum pause after scanning this site.
func (p SiteProfile) MinDelay() time.Duration {
	return time.Duration(p.RateLimitMs) * time.Millisecond
}

// ResolveSearchURL substitutes the query into the search URL template.
func (p SiteProfile) ResolveSearchURL(query string) string {
	return ExpandQuery(p.SearchURL, query)
}

// ExpandQuery replaces QueryPlaceholder with the escaped query.
func ExpandQuery(template, query string) string {
	return strings.ReplaceAll(template, QueryPlaceholder, url.QueryEscape(query))
}

// ResponsePatterns compiles the network wait hints.
func (p SiteProfile) ResponsePatterns() ([]*regexp.Regexp, error) {
	if p.Network == nil {
		return nil, nil
	}
	patterns := make([]*regexp.Regexp, 0, len(p.Network.WaitForResponse))
	for _, expr := range p.Network.WaitForResponse {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("network.waitForResponse %q: %w", expr, err)
		}
		patterns = append(patterns, re)
	}
	return patterns, nil
}

// Validate checks the invariants a loaded profile must satisfy.
func (p SiteProfile) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("id is required")
	}
	if p.RateLimitMs < 0 {
		return fmt.Errorf("rateLimitMs must not be negative, got %d", p.RateLimitMs)
	}
	if len(p.Navigation) == 0 && p.SearchURL == "" {
		return errors.New("either navigation or searchUrl is required")
	}
	if p.SearchURL != "" {
		if _, err := url.Parse(p.SearchURL); err != nil {
			return fmt.Errorf("searchUrl: %w", err)
		}
	}
	for i, step := range p.Navigation {
		if err := step.Validate(); err != nil {
			return fmt.Errorf("navigation[%d]: %w", i, err)
		}
	}
	if err := p.Extraction.RuleSet.validate(); err != nil {
		return fmt.Errorf("extraction: %w", err)
	}
	if p.Extraction.Fallback != nil {
		if err := p.Extraction.Fallback.validate(); err != nil {
			return fmt.Errorf("extraction.fallback: %w", err)
		}
	}
	if p.Network != nil {
		if p.Network.ResponseTimeoutMs < 0 {
			return errors.New("network.responseTimeoutMs must be positive")
		}
		if _, err := p.ResponsePatterns(); err != nil {
			return err
		}
	}
	if g := p.Geolocation; g != nil {
		if g.Latitude < -90 || g.Latitude > 90 || g.Longitude < -180 || g.Longitude > 180 {
			return fmt.Errorf("geolocation out of range: %v,%v", g.Latitude, g.Longitude)
		}
	}
	return nil
}

func (rs RuleSet) validate() error {
	if len(rs.Fields) == 0 {
		return errors.New("at least one field rule is required")
	}
	for name, rule := range rs.Fields {
		if strings.TrimSpace(rule.Selector) == "" {
			return fmt.Errorf("field %q: selector is required", name)
		}
		switch rule.Type {
		case "", FieldText, FieldNumber:
		case FieldAttribute:
			if rule.Attribute == "" {
				return fmt.Errorf("field %q: attribute type needs an attribute name", name)
			}
		default:
			return fmt.Errorf("field %q: unknown type %q", name, rule.Type)
		}
	}
	return nil
}
