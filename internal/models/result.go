package models

// Status is the closed set of observation outcomes.
type Status string

const (
	StatusOK       Status = "ok"
	StatusNotFound Status = "not_found"
	StatusError    Status = "error"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOK, StatusNotFound, StatusError:
		return true
	}
	return false
}

// Product is one configured product query to scan every site for.
type Product struct {
	ID    string `yaml:"id" json:"id"`
	Query string `yaml:"query" json:"query"`
}

// RawPayload is what the extraction engine captured. It is either a
// SingleResult or a RowResults.
type RawPayload interface {
	isRawPayload()
}

// SingleResult holds fields read once against the whole document.
type SingleResult struct {
	Fields map[string]string
}

// RowResults holds one entry per iterated row, in document order.
type RowResults struct {
	Rows []Row
}

func (SingleResult) isRawPayload() {}
func (RowResults) isRawPayload()   {}

// Row is one iterated result row. Name, PriceText and AvailabilityText are
// copies of the well-known fields; Fields keeps every captured value and
// RawHTML the row markup for audit.
type Row struct {
	Name             string
	PriceText        string
	AvailabilityText string
	Fields           map[string]string
	RawHTML          string
}

// NewRow builds a Row from captured fields.
func NewRow(fields map[string]string, rawHTML string) Row {
	return Row{
		Name:             fields[FieldName],
		PriceText:        fields[FieldPrice],
		AvailabilityText: fields[FieldAvailability],
		Fields:           fields,
		RawHTML:          rawHTML,
	}
}

// Details is the JSON-friendly view of a row forwarded downstream.
func (r Row) Details() map[string]any {
	details := make(map[string]any, len(r.Fields)+1)
	for k, v := range r.Fields {
		details[k] = v
	}
	if r.RawHTML != "" {
		details["raw"] = r.RawHTML
	}
	return details
}

// ScanResult is the outcome of one (site, product) scan.
type ScanResult struct {
	Status   Status
	Price    *float64
	Raw      RawPayload
	Captures map[string]string
	// Err is set when extraction failed; Raw then holds partial data.
	Err error
}

// Rows returns the iterated rows, or nil for single results.
func (r ScanResult) Rows() []Row {
	if rr, ok := r.Raw.(RowResults); ok {
		return rr.Rows
	}
	return nil
}

// Fields returns the single-result fields, or nil for row results.
func (r ScanResult) Fields() map[string]string {
	if sr, ok := r.Raw.(SingleResult); ok {
		return sr.Fields
	}
	return nil
}
