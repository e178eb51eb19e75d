package models

import "time"

// AvailabilityPayload is the JSON body forwarded to the downstream sink for
// each detected change.
type AvailabilityPayload struct {
	PharmacyID string         `json:"pharmacyId"`
	Product    string         `json:"product"`
	Timestamp  string         `json:"timestamp"`
	Status     Status         `json:"status"`
	Price      *float64       `json:"price"`
	Details    map[string]any `json:"details"`
}

// NewAvailabilityPayload stamps an observation with an RFC3339 UTC timestamp.
func NewAvailabilityPayload(siteID, product string, status Status, price *float64, details map[string]any, at time.Time) AvailabilityPayload {
	return AvailabilityPayload{
		PharmacyID: siteID,
		Product:    product,
		Timestamp:  at.UTC().Format(time.RFC3339),
		Status:     status,
		Price:      price,
		Details:    details,
	}
}

// ObservedAt parses Timestamp back.
func (p AvailabilityPayload) ObservedAt() (time.Time, error) {
	return time.Parse(time.RFC3339, p.Timestamp)
}
