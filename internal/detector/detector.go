// Package detector decides whether an observation differs from the last one
// recorded under the same key.
package detector

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"PharmacyScanner/internal/models"
)

// fingerprint is the canonical form hashed by ComputeHash. encoding/json
// writes map keys in sorted order, so equal details always encode equally.
type fingerprint struct {
	Status  models.Status  `json:"status"`
	Price   *string        `json:"price"`
	Details map[string]any `json:"details"`
}

// ComputeHash returns the hex SHA-256 of the observation. A nil price hashes
// differently from a zero price.
func ComputeHash(status models.Status, price *float64, details map[string]any) string {
	fp := fingerprint{Status: status, Details: details}
	if price != nil {
		s := strconv.FormatFloat(*price, 'f', -1, 64)
		fp.Price = &s
	}
	if fp.Details == nil {
		fp.Details = map[string]any{}
	}

	data, err := json.Marshal(fp)
	if err != nil {
		// fmt also prints maps in key order.
		p := "null"
		if fp.Price != nil {
			p = *fp.Price
		}
		data = []byte(fmt.Sprintf("%s|%s|%v", status, p, fp.Details))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Key composes the store key for one observation. Row-level observations
// carry the row slug, single results pass an empty slug.
func Key(siteID, rowSlug, productID string) string {
	if rowSlug == "" {
		return siteID + ":" + productID
	}
	return siteID + ":" + rowSlug + ":" + productID
}

// ChangeRecord is the last digest stored under a key.
type ChangeRecord struct {
	Key       string
	Digest    string
	UpdatedAt time.Time
	// Changes counts how many times the digest was replaced, first one included.
	Changes int
}

// Store is an in-memory map of key to last digest, safe for concurrent use.
// It starts empty on every process start.
type Store struct {
	mu      sync.Mutex
	records map[string]ChangeRecord
	now     func() time.Time
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{records: make(map[string]ChangeRecord), now: time.Now}
}

// IsChangedAndUpdate stores digest under key and reports true when the key
// was absent or held a different digest. An equal digest leaves the record
// untouched and reports false.
func (s *Store) IsChangedAndUpdate(key, digest string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if ok && rec.Digest == digest {
		return false
	}
	s.records[key] = ChangeRecord{Key: key, Digest: digest, UpdatedAt: s.now(), Changes: rec.Changes + 1}
	return true
}

// Get returns a copy of the record under key.
func (s *Store) Get(key string) (ChangeRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	return rec, ok
}

// Len is the number of tracked keys.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
