// Package journal keeps an append-only NDJSON record of every observation
// the scanner decided to forward.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"PharmacyScanner/internal/models"
)

// PersistenceError is a failed journal write.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("journal %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Entry is one journal line.
type Entry struct {
	DeliveryID string `json:"deliveryId"`
	LoggedAt   string `json:"loggedAt"`
	models.AvailabilityPayload
}

// Journal appends entries to a single file.
type Journal struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// New returns a journal writing to path. The file and its directory are
// created on first append.
func New(path string) *Journal {
	return &Journal{path: path, now: time.Now}
}

// Path is the journal file location.
func (j *Journal) Path() string { return j.path }

// Append writes payload as one line and returns the delivery id assigned to it.
func (j *Journal) Append(payload models.AvailabilityPayload) (string, error) {
	entry := Entry{
		DeliveryID:          uuid.NewString(),
		LoggedAt:            j.now().UTC().Format(time.RFC3339Nano),
		AvailabilityPayload: payload,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return "", &PersistenceError{Path: j.path, Err: err}
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return "", &PersistenceError{Path: j.path, Err: err}
	}
	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", &PersistenceError{Path: j.path, Err: err}
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return "", &PersistenceError{Path: j.path, Err: err}
	}
	if err := f.Close(); err != nil {
		return "", &PersistenceError{Path: j.path, Err: err}
	}
	return entry.DeliveryID, nil
}

// ReadAll decodes every entry of the journal at path. A missing file is an
// empty journal.
func ReadAll(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return entries, fmt.Errorf("line %d: %w", line, err)
		}
		entries = append(entries, e)
	}
	return entries, sc.Err()
}
