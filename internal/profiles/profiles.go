// Package profiles loads site profiles from a directory of JSON files.
package profiles

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"PharmacyScanner/internal/models"
)

// ConfigError reports a profile file that was skipped.
type ConfigError struct {
	File string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("profile %s: %v", filepath.Base(e.File), e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Load reads and validates a single profile file.
func Load(path string) (models.SiteProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.SiteProfile{}, &ConfigError{File: path, Err: err}
	}

	var p models.SiteProfile
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return models.SiteProfile{}, &ConfigError{File: path, Err: fmt.Errorf("decode: %w", err)}
	}
	if err := p.Validate(); err != nil {
		return models.SiteProfile{}, &ConfigError{File: path, Err: err}
	}
	p.Source = path
	return p, nil
}

// LoadAll loads every *.json profile in dir in lexicographic file-name
// order. Files that fail to decode or validate, and files repeating an id
// already loaded, are skipped and reported in the returned slice of
// *ConfigError. The error result is only set when dir itself is unreadable.
func LoadAll(dir string) ([]models.SiteProfile, []error, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("profiles: read dir %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var (
		loaded  []models.SiteProfile
		skipped []error
		seen    = make(map[string]string)
	)
	for _, name := range names {
		path := filepath.Join(dir, name)
		p, err := Load(path)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		if first, dup := seen[p.ID]; dup {
			skipped = append(skipped, &ConfigError{File: path, Err: fmt.Errorf("duplicate id %q (first in %s)", p.ID, filepath.Base(first))})
			continue
		}
		seen[p.ID] = path
		loaded = append(loaded, p)
	}
	return loaded, skipped, nil
}

// Store keeps the last successfully loaded profile set for a directory and
// reloads it between scan passes.
type Store struct {
	dir    string
	logger *slog.Logger

	mu       sync.RWMutex
	profiles []models.SiteProfile
}

// NewStore creates a Store for dir. Call Reload before reading.
func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, logger: logger}
}

// Reload re-reads the directory. Skipped files are logged. If the
// directory cannot be read the previous set is kept and the error returned.
func (s *Store) Reload() ([]models.SiteProfile, error) {
	loaded, skipped, err := LoadAll(s.dir)
	if err != nil {
		s.logger.Error("profiles: reload failed, keeping previous set", "dir", s.dir, "error", err)
		return s.Profiles(), err
	}
	for _, e := range skipped {
		s.logger.Warn("profiles: skipped invalid profile", "error", e)
	}

	s.mu.Lock()
	s.profiles = loaded
	s.mu.Unlock()

	s.logger.Info("profiles: loaded", "dir", s.dir, "count", len(loaded), "skipped", len(skipped))
	return loaded, nil
}

// Profiles returns the current set.
func (s *Store) Profiles() []models.SiteProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.SiteProfile, len(s.profiles))
	copy(out, s.profiles)
	return out
}
