package baseline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound is returned when the baseline document does not exist yet.
// Callers surface it as "run with --write-baseline first" rather than as a
// regression.
var ErrNotFound = errors.New("baseline not found")

// Store manages one performance baseline document on disk.
type Store struct {
	Path string
}

// NewStore creates a store for the document at the given path.
func NewStore(path string) *Store {
	return &Store{Path: path}
}

// Load reads and validates the baseline document. A missing file is
// ErrNotFound, distinct from a document that exists but does not parse,
// which is a hard failure: a silently corrupt baseline would disable
// regression detection entirely.
func (s *Store) Load() (Document, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("failed to read baseline %s: %w", s.Path, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("failed to parse baseline %s: %w", s.Path, err)
	}
	if err := doc.normalize(); err != nil {
		return Document{}, fmt.Errorf("invalid baseline %s: %w", s.Path, err)
	}

	return doc, nil
}

// Save writes the document atomically: marshal to a temp file next to the
// destination, then rename into place, so a concurrent reader never
// observes a half-written baseline.
func (s *Store) Save(doc Document) error {
	if dir := filepath.Dir(s.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create baseline directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize baseline: %w", err)
	}
	data = append(data, '\n')

	tmpPath := s.Path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write baseline temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace baseline: %w", err)
	}
	return nil
}
