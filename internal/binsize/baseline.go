package binsize

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNotFound reports that no size baseline exists at the store path.
var ErrNotFound = errors.New("size baseline not found")

// Tolerance is the growth allowance for a binary: whichever of the
// percent-derived and absolute byte budgets is larger applies.
type Tolerance struct {
	Percent       float64 `json:"percent"`
	AbsoluteBytes int64   `json:"absoluteBytes"`
}

// Allowed returns the growth budget for a baseline size.
func (t Tolerance) Allowed(baselineSize int64) int64 {
	fromPercent := int64(float64(baselineSize) * (t.Percent / 100.0))
	if fromPercent > t.AbsoluteBytes {
		return fromPercent
	}
	return t.AbsoluteBytes
}

// Binary is one recorded binary size. A nil Tolerance falls back to
// the document-level default.
type Binary struct {
	Name      string     `json:"name"`
	SizeBytes int64      `json:"sizeBytes"`
	Tolerance *Tolerance `json:"tolerance,omitempty"`
}

// Document is the on-disk size baseline, keyed by relative path.
type Document struct {
	GeneratedAt time.Time         `json:"generatedAt"`
	Tolerance   Tolerance         `json:"tolerance"`
	Binaries    map[string]Binary `json:"binaries"`
}

// Store loads and saves the size baseline at a fixed path.
type Store struct {
	Path string
}

// NewStore returns a store bound to the given baseline path.
func NewStore(path string) *Store {
	return &Store{Path: path}
}

// Load reads the size baseline, reporting a missing file as ErrNotFound.
func (s *Store) Load() (Document, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("failed to read size baseline %s: %w", s.Path, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("failed to parse size baseline %s: %w", s.Path, err)
	}
	if doc.Binaries == nil {
		doc.Binaries = make(map[string]Binary)
	}
	return doc, nil
}

// Save writes the size baseline atomically.
func (s *Store) Save(doc Document) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0755); err != nil {
		return fmt.Errorf("failed to create size baseline directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal size baseline: %w", err)
	}
	data = append(data, '\n')

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write size baseline %s: %w", s.Path, err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace size baseline %s: %w", s.Path, err)
	}
	return nil
}
