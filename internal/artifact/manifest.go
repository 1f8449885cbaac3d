package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNotFound reports that no manifest exists at the store path.
var ErrNotFound = errors.New("manifest not found")

// Capture is one golden screenshot tracked by the manifest, keyed by
// its resolution tag (for example "1280x800").
type Capture struct {
	Path       string    `json:"path"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	SHA256     string    `json:"sha256"`
	Revision   int       `json:"revision"`
	CapturedAt time.Time `json:"capturedAt"`
	Commit     string    `json:"commit,omitempty"`
	Notes      string    `json:"notes,omitempty"`
}

// Manifest records every golden screenshot plus a document-level
// revision that moves whenever any capture changes.
type Manifest struct {
	ManifestRevision int                `json:"manifestRevision"`
	Captures         map[string]Capture `json:"captures"`
}

// Store loads and saves a manifest document at a fixed path.
type Store struct {
	Path string
}

// NewStore returns a store bound to the given manifest path.
func NewStore(path string) *Store {
	return &Store{Path: path}
}

// Load reads the manifest document. A missing file is reported as
// ErrNotFound so callers can distinguish "never captured" from a
// corrupt document.
func (s *Store) Load() (Manifest, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return Manifest{}, ErrNotFound
		}
		return Manifest{}, fmt.Errorf("failed to read manifest %s: %w", s.Path, err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return Manifest{}, fmt.Errorf("failed to parse manifest %s: %w", s.Path, err)
	}
	if manifest.Captures == nil {
		manifest.Captures = make(map[string]Capture)
	}
	return manifest, nil
}

// Save writes the manifest atomically: marshal to a temp file next to
// the target, then rename over it.
func (s *Store) Save(manifest Manifest) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	data = append(data, '\n')

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest %s: %w", s.Path, err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace manifest %s: %w", s.Path, err)
	}
	return nil
}
