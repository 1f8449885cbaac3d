package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Entry is one appended run record. Every scenario executed in the same
// engine invocation shares a run ID.
type Entry struct {
	Timestamp time.Time              `json:"timestamp"`
	RunID     string                 `json:"runId"`
	Metrics   map[string]float64     `json:"metrics"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewRunID returns a fresh identifier for one engine invocation.
func NewRunID() string {
	return uuid.NewString()
}

// Appender writes per-scenario JSONL files under a directory. The
// guardrail verdict never reads these; they exist for trend diagnostics.
type Appender struct {
	Dir string
}

// Append adds one entry to the scenario's JSONL file, creating the
// directory and file on first use.
func (a Appender) Append(scenarioName string, entry Entry) error {
	if err := os.MkdirAll(a.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create history directory %s: %w", a.Dir, err)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal history entry: %w", err)
	}

	path := filepath.Join(a.Dir, scenarioName+".jsonl")
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open history file %s: %w", path, err)
	}
	defer file.Close()

	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append history entry to %s: %w", path, err)
	}
	return nil
}

// Read returns every entry for a scenario, oldest first. A scenario
// with no history yields an empty slice.
func (a Appender) Read(scenarioName string) ([]Entry, error) {
	path := filepath.Join(a.Dir, scenarioName+".jsonl")
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open history file %s: %w", path, err)
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("failed to parse history entry in %s: %w", path, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan history file %s: %w", path, err)
	}
	return entries, nil
}
