package binsize

import (
	"fmt"
	"sort"
	"time"
)

// FailureKind classifies a size guardrail failure.
type FailureKind string

const (
	// KindGrew means a tracked binary exceeded its growth budget.
	KindGrew FailureKind = "grew"
	// KindMissing means a tracked binary was not built in this run.
	KindMissing FailureKind = "missing"
	// KindUntracked means the baseline records a binary the current
	// target list no longer measures.
	KindUntracked FailureKind = "untracked"
	// KindNew means a built binary has no baseline entry yet.
	KindNew FailureKind = "new"
)

// Failure is one size guardrail violation.
type Failure struct {
	Kind         FailureKind `json:"kind"`
	RelativePath string      `json:"relativePath"`
	Baseline     int64       `json:"baselineBytes,omitempty"`
	Current      int64       `json:"currentBytes,omitempty"`
	Limit        int64       `json:"limitBytes,omitempty"`
}

func (f Failure) String() string {
	switch f.Kind {
	case KindGrew:
		return fmt.Sprintf("binary '%s' grew by %d bytes (limit %d); baseline %d, current %d",
			f.RelativePath, f.Current-f.Baseline, f.Limit, f.Baseline, f.Current)
	case KindMissing:
		return fmt.Sprintf("binary '%s' missing (expected size %d bytes)", f.RelativePath, f.Baseline)
	case KindUntracked:
		return fmt.Sprintf("baseline expects binary '%s', but it was not tracked in this run", f.RelativePath)
	case KindNew:
		return fmt.Sprintf("binary '%s' is new; record a baseline before enabling guardrails", f.RelativePath)
	}
	return fmt.Sprintf("size guardrail failure for '%s'", f.RelativePath)
}

// Result collects every size failure for one run.
type Result struct {
	Passed   bool      `json:"passed"`
	Failures []Failure `json:"failures,omitempty"`
}

// Record builds a fresh baseline from the measured entries and saves
// it. Every tracked binary must have been built; recording a partial
// baseline would silently untrack the missing ones.
func Record(store *Store, entries []Entry, tol Tolerance) (Document, error) {
	doc := Document{
		GeneratedAt: time.Now().UTC(),
		Tolerance:   tol,
		Binaries:    make(map[string]Binary, len(entries)),
	}
	for _, entry := range entries {
		if !entry.Found {
			return Document{}, fmt.Errorf("cannot record baseline; binary '%s' was not built", entry.RelativePath)
		}
		doc.Binaries[entry.RelativePath] = Binary{Name: entry.Name, SizeBytes: entry.SizeBytes}
	}
	if err := store.Save(doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Check compares measured entries against the baseline. Shrinkage is
// always fine; growth beyond the budget, tracked binaries gone missing,
// and binaries on either side the other does not know about all fail.
// Failures are collected, never short-circuited.
func Check(doc Document, entries []Entry) Result {
	var result Result

	current := make(map[string]Entry, len(entries))
	for _, entry := range entries {
		current[entry.RelativePath] = entry
	}

	recordedPaths := make([]string, 0, len(doc.Binaries))
	for relPath := range doc.Binaries {
		recordedPaths = append(recordedPaths, relPath)
	}
	sort.Strings(recordedPaths)

	for _, relPath := range recordedPaths {
		recorded := doc.Binaries[relPath]
		entry, tracked := current[relPath]
		if !tracked {
			result.Failures = append(result.Failures, Failure{Kind: KindUntracked, RelativePath: relPath})
			continue
		}
		if !entry.Found {
			result.Failures = append(result.Failures, Failure{
				Kind:         KindMissing,
				RelativePath: relPath,
				Baseline:     recorded.SizeBytes,
			})
			continue
		}

		tol := doc.Tolerance
		if recorded.Tolerance != nil {
			tol = *recorded.Tolerance
		}
		limit := recorded.SizeBytes + tol.Allowed(recorded.SizeBytes)
		if entry.SizeBytes > limit {
			result.Failures = append(result.Failures, Failure{
				Kind:         KindGrew,
				RelativePath: relPath,
				Baseline:     recorded.SizeBytes,
				Current:      entry.SizeBytes,
				Limit:        limit,
			})
		}
	}

	for _, entry := range entries {
		if _, recorded := doc.Binaries[entry.RelativePath]; !recorded && entry.Found {
			result.Failures = append(result.Failures, Failure{Kind: KindNew, RelativePath: entry.RelativePath})
		}
	}

	result.Passed = len(result.Failures) == 0
	return result
}
