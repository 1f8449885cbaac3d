package revision

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// changelogHeading matches the revision headings the changelog must
// carry, one per manifest bump ("## Revision 4").
var changelogHeading = regexp.MustCompile(`^##\s+Revision\s+(\d+)\b`)

// FailureKind classifies a consistency failure.
type FailureKind string

const (
	// KindMarkerMismatch means the manifest revision and the
	// expected-revision marker disagree.
	KindMarkerMismatch FailureKind = "marker-mismatch"
	// KindChangelogMissing means the changelog file itself is absent.
	KindChangelogMissing FailureKind = "changelog-missing"
	// KindMissingEntry means the changelog has no heading for the
	// current manifest revision.
	KindMissingEntry FailureKind = "missing-changelog-entry"
)

// Failure is a single consistency violation, carrying the exact values
// involved so reports can cite both sides.
type Failure struct {
	Kind     FailureKind `json:"kind"`
	Manifest int         `json:"manifestRevision"`
	Expected int         `json:"expectedRevision,omitempty"`
	Path     string      `json:"path"`
}

func (f Failure) String() string {
	switch f.Kind {
	case KindMarkerMismatch:
		return fmt.Sprintf("manifest revision %d does not match expected revision %d recorded in %s",
			f.Manifest, f.Expected, f.Path)
	case KindChangelogMissing:
		return fmt.Sprintf("changelog %s does not exist, expected an entry for revision %d",
			f.Path, f.Manifest)
	case KindMissingEntry:
		return fmt.Sprintf("changelog %s has no '## Revision %d' entry for the current manifest revision",
			f.Path, f.Manifest)
	}
	return fmt.Sprintf("revision inconsistency at %s (manifest revision %d)", f.Path, f.Manifest)
}

// Result collects every consistency failure for one manifest revision.
type Result struct {
	Passed   bool
	Failures []Failure
}

// Checker validates that the manifest revision, the expected-revision
// marker, and the changelog move together. Empty paths disable the
// corresponding check.
type Checker struct {
	MarkerPath    string
	ChangelogPath string
}

// ReadExpected reads the expected-revision marker: a single base-10
// integer in a text file. An absent or blank file means no expectation
// was recorded and is not an error; any other unparseable content is.
func ReadExpected(path string) (rev int, recorded bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to read expected revision %s: %w", path, err)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return 0, false, nil
	}
	rev, convErr := strconv.Atoi(text)
	if convErr != nil {
		return 0, false, fmt.Errorf("expected revision file %s does not contain an integer: %q", path, text)
	}
	return rev, true, nil
}

// WriteExpected records a new expected revision in the marker file.
func WriteExpected(path string, rev int) error {
	if err := os.WriteFile(path, []byte(strconv.Itoa(rev)+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write expected revision %s: %w", path, err)
	}
	return nil
}

// ChangelogRevisions scans a Markdown changelog for revision headings
// and returns the set of revisions it documents.
func ChangelogRevisions(path string) (map[int]bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	revisions := make(map[int]bool)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		match := changelogHeading.FindStringSubmatch(scanner.Text())
		if match == nil {
			continue
		}
		rev, convErr := strconv.Atoi(match[1])
		if convErr != nil {
			continue
		}
		revisions[rev] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan changelog %s: %w", path, err)
	}
	return revisions, nil
}

// Check runs every configured consistency check against the given
// manifest revision. Verdicts are collected, never short-circuited; the
// error return is reserved for unreadable or unparseable inputs.
func (c Checker) Check(manifestRevision int) (Result, error) {
	var result Result

	if c.MarkerPath != "" {
		expected, recorded, err := ReadExpected(c.MarkerPath)
		if err != nil {
			return Result{}, err
		}
		if recorded && expected != manifestRevision {
			result.Failures = append(result.Failures, Failure{
				Kind:     KindMarkerMismatch,
				Manifest: manifestRevision,
				Expected: expected,
				Path:     c.MarkerPath,
			})
		}
	}

	if c.ChangelogPath != "" {
		revisions, err := ChangelogRevisions(c.ChangelogPath)
		switch {
		case os.IsNotExist(err):
			result.Failures = append(result.Failures, Failure{
				Kind:     KindChangelogMissing,
				Manifest: manifestRevision,
				Path:     c.ChangelogPath,
			})
		case err != nil:
			return Result{}, fmt.Errorf("failed to read changelog %s: %w", c.ChangelogPath, err)
		case !revisions[manifestRevision]:
			result.Failures = append(result.Failures, Failure{
				Kind:     KindMissingEntry,
				Manifest: manifestRevision,
				Path:     c.ChangelogPath,
			})
		}
	}

	result.Passed = len(result.Failures) == 0
	return result, nil
}
