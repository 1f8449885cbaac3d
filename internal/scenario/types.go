package scenario

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"guardrail/internal/tolerance"
)

// Format says how a producer reports its metrics.
type Format string

const (
	// FormatJSON means the producer writes a JSON report file under the
	// per-run work dir.
	FormatJSON Format = "json"
	// FormatText means metrics are parsed from the producer's stdout.
	FormatText Format = "text"
)

// WorkDirToken marks where the per-run temp directory is substituted
// into a producer argv.
const WorkDirToken = "{work}"

// DefaultTimeout bounds a single producer attempt.
const DefaultTimeout = 10 * time.Minute

// MetricRoot maps one subtree of a producer's JSON report into the flat
// metric namespace. Path locates the subtree in the report; Prefix names
// the flattened keys, so {Prefix: "full", Path: "frames.fullRepaint"}
// turns frames.fullRepaint.avgMs into full.avgMs.
type MetricRoot struct {
	Prefix string
	Path   string
}

// Scenario describes one producer the guardrail can run: the binary to
// resolve, its exact argv, where the report lands, and how much drift
// each tracked metric is allowed.
type Scenario struct {
	Name          string
	Description   string
	Binary        string
	BuildTarget   string
	Args          []string
	ReportFile    string // relative to the work dir, empty when stdout-only
	Format        Format
	TextFallback  bool // parse stdout when the report file never appeared
	Timeout       time.Duration
	MetricRoots   []MetricRoot // report subtrees feeding metrics; empty flattens the whole report
	MetadataPaths []string     // report values recorded alongside history entries
	Tolerances    map[string]tolerance.Spec
}

// ExpandArgs substitutes the work-dir token into the deterministic argv.
// The argv itself never varies between runs; only the token does.
func (s Scenario) ExpandArgs(workDir string) []string {
	expanded := make([]string, len(s.Args))
	for i, arg := range s.Args {
		expanded[i] = strings.ReplaceAll(arg, WorkDirToken, workDir)
	}
	return expanded
}

// Select resolves a comma-separated scenario list against the given
// definitions. "all" (case-insensitive) selects everything in order.
// Unknown names fail with the available names listed.
func Select(available []Scenario, namesArg string) ([]Scenario, error) {
	if strings.EqualFold(strings.TrimSpace(namesArg), "all") {
		return available, nil
	}

	byName := make(map[string]Scenario, len(available))
	for _, sc := range available {
		byName[sc.Name] = sc
	}

	var selected []Scenario
	for _, segment := range strings.Split(namesArg, ",") {
		name := strings.TrimSpace(segment)
		if name == "" {
			continue
		}
		sc, ok := byName[name]
		if !ok {
			names := make([]string, 0, len(available))
			for _, s := range available {
				names = append(names, s.Name)
			}
			sort.Strings(names)
			return nil, fmt.Errorf("unknown scenario '%s'. Available: %s", name, strings.Join(names, ", "))
		}
		selected = append(selected, sc)
	}
	return selected, nil
}
