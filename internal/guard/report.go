package guard

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Problem kinds raised by the engine itself, on top of the kinds the
// tolerance evaluator reports per metric.
const (
	KindMissingBinary   = "missing-binary"            // producer binary absent from the build tree
	KindProcessFailure  = "process-failure"           // producer failed to start, exited nonzero, or timed out
	KindMalformedOutput = "malformed-output"          // producer ran but its output could not be parsed
	KindMissingScenario = "missing-baseline-scenario" // baseline has no record for a requested scenario
)

// Problem is one failure attributed to a scenario run. Message is the
// fully rendered line as it appears in logs; Kind lets callers branch
// without parsing it.
type Problem struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ScenarioReport is the verdict for one executed scenario. Metrics holds
// the tracked values the verdict was computed from, so a report is
// self-contained for trend tooling.
type ScenarioReport struct {
	Name     string             `json:"name"`
	Passed   bool               `json:"passed"`
	Attempts int                `json:"attempts,omitempty"`
	Metrics  map[string]float64 `json:"metrics,omitempty"`
	Problems []Problem          `json:"problems,omitempty"`
}

// Report merges every scenario verdict from one engine invocation.
type Report struct {
	GeneratedAt     time.Time        `json:"generatedAt"`
	RunID           string           `json:"runId"`
	BaselinePath    string           `json:"baselinePath"`
	BaselineWritten bool             `json:"baselineWritten,omitempty"`
	Passed          bool             `json:"passed"`
	Scenarios       []ScenarioReport `json:"scenarios"`
}

// Problems returns every failure line in scenario order.
func (r Report) Problems() []string {
	var lines []string
	for _, sc := range r.Scenarios {
		for _, p := range sc.Problems {
			lines = append(lines, p.Message)
		}
	}
	return lines
}

// FormatCLI formats the failing checks for terminal output. A passing
// report renders nothing; callers print their own success line.
func FormatCLI(r Report) string {
	problems := r.Problems()
	if r.Passed || len(problems) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Performance guardrail detected regressions:\n")
	for _, line := range problems {
		sb.WriteString(fmt.Sprintf("  %s\n", line))
	}
	return sb.String()
}

// FormatCI formats the failing checks as GitHub Actions error
// annotations. The baseline document is named as the annotation file so
// failures link back to the policy that produced them.
func FormatCI(r Report) string {
	problems := r.Problems()
	if r.Passed || len(problems) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, line := range problems {
		sb.WriteString(fmt.Sprintf("::error file=%s::%s\n", r.BaselinePath, line))
	}
	sb.WriteString(fmt.Sprintf("\n❌ Performance guardrail: %d failing check(s)\n", len(problems)))
	return sb.String()
}

// FormatJSON formats the full report as JSON.
func FormatJSON(r Report) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
