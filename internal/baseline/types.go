package baseline

import (
	"fmt"
	"time"

	"guardrail/internal/tolerance"
)

// Document is the versioned performance baseline covering every scenario.
type Document struct {
	GeneratedAt time.Time                   `json:"generatedAt"`
	Scenarios   map[string]ScenarioBaseline `json:"scenarios"`
}

// ScenarioBaseline records the approved state for one scenario: the metric
// values a fresh run is compared against, the tolerance policy in effect
// when they were captured, and free-form metadata kept for audit only.
type ScenarioBaseline struct {
	Metrics    map[string]float64        `json:"metrics"`
	Tolerances map[string]tolerance.Spec `json:"tolerances,omitempty"`
	Metadata   map[string]interface{}    `json:"metadata,omitempty"`
}

// NewDocument creates an empty document stamped with the current UTC time.
func NewDocument() Document {
	return Document{
		GeneratedAt: time.Now().UTC(),
		Scenarios:   map[string]ScenarioBaseline{},
	}
}

// normalize validates every embedded tolerance spec in place. Directions
// are parsed through the canonical parser so documents written with the
// legacy short forms keep loading; an entry with no direction at all falls
// back to increase-bad, matching how earlier tooling read these documents.
func (d *Document) normalize() error {
	for scenarioName, sb := range d.Scenarios {
		for metric, spec := range sb.Tolerances {
			if spec.Direction == "" {
				spec.Direction = tolerance.IncreaseBad
				sb.Tolerances[metric] = spec
				continue
			}
			dir, err := tolerance.ParseDirection(string(spec.Direction))
			if err != nil {
				return fmt.Errorf("scenario '%s', metric '%s': %w", scenarioName, metric, err)
			}
			spec.Direction = dir
			sb.Tolerances[metric] = spec
		}
	}
	return nil
}
