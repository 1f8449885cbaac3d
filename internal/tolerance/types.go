package tolerance

import (
	"fmt"
	"math"
)

// Direction states which way a metric is allowed to drift.
type Direction string

const (
	IncreaseBad Direction = "increase-bad" // larger values are regressions (latency, bytes)
	DecreaseBad Direction = "decrease-bad" // smaller values are regressions (fps, throughput)
)

// ParseDirection normalizes a direction string from a baseline or config
// document. Earlier tooling wrote the short forms "increase" and "decrease";
// they are accepted as aliases.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case string(IncreaseBad), "increase":
		return IncreaseBad, nil
	case string(DecreaseBad), "decrease":
		return DecreaseBad, nil
	}
	return "", fmt.Errorf("unsupported tolerance direction '%s' (want increase-bad or decrease-bad)", s)
}

// Spec bounds how far one metric may drift from its baseline value.
// Percent and Absolute may each be zero; the allowed deviation is the wider
// of the two bounds, so a zero pair tolerates no drift in the bad direction.
type Spec struct {
	Direction Direction `json:"direction"`
	Percent   float64   `json:"percent,omitempty"`
	Absolute  float64   `json:"absolute,omitempty"`
}

// Allowed returns the deviation tolerated around the given baseline value:
// the maximum of the percent-derived band and the absolute floor.
func (s Spec) Allowed(baseline float64) float64 {
	byPercent := math.Abs(baseline) * (s.Percent / 100.0)
	byAbsolute := math.Abs(s.Absolute)
	if byPercent > byAbsolute {
		return byPercent
	}
	return byAbsolute
}

// FailureKind classifies why a metric failed its guardrail.
type FailureKind string

const (
	KindRegressed    FailureKind = "regressed"      // value rose past the allowed band
	KindDropped      FailureKind = "dropped"        // value fell past the allowed band
	KindMissing      FailureKind = "missing-metric" // baseline tracks a metric the fresh run did not emit
	KindUnconfigured FailureKind = "no-tolerance"   // tracked metric has no usable policy anywhere
)

// Failure records one metric that did not clear its guardrail.
// Limit is the boundary value the fresh measurement crossed.
type Failure struct {
	Metric   string      `json:"metric"`
	Kind     FailureKind `json:"kind"`
	Baseline float64     `json:"baseline"`
	Fresh    float64     `json:"fresh,omitempty"`
	Limit    float64     `json:"limit,omitempty"`
}

// String renders the failure the way it appears in guardrail logs.
func (f Failure) String() string {
	switch f.Kind {
	case KindRegressed:
		return fmt.Sprintf("%s regressed (baseline %.4f, actual %.4f, limit %.4f)", f.Metric, f.Baseline, f.Fresh, f.Limit)
	case KindDropped:
		return fmt.Sprintf("%s dropped (baseline %.4f, actual %.4f, limit %.4f)", f.Metric, f.Baseline, f.Fresh, f.Limit)
	case KindMissing:
		return fmt.Sprintf("missing metric '%s' in current run", f.Metric)
	case KindUnconfigured:
		return fmt.Sprintf("no tolerance configured for '%s'", f.Metric)
	}
	return fmt.Sprintf("%s failed (%s)", f.Metric, f.Kind)
}

// Result is the verdict for one scenario's metric set.
type Result struct {
	Passed   bool      `json:"passed"`
	Failures []Failure `json:"failures"`
}
