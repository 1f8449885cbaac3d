package tolerance

import "sort"

// Merge overlays document-embedded tolerance specs on scenario defaults.
// Document entries win per metric; neither input map is modified.
func Merge(defaults, overrides map[string]Spec) map[string]Spec {
	merged := make(map[string]Spec, len(defaults)+len(overrides))
	for name, spec := range defaults {
		merged[name] = spec
	}
	for name, spec := range overrides {
		merged[name] = spec
	}
	return merged
}

// Evaluate compares fresh metric values against a baseline map under the
// given tolerance specs. Every metric the baseline tracks is checked and
// every failure is collected (no short-circuit), so one run reports the
// complete set of regressions. Metrics absent from the baseline are
// ignored: only a write-baseline run can start tracking a new metric.
//
// A baseline metric missing from the fresh map always fails; a baseline
// metric with no spec (or a spec whose direction never validated) fails as
// a configuration problem, distinct from a measured regression.
func Evaluate(baseline, fresh map[string]float64, specs map[string]Spec) Result {
	result := Result{
		Passed:   true,
		Failures: []Failure{},
	}

	// Sort tracked metric names for deterministic report ordering
	names := make([]string, 0, len(baseline))
	for name := range baseline {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		base := baseline[name]

		spec, configured := specs[name]
		if !configured {
			result.Failures = append(result.Failures, Failure{
				Metric:   name,
				Kind:     KindUnconfigured,
				Baseline: base,
			})
			continue
		}

		value, present := fresh[name]
		if !present {
			result.Failures = append(result.Failures, Failure{
				Metric:   name,
				Kind:     KindMissing,
				Baseline: base,
			})
			continue
		}

		allowed := spec.Allowed(base)
		switch spec.Direction {
		case IncreaseBad:
			limit := base + allowed
			if value > limit {
				result.Failures = append(result.Failures, Failure{
					Metric:   name,
					Kind:     KindRegressed,
					Baseline: base,
					Fresh:    value,
					Limit:    limit,
				})
			}
		case DecreaseBad:
			limit := base - allowed
			if value < limit {
				result.Failures = append(result.Failures, Failure{
					Metric:   name,
					Kind:     KindDropped,
					Baseline: base,
					Fresh:    value,
					Limit:    limit,
				})
			}
		default:
			// Loaders reject unknown directions up front; a spec that
			// slipped through anyway is not a usable policy.
			result.Failures = append(result.Failures, Failure{
				Metric:   name,
				Kind:     KindUnconfigured,
				Baseline: base,
			})
		}
	}

	result.Passed = len(result.Failures) == 0
	return result
}
