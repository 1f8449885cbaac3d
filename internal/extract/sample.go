package extract

import "fmt"

// Sample is one extracted reading. Raw always preserves the source token
// so reports can show the value exactly as the producer emitted it; Value
// and Unit are meaningful only when Numeric is set.
type Sample struct {
	Value   float64 `json:"value,omitempty"`
	Unit    string  `json:"unit,omitempty"`
	Raw     string  `json:"raw"`
	Numeric bool    `json:"numeric"`
}

// Set maps dotted metric names to samples.
type Set map[string]Sample

// Metrics returns the flat numeric view handed to the tolerance evaluator.
// Non-numeric samples are carried for diagnostics only and never gate.
func (s Set) Metrics() map[string]float64 {
	out := make(map[string]float64, len(s))
	for name, sample := range s {
		if sample.Numeric {
			out[name] = sample.Value
		}
	}
	return out
}

// MalformedError reports producer output the extractor could not understand.
// The full captured output rides along so the operator can diagnose the
// producer without re-running it. Extraction never returns partial data as
// success.
type MalformedError struct {
	Reason string
	Output string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed producer output: %s\n--- captured output ---\n%s", e.Reason, e.Output)
}
