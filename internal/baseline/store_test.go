package baseline

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"guardrail/internal/tolerance"
)

// genMetrics generates random metric maps with identifier-style names.
func genMetrics() gopter.Gen {
	return gen.MapOf(gen.Identifier(), gen.Float64Range(-1e6, 1e6)).Map(func(m map[string]float64) map[string]float64 {
		if m == nil {
			return map[string]float64{}
		}
		return m
	})
}

// genSpecs generates tolerance maps mirroring the metric namespace.
func genSpecs() gopter.Gen {
	spec := gopter.CombineGens(
		gen.Bool(),
		gen.Float64Range(0, 50),
		gen.Float64Range(0, 1000),
	).Map(func(vals []interface{}) tolerance.Spec {
		direction := tolerance.IncreaseBad
		if vals[0].(bool) {
			direction = tolerance.DecreaseBad
		}
		return tolerance.Spec{
			Direction: direction,
			Percent:   vals[1].(float64),
			Absolute:  vals[2].(float64),
		}
	})
	return gen.MapOf(gen.Identifier(), spec).Map(func(m map[string]tolerance.Spec) map[string]tolerance.Spec {
		if m == nil {
			return map[string]tolerance.Spec{}
		}
		return m
	})
}

// TestDocumentRoundTrip verifies that saving a baseline then loading it
// reproduces the exact metric map and tolerance specs.
func TestDocumentRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("save then load preserves metrics and tolerances", prop.ForAll(
		func(name string, metrics map[string]float64, specs map[string]tolerance.Spec) bool {
			tmpDir, err := os.MkdirTemp("", "baseline-test-*")
			if err != nil {
				return false
			}
			defer os.RemoveAll(tmpDir)

			store := NewStore(filepath.Join(tmpDir, "performance_baseline.json"))

			doc := Document{
				GeneratedAt: time.Now().UTC().Truncate(time.Second),
				Scenarios: map[string]ScenarioBaseline{
					name: {Metrics: metrics, Tolerances: specs},
				},
			}
			if err := store.Save(doc); err != nil {
				return false
			}

			loaded, err := store.Load()
			if err != nil {
				return false
			}
			sb, ok := loaded.Scenarios[name]
			if !ok {
				return false
			}
			if len(sb.Metrics) != len(metrics) {
				return false
			}
			for k, v := range metrics {
				if sb.Metrics[k] != v {
					return false
				}
			}
			if len(sb.Tolerances) != len(specs) {
				return false
			}
			for k, v := range specs {
				if sb.Tolerances[k] != v {
					return false
				}
			}
			return loaded.GeneratedAt.Equal(doc.GeneratedAt)
		},
		gen.Identifier(),
		genMetrics(),
		genSpecs(),
	))

	properties.TestingRun(t)
}

// TestLoadNotFound verifies a missing document is reported as ErrNotFound,
// never as a parse failure.
func TestLoadNotFound(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "baseline-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	store := NewStore(filepath.Join(tmpDir, "missing.json"))
	_, err = store.Load()
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// TestLoadMalformedIsHardFailure verifies a corrupt document is distinct
// from a missing one.
func TestLoadMalformedIsHardFailure(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "baseline-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, "broken.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	store := NewStore(path)
	_, err = store.Load()
	if err == nil {
		t.Fatal("expected parse error")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("malformed document must not be reported as not-found")
	}
}

// TestLoadNormalizesLegacyDirections verifies documents written with the
// short direction forms still load, and a blank direction defaults to
// increase-bad.
func TestLoadNormalizesLegacyDirections(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "baseline-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, "legacy.json")
	legacy := `{
		"generatedAt": "2026-01-10T12:00:00Z",
		"scenarios": {
			"path_renderer2d": {
				"metrics": {"full.avgMs": 3.2, "full.fps": 312.5, "full.frames": 120},
				"tolerances": {
					"full.avgMs": {"direction": "increase", "percent": 15, "absolute": 1.5},
					"full.fps": {"direction": "decrease", "percent": 15},
					"full.frames": {"percent": 5}
				}
			}
		}
	}`
	if err := os.WriteFile(path, []byte(legacy), 0644); err != nil {
		t.Fatal(err)
	}

	doc, err := NewStore(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	specs := doc.Scenarios["path_renderer2d"].Tolerances
	if specs["full.avgMs"].Direction != tolerance.IncreaseBad {
		t.Errorf("increase alias: %q", specs["full.avgMs"].Direction)
	}
	if specs["full.fps"].Direction != tolerance.DecreaseBad {
		t.Errorf("decrease alias: %q", specs["full.fps"].Direction)
	}
	if specs["full.frames"].Direction != tolerance.IncreaseBad {
		t.Errorf("blank direction default: %q", specs["full.frames"].Direction)
	}
}

// TestLoadRejectsUnknownDirection verifies junk directions fail validation
// with the scenario and metric named.
func TestLoadRejectsUnknownDirection(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "baseline-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, "junk.json")
	doc := `{"generatedAt":"2026-01-10T12:00:00Z","scenarios":{"s":{"metrics":{"m":1},"tolerances":{"m":{"direction":"sideways"}}}}}`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	_, err = NewStore(path).Load()
	if err == nil {
		t.Fatal("expected validation error")
	}
}

// TestSaveIsAtomic verifies no temp file survives a successful save and
// the parent directory is created on demand.
func TestSaveIsAtomic(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "baseline-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, "docs", "perf", "performance_baseline.json")
	store := NewStore(path)

	doc := NewDocument()
	doc.Scenarios["s"] = ScenarioBaseline{Metrics: map[string]float64{"m": 1.0}}
	if err := store.Save(doc); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("document missing after save: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind after save")
	}
}
