package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"guardrail/internal/tolerance"
)

// SizeTarget names one binary tracked by the size guardrail.
type SizeTarget struct {
	Name         string
	RelativePath string
}

// SizeConfig drives the binary size guardrail.
type SizeConfig struct {
	BaselinePath  string
	Percent       float64
	AbsoluteBytes int64
	Targets       []SizeTarget
}

// ScreenshotConfig drives the screenshot check, capture, and monitor
// flows. Tolerances optionally gate the comparison metrics the producer
// reports (run.mean_error, run.max_channel_delta); absolute bounds act
// as hard caps since these metrics have no baseline document.
type ScreenshotConfig struct {
	Binary        string
	ManifestPath  string
	MarkerPath    string
	ChangelogPath string
	GoldenPath    string
	ArtifactsDir  string
	ReportPath    string
	Width         int
	Height        int
	MaxMeanError  float64
	Tolerances    map[string]tolerance.Spec
}

// Config is the resolved tool configuration: built-in defaults overlaid
// with guardrail.yaml. Plain data, no global state.
type Config struct {
	BuildDir     string
	BaselinePath string
	BuildCommand []string
	Scenarios    []Scenario
	Size         SizeConfig
	Screenshot   ScreenshotConfig
}

// Defaults returns the configuration used when no config file is given.
// Paths mirror the repository layout the producers live in.
func Defaults() Config {
	return Config{
		BuildDir:     "build",
		BaselinePath: filepath.Join("docs", "perf", "performance_baseline.json"),
		Scenarios:    Builtin(),
		Size: SizeConfig{
			BaselinePath:  filepath.Join("docs", "perf", "binary_size_baseline.json"),
			Percent:       5.0,
			AbsoluteBytes: 262144,
		},
		Screenshot: ScreenshotConfig{
			Binary:        "paint_example",
			ManifestPath:  filepath.Join("docs", "images", "paint_example_baselines.json"),
			MarkerPath:    filepath.Join("docs", "images", "paint_example_manifest_revision.txt"),
			ChangelogPath: filepath.Join("docs", "images", "paint_example_palette_log.md"),
			GoldenPath:    filepath.Join("docs", "images", "paint_example_baseline.png"),
			ArtifactsDir:  filepath.Join("build", "artifacts", "paint_example"),
			ReportPath:    filepath.Join("build", "test-logs", "paint_example", "monitor_report.json"),
			Width:         1280,
			Height:        800,
			MaxMeanError:  0.0015,
		},
	}
}

// configFile mirrors the guardrail.yaml structure.
type configFile struct {
	BuildDir     string                      `yaml:"buildDir,omitempty"`
	Baseline     string                      `yaml:"baseline,omitempty"`
	BuildCommand []string                    `yaml:"buildCommand,omitempty"`
	Scenarios    map[string]scenarioOverride `yaml:"scenarios,omitempty"`
	Size         *sizeSection                `yaml:"size,omitempty"`
	Screenshot   *screenshotSection          `yaml:"screenshot,omitempty"`
}

// scenarioOverride adjusts one built-in scenario.
type scenarioOverride struct {
	Args       []string                  `yaml:"args,omitempty"`
	Timeout    string                    `yaml:"timeout,omitempty"`
	Tolerances map[string]toleranceEntry `yaml:"tolerances,omitempty"`
}

// toleranceEntry is a single tolerance in YAML form.
type toleranceEntry struct {
	Direction string  `yaml:"direction,omitempty"`
	Percent   float64 `yaml:"percent,omitempty"`
	Absolute  float64 `yaml:"absolute,omitempty"`
}

// sizeSection overrides the size guardrail settings.
type sizeSection struct {
	Baseline      string            `yaml:"baseline,omitempty"`
	Percent       *float64          `yaml:"percent,omitempty"`
	AbsoluteBytes *int64            `yaml:"absoluteBytes,omitempty"`
	Targets       []sizeTargetEntry `yaml:"targets,omitempty"`
}

type sizeTargetEntry struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// screenshotSection overrides the screenshot flow settings.
type screenshotSection struct {
	Binary       string                    `yaml:"binary,omitempty"`
	Manifest     string                    `yaml:"manifest,omitempty"`
	Marker       string                    `yaml:"marker,omitempty"`
	Changelog    string                    `yaml:"changelog,omitempty"`
	Golden       string                    `yaml:"golden,omitempty"`
	ArtifactsDir string                    `yaml:"artifactsDir,omitempty"`
	Report       string                    `yaml:"report,omitempty"`
	Width        int                       `yaml:"width,omitempty"`
	Height       int                       `yaml:"height,omitempty"`
	MaxMeanError *float64                  `yaml:"maxMeanError,omitempty"`
	Tolerances   map[string]toleranceEntry `yaml:"tolerances,omitempty"`
}

// ParseConfig overlays YAML content on the defaults, validating every
// override before it lands.
func ParseConfig(content []byte) (Config, error) {
	var cf configFile
	if err := yaml.Unmarshal(content, &cf); err != nil {
		return Config{}, fmt.Errorf("invalid YAML: %w", err)
	}

	cfg := Defaults()
	if cf.BuildDir != "" {
		cfg.BuildDir = cf.BuildDir
	}
	if cf.Baseline != "" {
		cfg.BaselinePath = cf.Baseline
	}
	if len(cf.BuildCommand) > 0 {
		cfg.BuildCommand = cf.BuildCommand
	}

	for name, override := range cf.Scenarios {
		idx := -1
		for i, sc := range cfg.Scenarios {
			if sc.Name == name {
				idx = i
				break
			}
		}
		if idx < 0 {
			return Config{}, fmt.Errorf("unknown scenario '%s' in config", name)
		}

		sc := cfg.Scenarios[idx]
		if len(override.Args) > 0 {
			sc.Args = override.Args
		}
		if override.Timeout != "" {
			timeout, err := time.ParseDuration(override.Timeout)
			if err != nil {
				return Config{}, fmt.Errorf("scenario '%s': invalid timeout '%s': %w", name, override.Timeout, err)
			}
			if timeout <= 0 {
				return Config{}, fmt.Errorf("scenario '%s': timeout must be positive", name)
			}
			sc.Timeout = timeout
		}
		if len(override.Tolerances) > 0 {
			specs := make(map[string]tolerance.Spec, len(sc.Tolerances)+len(override.Tolerances))
			for metric, spec := range sc.Tolerances {
				specs[metric] = spec
			}
			for metric, entry := range override.Tolerances {
				spec, err := entry.toSpec()
				if err != nil {
					return Config{}, fmt.Errorf("scenario '%s', metric '%s': %w", name, metric, err)
				}
				specs[metric] = spec
			}
			sc.Tolerances = specs
		}
		cfg.Scenarios[idx] = sc
	}

	if cf.Size != nil {
		if cf.Size.Baseline != "" {
			cfg.Size.BaselinePath = cf.Size.Baseline
		}
		if cf.Size.Percent != nil {
			if *cf.Size.Percent < 0 {
				return Config{}, fmt.Errorf("size tolerance percent must not be negative")
			}
			cfg.Size.Percent = *cf.Size.Percent
		}
		if cf.Size.AbsoluteBytes != nil {
			if *cf.Size.AbsoluteBytes < 0 {
				return Config{}, fmt.Errorf("size tolerance absoluteBytes must not be negative")
			}
			cfg.Size.AbsoluteBytes = *cf.Size.AbsoluteBytes
		}
		for i, target := range cf.Size.Targets {
			if target.Name == "" || target.Path == "" {
				return Config{}, fmt.Errorf("size target at index %d: both name and path are required", i)
			}
			cfg.Size.Targets = append(cfg.Size.Targets, SizeTarget{
				Name:         target.Name,
				RelativePath: target.Path,
			})
		}
	}

	if cf.Screenshot != nil {
		sec := cf.Screenshot
		if sec.Binary != "" {
			cfg.Screenshot.Binary = sec.Binary
		}
		if sec.Manifest != "" {
			cfg.Screenshot.ManifestPath = sec.Manifest
		}
		if sec.Marker != "" {
			cfg.Screenshot.MarkerPath = sec.Marker
		}
		if sec.Changelog != "" {
			cfg.Screenshot.ChangelogPath = sec.Changelog
		}
		if sec.Golden != "" {
			cfg.Screenshot.GoldenPath = sec.Golden
		}
		if sec.ArtifactsDir != "" {
			cfg.Screenshot.ArtifactsDir = sec.ArtifactsDir
		}
		if sec.Report != "" {
			cfg.Screenshot.ReportPath = sec.Report
		}
		if sec.Width != 0 {
			if sec.Width < 0 {
				return Config{}, fmt.Errorf("screenshot width must be positive")
			}
			cfg.Screenshot.Width = sec.Width
		}
		if sec.Height != 0 {
			if sec.Height < 0 {
				return Config{}, fmt.Errorf("screenshot height must be positive")
			}
			cfg.Screenshot.Height = sec.Height
		}
		if sec.MaxMeanError != nil {
			if *sec.MaxMeanError < 0 {
				return Config{}, fmt.Errorf("screenshot maxMeanError must not be negative")
			}
			cfg.Screenshot.MaxMeanError = *sec.MaxMeanError
		}
		if len(sec.Tolerances) > 0 {
			specs := make(map[string]tolerance.Spec, len(sec.Tolerances))
			for metric, entry := range sec.Tolerances {
				spec, err := entry.toSpec()
				if err != nil {
					return Config{}, fmt.Errorf("screenshot tolerance '%s': %w", metric, err)
				}
				specs[metric] = spec
			}
			cfg.Screenshot.Tolerances = specs
		}
	}

	return cfg, nil
}

// toSpec validates a YAML tolerance entry into a domain spec.
func (e toleranceEntry) toSpec() (tolerance.Spec, error) {
	direction := tolerance.IncreaseBad
	if e.Direction != "" {
		parsed, err := tolerance.ParseDirection(e.Direction)
		if err != nil {
			return tolerance.Spec{}, err
		}
		direction = parsed
	}
	if e.Percent < 0 {
		return tolerance.Spec{}, fmt.Errorf("percent must not be negative")
	}
	if e.Absolute < 0 {
		return tolerance.Spec{}, fmt.Errorf("absolute must not be negative")
	}
	return tolerance.Spec{Direction: direction, Percent: e.Percent, Absolute: e.Absolute}, nil
}

// LoadConfig reads guardrail.yaml from the given path. An empty path
// returns the defaults; a missing file at an explicit path is an error.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Defaults(), nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := ParseConfig(content)
	if err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}
