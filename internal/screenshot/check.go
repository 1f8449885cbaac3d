package screenshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"guardrail/internal/artifact"
	"guardrail/internal/extract"
	"guardrail/internal/launcher"
	"guardrail/internal/tolerance"
)

// CheckResult summarizes one verified screenshot comparison run.
type CheckResult struct {
	Tag              string   `json:"tag"`
	ManifestRevision int      `json:"manifestRevision"`
	BaselineSHA256   string   `json:"baselineSha256"`
	ScreenshotPath   string   `json:"screenshotPath"`
	DiffPath         string   `json:"diffPath"`
	DiffPresent      bool     `json:"diffPresent"`
	Attempts         int      `json:"attempts"`
	Failures         []string `json:"failures,omitempty"`
	Passed           bool     `json:"passed"`
}

// Check verifies the stored golden PNG against its manifest entry, runs
// the screenshot producer with the manifest identity exported through the
// environment, and reports whether a diff artifact survived. Baseline
// drift is a hard failure before the producer even runs: comparing a
// fresh capture against a golden nobody approved would make the verdict
// meaningless.
func (f *Flow) Check(ctx context.Context) (CheckResult, error) {
	cfg := f.opts.Config
	result := CheckResult{Tag: f.checkTag()}

	binary, err := launcher.Resolve(f.opts.BuildDir, cfg.Binary)
	if err != nil {
		return result, err
	}
	if _, err := os.Stat(cfg.GoldenPath); err != nil {
		return result, fmt.Errorf("baseline PNG not found: %s", cfg.GoldenPath)
	}

	m, err := artifact.NewStore(cfg.ManifestPath).Load()
	if errors.Is(err, artifact.ErrNotFound) {
		return result, fmt.Errorf("manifest missing at %s; run the capture subcommand to create or refresh it", cfg.ManifestPath)
	}
	if err != nil {
		return result, err
	}
	result.ManifestRevision = m.ManifestRevision

	entry, ok := m.Captures[result.Tag]
	if !ok {
		return result, fmt.Errorf("no manifest capture entry for tag '%s'", result.Tag)
	}
	if filepath.Clean(entry.Path) != filepath.Clean(cfg.GoldenPath) {
		return result, fmt.Errorf("baseline path %s does not match manifest entry path %s", cfg.GoldenPath, entry.Path)
	}
	if entry.Width != cfg.Width || entry.Height != cfg.Height {
		return result, fmt.Errorf("dimension mismatch for tag '%s': manifest %dx%d, requested %dx%d",
			result.Tag, entry.Width, entry.Height, cfg.Width, cfg.Height)
	}

	identity, err := artifact.Verify(result.Tag, cfg.GoldenPath, entry)
	if err != nil {
		return result, err
	}
	result.BaselineSHA256 = identity.SHA256
	f.logf("using manifest revision %d for tag '%s' (sha256=%s)",
		m.ManifestRevision, result.Tag, artifact.ShortHash(identity.SHA256))

	if err := os.MkdirAll(cfg.ArtifactsDir, 0755); err != nil {
		return result, fmt.Errorf("failed to create artifacts directory: %w", err)
	}
	result.ScreenshotPath = f.artifactPath(result.Tag, "_screenshot.png")
	result.DiffPath = f.artifactPath(result.Tag, "_diff.png")

	cmd := launcher.Command{
		Path: binary,
		Args: []string{
			fmt.Sprintf("--width=%d", cfg.Width),
			fmt.Sprintf("--height=%d", cfg.Height),
			"--screenshot=" + result.ScreenshotPath,
			"--screenshot-compare=" + cfg.GoldenPath,
			"--screenshot-diff=" + result.DiffPath,
			fmt.Sprintf("--screenshot-max-mean-error=%g", cfg.MaxMeanError),
			"--screenshot-require-present",
			"--gpu-smoke",
		},
		Env: []string{
			EnvBaselineVersion + "=" + strconv.Itoa(m.ManifestRevision),
			EnvBaselineSHA256 + "=" + identity.SHA256,
			EnvBaselineTag + "=" + result.Tag,
		},
	}

	f.logf("running: %s %s", binary, strings.Join(cmd.Args, " "))
	run, err := f.producer.Run(ctx, cmd)
	result.Attempts = run.Attempts
	if err != nil {
		return result, fmt.Errorf("screenshot producer failed: %w", err)
	}

	if _, err := os.Stat(result.DiffPath); err == nil {
		// The producer removes the diff when screenshots match; a
		// survivor is worth surfacing even though the exit code passed.
		result.DiffPresent = true
		f.logf("diff written to %s", result.DiffPath)
	} else {
		f.logf("screenshot matched baseline; no diff generated")
	}
	f.logf("screenshot written to %s", result.ScreenshotPath)

	result.Failures = f.gateMetrics(result.Tag)
	result.Passed = len(result.Failures) == 0
	return result, nil
}

// gateMetrics applies configured tolerances to the comparison metrics
// the producer reported. These metrics carry no baseline document, so
// bounds are evaluated around zero and the absolute part acts as a cap.
func (f *Flow) gateMetrics(tag string) []string {
	specs := f.opts.Config.Tolerances
	if len(specs) == 0 {
		return nil
	}

	metricsPath := f.artifactPath(tag, "_metrics.json")
	data, err := os.ReadFile(metricsPath)
	if err != nil {
		return []string{fmt.Sprintf("metrics JSON for tag '%s' missing at %s", tag, metricsPath)}
	}
	set, err := extract.FlattenJSON(data)
	if err != nil {
		return []string{fmt.Sprintf("metrics for tag '%s': %s", tag, reasonOf(err))}
	}

	zero := make(map[string]float64, len(specs))
	for name := range specs {
		zero[name] = 0
	}
	verdict := tolerance.Evaluate(zero, set.Metrics(), specs)
	failures := make([]string, 0, len(verdict.Failures))
	for _, failure := range verdict.Failures {
		failures = append(failures, failure.String())
	}
	return failures
}
