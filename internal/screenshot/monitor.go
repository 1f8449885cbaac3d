package screenshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"guardrail/internal/artifact"
	"guardrail/internal/extract"
	"guardrail/internal/revision"
)

// CaptureSummary records everything the monitor observed about one tag:
// the manifest's expectation on the left, the artifacts on disk on the
// right, and the producer's own comparison verdict in between.
type CaptureSummary struct {
	Tag              string  `json:"tag"`
	Width            int     `json:"width"`
	Height           int     `json:"height"`
	BaselinePath     string  `json:"baselinePath"`
	BaselineSHA256   string  `json:"baselineSha256"`
	Notes            string  `json:"notes,omitempty"`
	ScreenshotPath   string  `json:"screenshotPath"`
	ScreenshotSHA256 string  `json:"screenshotSha256"`
	MetricsPath      string  `json:"metricsPath"`
	DiffPath         string  `json:"diffPath"`
	MeanError        float64 `json:"meanError"`
	MaxChannelDelta  float64 `json:"maxChannelDelta"`
	Status           string  `json:"status"`
	SHA256Match      bool    `json:"sha256Match"`
}

// MonitorReport is the JSON document the monitor leaves behind for CI to
// archive when every tag checks out.
type MonitorReport struct {
	GeneratedAt      string                    `json:"generatedAt"`
	ManifestPath     string                    `json:"manifestPath"`
	ManifestRevision int                       `json:"manifestRevision"`
	ExpectedRevision *int                      `json:"expectedRevision"`
	ArtifactsDir     string                    `json:"artifactsDir"`
	Captures         map[string]CaptureSummary `json:"captures"`
}

// MonitorResult pairs the assembled report with every failure found
// across all tags.
type MonitorResult struct {
	Report   MonitorReport
	Failures []string
}

// Monitor audits the screenshot artifacts a prior check or capture run
// left behind without running any producer itself. Revision bookkeeping
// is verified first; when the marker or changelog disagrees with the
// manifest the per-tag artifacts are not worth inspecting.
func (f *Flow) Monitor() (MonitorResult, error) {
	cfg := f.opts.Config
	var result MonitorResult

	m, err := artifact.NewStore(cfg.ManifestPath).Load()
	if errors.Is(err, artifact.ErrNotFound) {
		return result, fmt.Errorf("manifest not found at %s", cfg.ManifestPath)
	}
	if err != nil {
		return result, err
	}

	checker := revision.Checker{MarkerPath: cfg.MarkerPath, ChangelogPath: cfg.ChangelogPath}
	check, err := checker.Check(m.ManifestRevision)
	if err != nil {
		return result, err
	}
	if len(check.Failures) > 0 {
		for _, failure := range check.Failures {
			result.Failures = append(result.Failures, failure.String())
		}
		return result, nil
	}

	if len(m.Captures) == 0 {
		return result, fmt.Errorf("manifest %s has no captures", cfg.ManifestPath)
	}
	tags, err := selectTags(m.Captures, f.opts.Tags)
	if err != nil {
		return result, err
	}

	result.Report = MonitorReport{
		GeneratedAt:      time.Now().UTC().Format(time.RFC3339),
		ManifestPath:     cfg.ManifestPath,
		ManifestRevision: m.ManifestRevision,
		ArtifactsDir:     cfg.ArtifactsDir,
		Captures:         make(map[string]CaptureSummary, len(tags)),
	}
	if cfg.MarkerPath != "" {
		if expected, recorded, err := revision.ReadExpected(cfg.MarkerPath); err == nil && recorded {
			result.Report.ExpectedRevision = &expected
		}
	}

	for _, tag := range tags {
		summary, failures := f.gatherCapture(tag, m.Captures[tag])
		result.Report.Captures[tag] = summary
		result.Failures = append(result.Failures, failures...)
	}

	if len(result.Failures) == 0 && cfg.ReportPath != "" {
		if err := writeReport(cfg.ReportPath, result.Report); err != nil {
			return result, err
		}
		f.logf("wrote report for %d tag(s) to %s", len(tags), cfg.ReportPath)
	}
	return result, nil
}

func (f *Flow) gatherCapture(tag string, entry artifact.Capture) (CaptureSummary, []string) {
	summary := CaptureSummary{
		Tag:            tag,
		Width:          entry.Width,
		Height:         entry.Height,
		BaselinePath:   entry.Path,
		BaselineSHA256: entry.SHA256,
		Notes:          entry.Notes,
		ScreenshotPath: f.artifactPath(tag, "_screenshot.png"),
		MetricsPath:    f.artifactPath(tag, "_metrics.json"),
		DiffPath:       f.artifactPath(tag, "_diff.png"),
	}

	var failures []string
	if _, err := os.Stat(summary.ScreenshotPath); err != nil {
		failures = append(failures, fmt.Sprintf("missing screenshot for tag '%s': %s", tag, summary.ScreenshotPath))
	}
	if _, err := os.Stat(summary.MetricsPath); err != nil {
		failures = append(failures, fmt.Sprintf("missing metrics JSON for tag '%s': %s", tag, summary.MetricsPath))
	}
	if len(failures) > 0 {
		return summary, failures
	}

	identity, err := artifact.Probe(summary.ScreenshotPath)
	if err != nil {
		return summary, append(failures, err.Error())
	}
	if identity.Width != entry.Width || identity.Height != entry.Height {
		failures = append(failures, fmt.Sprintf("screenshot size mismatch for tag '%s' (actual %dx%d, manifest %dx%d)",
			tag, identity.Width, identity.Height, entry.Width, entry.Height))
	}
	summary.ScreenshotSHA256 = identity.SHA256

	data, err := os.ReadFile(summary.MetricsPath)
	if err != nil {
		return summary, append(failures, fmt.Sprintf("missing metrics JSON for tag '%s': %s", tag, summary.MetricsPath))
	}
	root, err := extract.Decode(data)
	if err != nil {
		return summary, append(failures, fmt.Sprintf("metrics for tag '%s': %s", tag, reasonOf(err)))
	}

	if status, ok := extract.Lookup(root, "run.status"); ok {
		summary.Status, _ = status.(string)
	}
	if summary.Status != "match" && summary.Status != "captured" {
		status, _ := extract.Lookup(root, "run.status")
		failures = append(failures, fmt.Sprintf("metrics for tag '%s' report unexpected status: %v", tag, status))
	}
	summary.MeanError = lookupFloat(root, "run.mean_error")
	summary.MaxChannelDelta = lookupFloat(root, "run.max_channel_delta")

	if entry.SHA256 != "" && identity.SHA256 != entry.SHA256 {
		failures = append(failures, fmt.Sprintf("screenshot sha256 mismatch for tag '%s' (actual %s, manifest %s)",
			tag, artifact.ShortHash(identity.SHA256), artifact.ShortHash(entry.SHA256)))
	}
	summary.SHA256Match = entry.SHA256 != "" && identity.SHA256 == entry.SHA256
	return summary, failures
}

func lookupFloat(root interface{}, path string) float64 {
	value, ok := extract.Lookup(root, path)
	if !ok {
		return 0
	}
	switch v := value.(type) {
	case json.Number:
		f, _ := v.Float64()
		return f
	case float64:
		return v
	default:
		return 0
	}
}

func writeReport(path string, report MonitorReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode monitor report: %w", err)
	}
	data = append(data, '\n')
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write monitor report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to move monitor report into place: %w", err)
	}
	return nil
}
