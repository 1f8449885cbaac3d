package screenshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"guardrail/internal/artifact"
	"guardrail/internal/revision"
	"guardrail/internal/scenario"
)

// newMonitorConfig lays out the aftermath of a healthy check run: a
// manifest at revision 4 with marker and changelog in agreement, plus
// the screenshot and metrics artifacts for the laptop tag.
func newMonitorConfig(t *testing.T) scenario.ScreenshotConfig {
	t.Helper()
	root := t.TempDir()
	cfg := scenario.ScreenshotConfig{
		Binary:        "paint_example",
		ManifestPath:  filepath.Join(root, "images", "paint_example_baselines.json"),
		MarkerPath:    filepath.Join(root, "images", "paint_example_manifest_revision.txt"),
		ChangelogPath: filepath.Join(root, "images", "paint_example_palette_log.md"),
		ArtifactsDir:  filepath.Join(root, "artifacts"),
		ReportPath:    filepath.Join(root, "test-logs", "monitor_report.json"),
		Width:         1280,
		Height:        800,
	}

	screenshot := filepath.Join(cfg.ArtifactsDir, "paint_example_1280x800_screenshot.png")
	writePNG(t, screenshot, 1280, 800, "fresh pixels")
	writeMetrics(t, cfg, "1280x800", `{"run": {"status": "match", "mean_error": 0.0001, "max_channel_delta": 2}}`)

	manifest := artifact.Manifest{
		ManifestRevision: 4,
		Captures: map[string]artifact.Capture{
			"1280x800": {
				Path:     filepath.Join(root, "images", "paint_example_baseline.png"),
				Width:    1280,
				Height:   800,
				SHA256:   hashOf(t, screenshot),
				Revision: 2,
				Notes:    "laptop default",
			},
		},
	}
	if err := artifact.NewStore(cfg.ManifestPath).Save(manifest); err != nil {
		t.Fatal(err)
	}
	if err := revision.WriteExpected(cfg.MarkerPath, 4); err != nil {
		t.Fatal(err)
	}
	changelog := "# Palette log\n\n## Revision 4\n- refreshed laptop baseline\n"
	if err := os.WriteFile(cfg.ChangelogPath, []byte(changelog), 0644); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func writeMetrics(t *testing.T, cfg scenario.ScreenshotConfig, tag, document string) {
	t.Helper()
	path := filepath.Join(cfg.ArtifactsDir, "paint_example_"+tag+"_metrics.json")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(document), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestMonitorHappyPath(t *testing.T) {
	cfg := newMonitorConfig(t)

	result, err := New(Options{Config: cfg}).Monitor()
	if err != nil {
		t.Fatalf("Monitor: %v", err)
	}
	if len(result.Failures) != 0 {
		t.Fatalf("failures = %v", result.Failures)
	}

	report := result.Report
	if report.ManifestRevision != 4 || report.GeneratedAt == "" {
		t.Errorf("report header: %+v", report)
	}
	if report.ExpectedRevision == nil || *report.ExpectedRevision != 4 {
		t.Errorf("expectedRevision = %v, want 4", report.ExpectedRevision)
	}
	summary := report.Captures["1280x800"]
	if summary.Status != "match" || !summary.SHA256Match {
		t.Errorf("summary = %+v", summary)
	}
	if summary.MeanError != 0.0001 || summary.MaxChannelDelta != 2 {
		t.Errorf("producer metrics not carried: %+v", summary)
	}
	if summary.ScreenshotSHA256 != summary.BaselineSHA256 {
		t.Errorf("hashes disagree: %+v", summary)
	}

	data, err := os.ReadFile(cfg.ReportPath)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	var persisted MonitorReport
	if err := json.Unmarshal(data, &persisted); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if persisted.ManifestRevision != 4 || len(persisted.Captures) != 1 {
		t.Errorf("persisted report: %+v", persisted)
	}
}

func TestMonitorAcceptsCapturedStatus(t *testing.T) {
	cfg := newMonitorConfig(t)
	writeMetrics(t, cfg, "1280x800", `{"run": {"status": "captured", "mean_error": 0, "max_channel_delta": 0}}`)

	result, err := New(Options{Config: cfg}).Monitor()
	if err != nil {
		t.Fatalf("Monitor: %v", err)
	}
	if len(result.Failures) != 0 {
		t.Errorf("failures = %v", result.Failures)
	}
}

func TestMonitorMarkerMismatchSkipsArtifactAudit(t *testing.T) {
	cfg := newMonitorConfig(t)
	if err := revision.WriteExpected(cfg.MarkerPath, 3); err != nil {
		t.Fatal(err)
	}

	result, err := New(Options{Config: cfg}).Monitor()
	if err != nil {
		t.Fatalf("Monitor: %v", err)
	}
	want := fmt.Sprintf("manifest revision 4 does not match expected revision 3 recorded in %s", cfg.MarkerPath)
	if len(result.Failures) != 1 || result.Failures[0] != want {
		t.Fatalf("failures = %v, want [%q]", result.Failures, want)
	}
	if len(result.Report.Captures) != 0 {
		t.Error("per-tag audit ran despite revision mismatch")
	}
	if _, err := os.Stat(cfg.ReportPath); !os.IsNotExist(err) {
		t.Error("report written despite failures")
	}
}

func TestMonitorMissingChangelogEntry(t *testing.T) {
	cfg := newMonitorConfig(t)
	stale := "# Palette log\n\n## Revision 3\n- earlier refresh\n"
	if err := os.WriteFile(cfg.ChangelogPath, []byte(stale), 0644); err != nil {
		t.Fatal(err)
	}

	result, err := New(Options{Config: cfg}).Monitor()
	if err != nil {
		t.Fatalf("Monitor: %v", err)
	}
	want := fmt.Sprintf("changelog %s has no '## Revision 4' entry for the current manifest revision", cfg.ChangelogPath)
	if len(result.Failures) != 1 || result.Failures[0] != want {
		t.Fatalf("failures = %v, want [%q]", result.Failures, want)
	}
}

func TestMonitorCollectsAllTagFailures(t *testing.T) {
	cfg := newMonitorConfig(t)

	store := artifact.NewStore(cfg.ManifestPath)
	m, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	m.Captures["2560x1440"] = artifact.Capture{
		Path:   filepath.Join(filepath.Dir(cfg.ManifestPath), "paint_example_wide.png"),
		Width:  2560,
		Height: 1440,
	}
	if err := store.Save(m); err != nil {
		t.Fatal(err)
	}

	result, err := New(Options{Config: cfg}).Monitor()
	if err != nil {
		t.Fatalf("Monitor: %v", err)
	}
	if len(result.Failures) != 2 {
		t.Fatalf("failures = %v, want missing screenshot and missing metrics", result.Failures)
	}
	for i, fragment := range []string{"missing screenshot for tag '2560x1440'", "missing metrics JSON for tag '2560x1440'"} {
		if !strings.Contains(result.Failures[i], fragment) {
			t.Errorf("failures[%d] = %q, want %q", i, result.Failures[i], fragment)
		}
	}
	if len(result.Report.Captures) != 2 {
		t.Errorf("healthy tag missing from report: %+v", result.Report.Captures)
	}
	if _, err := os.Stat(cfg.ReportPath); !os.IsNotExist(err) {
		t.Error("report written despite failures")
	}
}

func TestMonitorFlagsUnexpectedStatus(t *testing.T) {
	cfg := newMonitorConfig(t)
	writeMetrics(t, cfg, "1280x800", `{"run": {"status": "mismatch", "mean_error": 0.9, "max_channel_delta": 200}}`)

	result, err := New(Options{Config: cfg}).Monitor()
	if err != nil {
		t.Fatalf("Monitor: %v", err)
	}
	want := "metrics for tag '1280x800' report unexpected status: mismatch"
	if len(result.Failures) != 1 || result.Failures[0] != want {
		t.Fatalf("failures = %v, want [%q]", result.Failures, want)
	}
}

func TestMonitorFlagsHashDrift(t *testing.T) {
	cfg := newMonitorConfig(t)

	store := artifact.NewStore(cfg.ManifestPath)
	m, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	entry := m.Captures["1280x800"]
	entry.SHA256 = strings.Repeat("ab", 32)
	m.Captures["1280x800"] = entry
	if err := store.Save(m); err != nil {
		t.Fatal(err)
	}

	result, err := New(Options{Config: cfg}).Monitor()
	if err != nil {
		t.Fatalf("Monitor: %v", err)
	}
	if len(result.Failures) != 1 || !strings.Contains(result.Failures[0], "screenshot sha256 mismatch for tag '1280x800'") {
		t.Fatalf("failures = %v", result.Failures)
	}
	if result.Report.Captures["1280x800"].SHA256Match {
		t.Error("sha256Match reported true for drifted screenshot")
	}
}

func TestMonitorUnknownTag(t *testing.T) {
	cfg := newMonitorConfig(t)

	_, err := New(Options{Config: cfg, Tags: []string{"microscope"}}).Monitor()
	if err == nil || err.Error() != "unknown manifest tags: microscope" {
		t.Fatalf("error = %v", err)
	}
}
