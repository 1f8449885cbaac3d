package screenshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"testing"

	"guardrail/internal/artifact"
	"guardrail/internal/launcher"
	"guardrail/internal/revision"
	"guardrail/internal/scenario"
)

// newCaptureConfig registers two stale golden entries plus a marker
// path, the layout the capture flow is expected to refresh.
func newCaptureConfig(t *testing.T) (scenario.ScreenshotConfig, string) {
	t.Helper()
	buildDir := t.TempDir()
	writeExecutable(t, filepath.Join(buildDir, "paint_example"))

	root := t.TempDir()
	cfg := scenario.ScreenshotConfig{
		Binary:       "paint_example",
		ManifestPath: filepath.Join(root, "images", "paint_example_baselines.json"),
		MarkerPath:   filepath.Join(root, "images", "paint_example_manifest_revision.txt"),
		ArtifactsDir: filepath.Join(root, "artifacts"),
		Width:        1280,
		Height:       800,
	}
	manifest := artifact.Manifest{
		ManifestRevision: 7,
		Captures: map[string]artifact.Capture{
			"1280x800": {
				Path:     filepath.Join(root, "images", "baseline_1280x800.png"),
				Width:    1280,
				Height:   800,
				SHA256:   "stale",
				Revision: 3,
			},
			"2560x1440": {
				Path:     filepath.Join(root, "images", "baseline_2560x1440.png"),
				Width:    2560,
				Height:   1440,
				SHA256:   "stale",
				Revision: 5,
			},
		},
	}
	if err := artifact.NewStore(cfg.ManifestPath).Save(manifest); err != nil {
		t.Fatal(err)
	}
	return cfg, buildDir
}

// captureRunner answers git with a fixed commit and has every producer
// write a PNG with the dimensions its argv requested.
func captureRunner(t *testing.T) *scriptedRunner {
	t.Helper()
	return &scriptedRunner{handler: func(cmd launcher.Command) (launcher.RunResult, error) {
		if cmd.Path == "git" {
			return launcher.RunResult{Stdout: "abc123def\n"}, nil
		}
		var target string
		width, height := 0, 0
		for _, arg := range cmd.Args {
			switch {
			case strings.HasPrefix(arg, "--screenshot="):
				target = strings.TrimPrefix(arg, "--screenshot=")
			case strings.HasPrefix(arg, "--width="):
				width, _ = strconv.Atoi(strings.TrimPrefix(arg, "--width="))
			case strings.HasPrefix(arg, "--height="):
				height, _ = strconv.Atoi(strings.TrimPrefix(arg, "--height="))
			}
		}
		writePNG(t, target, uint32(width), uint32(height), target)
		return launcher.RunResult{}, nil
	}}
}

func loadManifest(t *testing.T, path string) artifact.Manifest {
	t.Helper()
	m, err := artifact.NewStore(path).Load()
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestCaptureRefreshesManifestEntries(t *testing.T) {
	cfg, buildDir := newCaptureConfig(t)
	runner := captureRunner(t)

	flow := New(Options{
		Config:    cfg,
		BuildDir:  buildDir,
		Notes:     "refreshed after brush rework",
		ExtraArgs: []string{"--tile-stats"},
		Runner:    runner,
	})
	if err := flow.Capture(context.Background()); err != nil {
		t.Fatalf("Capture: %v", err)
	}

	m := loadManifest(t, cfg.ManifestPath)
	if m.ManifestRevision != 8 {
		t.Errorf("manifest revision = %d, want 8", m.ManifestRevision)
	}
	laptop := m.Captures["1280x800"]
	if laptop.Revision != 4 || laptop.Commit != "abc123def" || laptop.Notes != "refreshed after brush rework" {
		t.Errorf("laptop entry not refreshed: %+v", laptop)
	}
	if laptop.SHA256 != hashOf(t, laptop.Path) {
		t.Errorf("laptop sha256 = %s", laptop.SHA256)
	}
	if laptop.CapturedAt.IsZero() {
		t.Error("capturedAt not stamped")
	}
	if wide := m.Captures["2560x1440"]; wide.Revision != 6 {
		t.Errorf("wide entry revision = %d, want 6", wide.Revision)
	}

	if expected, recorded, err := revision.ReadExpected(cfg.MarkerPath); err != nil || !recorded || expected != 8 {
		t.Errorf("marker = (%d, %v, %v), want (8, true, nil)", expected, recorded, err)
	}

	if runner.commands[0].Path != "git" || !reflect.DeepEqual(runner.commands[0].Args, []string{"rev-parse", "HEAD"}) {
		t.Errorf("first command = %+v, want git rev-parse HEAD", runner.commands[0])
	}
	producers := producerCommands(runner.commands)
	if len(producers) != 2 {
		t.Fatalf("producer launches = %d, want 2", len(producers))
	}
	wantArgs := []string{
		"--width=1280",
		"--height=800",
		"--screenshot=" + laptop.Path,
		"--screenshot-require-present",
		"--gpu-smoke",
		"--tile-stats",
	}
	if !reflect.DeepEqual(producers[0].Args, wantArgs) {
		t.Errorf("producer args:\n got %v\nwant %v", producers[0].Args, wantArgs)
	}
	if !reflect.DeepEqual(producers[0].Env, []string{"PAINT_EXAMPLE_BASELINE_TAG=1280x800"}) {
		t.Errorf("producer env = %v", producers[0].Env)
	}
}

func TestCaptureDryRunTouchesNothing(t *testing.T) {
	cfg, buildDir := newCaptureConfig(t)
	runner := captureRunner(t)

	flow := New(Options{Config: cfg, BuildDir: buildDir, DryRun: true, Runner: runner})
	if err := flow.Capture(context.Background()); err != nil {
		t.Fatalf("Capture: %v", err)
	}

	if producers := producerCommands(runner.commands); len(producers) != 0 {
		t.Errorf("dry run launched producers: %v", producers)
	}
	if len(runner.commands) != 1 {
		t.Errorf("dry run should still resolve the commit, got commands %v", runner.commands)
	}
	m := loadManifest(t, cfg.ManifestPath)
	if m.ManifestRevision != 7 || m.Captures["1280x800"].SHA256 != "stale" {
		t.Errorf("dry run modified the manifest: %+v", m)
	}
	if _, err := os.Stat(cfg.MarkerPath); !os.IsNotExist(err) {
		t.Error("dry run wrote the revision marker")
	}
}

func TestCaptureUnknownTags(t *testing.T) {
	cfg, buildDir := newCaptureConfig(t)

	flow := New(Options{Config: cfg, BuildDir: buildDir, Tags: []string{"microscope"}, Runner: captureRunner(t)})
	err := flow.Capture(context.Background())
	if err == nil || err.Error() != "unknown manifest tags: microscope" {
		t.Fatalf("error = %v", err)
	}
}

func TestCaptureRejectsWrongSize(t *testing.T) {
	cfg, buildDir := newCaptureConfig(t)
	runner := &scriptedRunner{handler: func(cmd launcher.Command) (launcher.RunResult, error) {
		if cmd.Path == "git" {
			return launcher.RunResult{Stdout: "abc123def\n"}, nil
		}
		for _, arg := range cmd.Args {
			if strings.HasPrefix(arg, "--screenshot=") {
				writePNG(t, strings.TrimPrefix(arg, "--screenshot="), 64, 64, "shrunk")
			}
		}
		return launcher.RunResult{}, nil
	}}

	flow := New(Options{Config: cfg, BuildDir: buildDir, Runner: runner})
	err := flow.Capture(context.Background())
	if err == nil || !strings.Contains(err.Error(), "produced 64x64, expected 1280x800") {
		t.Fatalf("error = %v", err)
	}
	if m := loadManifest(t, cfg.ManifestPath); m.ManifestRevision != 7 {
		t.Errorf("failed capture advanced the manifest to %d", m.ManifestRevision)
	}
}

func TestCaptureStopsOnProducerFailure(t *testing.T) {
	cfg, buildDir := newCaptureConfig(t)
	runner := &scriptedRunner{handler: func(cmd launcher.Command) (launcher.RunResult, error) {
		if cmd.Path == "git" {
			return launcher.RunResult{Stdout: "abc123def\n"}, nil
		}
		return launcher.RunResult{ExitCode: 5, Stderr: "device lost"},
			&launcher.ProcessError{Path: cmd.Path, ExitCode: 5, Stderr: "device lost"}
	}}

	flow := New(Options{Config: cfg, BuildDir: buildDir, Runner: runner})
	err := flow.Capture(context.Background())
	if err == nil || !strings.Contains(err.Error(), "capture for tag '1280x800' failed") {
		t.Fatalf("error = %v", err)
	}
	var procErr *launcher.ProcessError
	if !errors.As(err, &procErr) {
		t.Errorf("process error not wrapped: %v", err)
	}
	if producers := producerCommands(runner.commands); len(producers) != 1 {
		t.Errorf("producer launches = %d, want 1 (flaky runs must not mint goldens)", len(producers))
	}
}

func TestCaptureSubsetLeavesOtherTagsAlone(t *testing.T) {
	cfg, buildDir := newCaptureConfig(t)
	runner := captureRunner(t)

	flow := New(Options{Config: cfg, BuildDir: buildDir, Tags: []string{"2560x1440"}, Runner: runner})
	if err := flow.Capture(context.Background()); err != nil {
		t.Fatalf("Capture: %v", err)
	}

	m := loadManifest(t, cfg.ManifestPath)
	if m.ManifestRevision != 8 {
		t.Errorf("manifest revision = %d, want 8", m.ManifestRevision)
	}
	if laptop := m.Captures["1280x800"]; laptop.SHA256 != "stale" || laptop.Revision != 3 {
		t.Errorf("untargeted entry was rewritten: %+v", laptop)
	}
	if wide := m.Captures["2560x1440"]; wide.Revision != 6 || wide.SHA256 == "stale" {
		t.Errorf("targeted entry not refreshed: %+v", wide)
	}
}
