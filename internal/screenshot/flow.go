package screenshot

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"guardrail/internal/artifact"
	"guardrail/internal/extract"
	"guardrail/internal/launcher"
	"guardrail/internal/scenario"
)

// Environment variables exporting the manifest identity to the producer.
// The producer embeds them in its screenshot metadata so an artifact can
// be traced back to the baseline it was compared against.
const (
	EnvBaselineVersion = "PAINT_EXAMPLE_BASELINE_VERSION"
	EnvBaselineSHA256  = "PAINT_EXAMPLE_BASELINE_SHA256"
	EnvBaselineTag     = "PAINT_EXAMPLE_BASELINE_TAG"
)

// Options configures the screenshot flows. Tag applies to the check flow
// only; Tags restricts capture and monitor to a subset of manifest
// entries.
type Options struct {
	Config    scenario.ScreenshotConfig
	BuildDir  string
	Tag       string   // check: manifest tag; empty derives "<width>x<height>"
	Tags      []string // capture/monitor: tag subset; empty selects every capture
	Notes     string   // capture: recorded on each refreshed entry
	ExtraArgs []string // capture: extra producer arguments
	DryRun    bool
	Backoff   time.Duration
	Runner    launcher.Runner
	Logf      func(format string, args ...interface{})
}

// Flow runs the screenshot check, capture, and monitor flows against one
// baseline manifest.
type Flow struct {
	opts     Options
	runner   launcher.Runner // bare runner: capture attempts and git are never retried
	producer launcher.Runner // retry-wrapped runner for the check flow
	logf     func(format string, args ...interface{})
}

// New builds a flow. A nil Runner forks real subprocesses.
func New(opts Options) *Flow {
	logf := opts.Logf
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	inner := opts.Runner
	if inner == nil {
		inner = launcher.ExecRunner{}
	}
	return &Flow{
		opts:     opts,
		runner:   inner,
		producer: launcher.RetryRunner{Inner: inner, Backoff: opts.Backoff, Logf: logf},
		logf:     logf,
	}
}

// checkTag resolves the manifest tag the check flow verifies.
func (f *Flow) checkTag() string {
	if f.opts.Tag != "" {
		return f.opts.Tag
	}
	return fmt.Sprintf("%dx%d", f.opts.Config.Width, f.opts.Config.Height)
}

// sanitizeTag keeps tags usable as file name fragments.
func sanitizeTag(tag string) string {
	return strings.ReplaceAll(tag, "/", "_")
}

// artifactPath names a per-tag artifact under the artifacts directory,
// e.g. paint_example_1280x800_screenshot.png. The check and monitor
// flows must agree on this layout.
func (f *Flow) artifactPath(tag, suffix string) string {
	name := f.opts.Config.Binary + "_" + sanitizeTag(tag) + suffix
	return filepath.Join(f.opts.Config.ArtifactsDir, name)
}

// selectTags resolves a requested tag subset against the manifest.
// No request selects every capture in sorted order; unknown tags fail
// listing all of them at once.
func selectTags(captures map[string]artifact.Capture, requested []string) ([]string, error) {
	if len(requested) == 0 {
		tags := make([]string, 0, len(captures))
		for tag := range captures {
			tags = append(tags, tag)
		}
		sort.Strings(tags)
		return tags, nil
	}

	var unknown []string
	for _, tag := range requested {
		if _, ok := captures[tag]; !ok {
			unknown = append(unknown, tag)
		}
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown manifest tags: %s", strings.Join(unknown, ", "))
	}
	return requested, nil
}

// reasonOf strips the captured-output payload from extraction errors so
// failure lines stay one line.
func reasonOf(err error) string {
	var malformed *extract.MalformedError
	if errors.As(err, &malformed) {
		return malformed.Reason
	}
	return err.Error()
}
