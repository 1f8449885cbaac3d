package screenshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"guardrail/internal/artifact"
	"guardrail/internal/launcher"
	"guardrail/internal/revision"
)

// Capture reruns the screenshot producer for the requested manifest tags
// and refreshes each entry's hash, commit, and revision in place. The
// manifest revision advances once per invocation no matter how many tags
// were recaptured, and the expected-revision marker is rewritten so the
// monitor accepts the new state.
func (f *Flow) Capture(ctx context.Context) error {
	cfg := f.opts.Config

	binary, err := launcher.Resolve(f.opts.BuildDir, cfg.Binary)
	if err != nil {
		return err
	}

	store := artifact.NewStore(cfg.ManifestPath)
	m, err := store.Load()
	if errors.Is(err, artifact.ErrNotFound) {
		return fmt.Errorf("manifest not found at %s", cfg.ManifestPath)
	}
	if err != nil {
		return err
	}
	if len(m.Captures) == 0 {
		return fmt.Errorf("manifest %s has no capture definitions", cfg.ManifestPath)
	}

	tags, err := selectTags(m.Captures, f.opts.Tags)
	if err != nil {
		return err
	}

	commit, err := f.gitHead(ctx)
	if err != nil {
		return err
	}

	updated := false
	for _, tag := range tags {
		entry := m.Captures[tag]
		if err := os.MkdirAll(filepath.Dir(entry.Path), 0755); err != nil {
			return fmt.Errorf("failed to create baseline directory: %w", err)
		}

		args := []string{
			fmt.Sprintf("--width=%d", entry.Width),
			fmt.Sprintf("--height=%d", entry.Height),
			"--screenshot=" + entry.Path,
			"--screenshot-require-present",
			"--gpu-smoke",
		}
		args = append(args, f.opts.ExtraArgs...)
		cmd := launcher.Command{
			Path: binary,
			Args: args,
			Env:  []string{EnvBaselineTag + "=" + tag},
		}
		f.logf("%s %s", binary, strings.Join(args, " "))
		if f.opts.DryRun {
			continue
		}

		// Captures are never retried: a flaky producer should not be
		// allowed to mint a golden image.
		if _, err := f.runner.Run(ctx, cmd); err != nil {
			return fmt.Errorf("capture for tag '%s' failed: %w", tag, err)
		}

		identity, err := artifact.Probe(entry.Path)
		if err != nil {
			return err
		}
		if identity.Width != entry.Width || identity.Height != entry.Height {
			return fmt.Errorf("capture for %s produced %dx%d, expected %dx%d",
				entry.Path, identity.Width, identity.Height, entry.Width, entry.Height)
		}

		entry.SHA256 = identity.SHA256
		entry.CapturedAt = time.Now().UTC()
		entry.Commit = commit
		entry.Revision++
		if f.opts.Notes != "" {
			entry.Notes = f.opts.Notes
		}
		m.Captures[tag] = entry
		updated = true
		f.logf("updated tag '%s' sha256=%s width=%d height=%d",
			tag, artifact.ShortHash(identity.SHA256), identity.Width, identity.Height)
	}

	if f.opts.DryRun || !updated {
		return nil
	}

	m.ManifestRevision++
	if err := store.Save(m); err != nil {
		return err
	}
	f.logf("manifest written to %s", cfg.ManifestPath)

	if cfg.MarkerPath != "" {
		if err := revision.WriteExpected(cfg.MarkerPath, m.ManifestRevision); err != nil {
			return err
		}
		f.logf("expected revision marker updated to %d", m.ManifestRevision)
	}
	return nil
}

func (f *Flow) gitHead(ctx context.Context) (string, error) {
	run, err := f.runner.Run(ctx, launcher.Command{
		Path: "git",
		Args: []string{"rev-parse", "HEAD"},
	})
	if err != nil {
		return "", fmt.Errorf("git rev-parse HEAD failed: %w", err)
	}
	return strings.TrimSpace(run.Stdout), nil
}
