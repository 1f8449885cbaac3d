package binsize

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"guardrail/internal/launcher"
)

// buildConfigs mirrors the launcher's per-configuration search order.
var buildConfigs = []string{"Release", "Debug", "RelWithDebInfo", "MinSizeRel"}

// Target names one binary the size guardrail tracks, keyed by its
// relative path in the build tree.
type Target struct {
	Name         string
	RelativePath string
}

// DefaultTargets returns the demo binaries tracked out of the box.
func DefaultTargets() []Target {
	return []Target{
		{Name: "devices_example", RelativePath: "examples/devices_example"},
		{Name: "html_replay_example", RelativePath: "examples/html_replay_example"},
		{Name: "paint_example", RelativePath: "examples/paint_example"},
		{Name: "pixel_noise_example", RelativePath: "examples/pixel_noise_example"},
		{Name: "widgets_example", RelativePath: "examples/widgets_example"},
	}
}

// Entry is the measured state of one target after a build.
type Entry struct {
	Name         string `json:"name"`
	RelativePath string `json:"relativePath"`
	Found        bool   `json:"found"`
	SizeBytes    int64  `json:"sizeBytes,omitempty"`
	ResolvedPath string `json:"resolvedPath,omitempty"`
}

// candidatePaths yields the plausible locations of a built binary
// relative to the build dir: the tracked path itself, its bare name,
// the examples/ and bin/ prefixes, each also under the per-config
// directories, plus app bundles on macOS and .exe variants on Windows.
func candidatePaths(relativePath string) []string {
	sanitized := strings.Trim(relativePath, "/\\")
	if sanitized == "" {
		return nil
	}
	base := filepath.Base(sanitized)

	var variants []string
	addVariant := func(v string) {
		for _, existing := range variants {
			if existing == v {
				return
			}
		}
		variants = append(variants, v)
	}
	addVariant(sanitized)
	addVariant(base)
	addVariant(filepath.Join("examples", base))
	addVariant(filepath.Join("bin", base))

	seen := make(map[string]bool)
	var paths []string
	consider := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}

	for _, variant := range variants {
		consider(variant)
		if runtime.GOOS == "darwin" {
			consider(filepath.Join(variant+".app", "Contents", "MacOS", base))
		}
		for _, config := range buildConfigs {
			consider(filepath.Join(config, variant))
			if runtime.GOOS == "darwin" {
				consider(filepath.Join(config, variant+".app", "Contents", "MacOS", base))
			}
		}
		if runtime.GOOS == "windows" {
			consider(variant + ".exe")
			for _, config := range buildConfigs {
				consider(filepath.Join(config, variant+".exe"))
			}
		}
	}
	return paths
}

// Collect measures every target under buildDir. Targets that were not
// built come back with Found false rather than an error, so record and
// check modes can report them precisely.
func Collect(buildDir string, targets []Target) []Entry {
	entries := make([]Entry, 0, len(targets))
	for _, target := range targets {
		entry := Entry{Name: target.Name, RelativePath: target.RelativePath}
		if path, ok := launcher.FirstExecutable(buildDir, candidatePaths(target.RelativePath)); ok {
			if info, err := os.Stat(path); err == nil {
				entry.Found = true
				entry.SizeBytes = info.Size()
				entry.ResolvedPath = path
			}
		}
		entries = append(entries, entry)
	}
	return entries
}

// FormatTable renders the human-readable size report.
func FormatTable(entries []Entry) string {
	var b strings.Builder
	b.WriteString("\n[guardrail] Example binary size report\n")
	b.WriteString("[guardrail] Binary; Size (MiB); Status; Path\n")
	for _, entry := range entries {
		sizeDisplay := "   n/a"
		status := "missing"
		path := "(not found)"
		if entry.Found {
			sizeDisplay = fmt.Sprintf("%6.2f", float64(entry.SizeBytes)/(1024*1024))
			status = "ok"
			path = entry.ResolvedPath
		}
		fmt.Fprintf(&b, "[guardrail] %-22s %s    %-8s %s\n", entry.Name, sizeDisplay, status, path)
	}
	return b.String()
}
