package launcher

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// buildConfigs are the per-configuration output directories multi-config
// generators produce. Single-config trees put binaries at the top level.
var buildConfigs = []string{"Release", "Debug", "RelWithDebInfo", "MinSizeRel"}

// Candidates returns every relative path where a producer binary may
// live inside a build tree, in resolution order: bare name first, then
// the benchmarks/ and examples/ subtrees, then the same three under
// each per-configuration directory. Windows adds an .exe variant after
// each candidate.
func Candidates(name string) []string {
	bases := []string{
		name,
		filepath.Join("benchmarks", name),
		filepath.Join("examples", name),
	}

	candidates := make([]string, 0, len(bases)*(len(buildConfigs)+1))
	candidates = append(candidates, bases...)
	for _, config := range buildConfigs {
		for _, base := range bases {
			candidates = append(candidates, filepath.Join(config, base))
		}
	}

	if runtime.GOOS == "windows" {
		withExe := make([]string, 0, len(candidates)*2)
		for _, candidate := range candidates {
			withExe = append(withExe, candidate, candidate+".exe")
		}
		return withExe
	}
	return candidates
}

// FirstExecutable returns the first relative candidate that exists under
// buildDir as an executable regular file.
func FirstExecutable(buildDir string, candidates []string) (string, bool) {
	for _, rel := range candidates {
		path := filepath.Join(buildDir, rel)
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		if isExecutable(info) {
			return path, true
		}
	}
	return "", false
}

// Resolve locates the producer binary for name under buildDir. The
// search order is deterministic so two runs against the same tree agree
// on which binary they measured.
func Resolve(buildDir, name string) (string, error) {
	if path, ok := FirstExecutable(buildDir, Candidates(name)); ok {
		return path, nil
	}
	return "", fmt.Errorf("binary '%s' not found under %s (build it first or point --build-dir at the build tree)", name, buildDir)
}

func isExecutable(info os.FileInfo) bool {
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode()&0111 != 0
}
