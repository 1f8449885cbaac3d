package launcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Command describes one producer invocation: the resolved binary, its
// full deterministic argv, and any extra environment exported to it.
type Command struct {
	Path string
	Args []string
	Env  []string // KEY=value pairs overlaid on the parent environment
	Dir  string
}

// RunResult captures everything a finished producer left behind.
type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	Attempts int
}

// ProcessError reports a producer that started but exited nonzero. The
// captured stderr rides along so reports can quote it.
type ProcessError struct {
	Path     string
	ExitCode int
	Stderr   string
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.Path, e.ExitCode)
}

// Runner executes producer commands. The orchestrator depends on this
// interface only, so tests can inject fakes that never fork.
type Runner interface {
	Run(ctx context.Context, cmd Command) (RunResult, error)
}

// ExecRunner runs commands as real subprocesses, capturing both output
// streams.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, cmd Command) (RunResult, error) {
	execCmd := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	execCmd.Dir = cmd.Dir
	execCmd.Env = MergeEnv(os.Environ(), cmd.Env)

	var stdout, stderr bytes.Buffer
	execCmd.Stdout = &stdout
	execCmd.Stderr = &stderr

	start := time.Now()
	err := execCmd.Run()
	result := RunResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
		Attempts: 1,
	}
	if err == nil {
		return result, nil
	}

	if ctx.Err() != nil {
		return result, fmt.Errorf("%s did not finish before the deadline: %w", cmd.Path, ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, &ProcessError{Path: cmd.Path, ExitCode: result.ExitCode, Stderr: result.Stderr}
	}
	return result, fmt.Errorf("failed to start %s: %w", cmd.Path, err)
}

// MergeEnv overlays extra KEY=value pairs on a base environment,
// replacing any base entry that shares a key with an overlay entry.
func MergeEnv(base, extra []string) []string {
	if len(extra) == 0 {
		return base
	}

	overridden := make(map[string]bool, len(extra))
	for _, env := range extra {
		if i := strings.IndexByte(env, '='); i > 0 {
			overridden[env[:i]] = true
		}
	}

	result := make([]string, 0, len(base)+len(extra))
	for _, env := range base {
		key := env
		if i := strings.IndexByte(env, '='); i > 0 {
			key = env[:i]
		}
		if !overridden[key] {
			result = append(result, env)
		}
	}
	return append(result, extra...)
}
