package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"guardrail/internal/binsize"
	"guardrail/internal/cli"
	"guardrail/internal/guard"
	"guardrail/internal/history"
	"guardrail/internal/scenario"
	"guardrail/internal/screenshot"
)

const usage = `Usage: guardrail [flags] <subcommand> [flags]

Subcommands:
  perf        run performance scenarios and compare against the baseline
  size        measure binary sizes and compare against the size baseline
  screenshot  verify the golden screenshot and run the producer against it
  capture     recapture golden screenshots and refresh the manifest
  monitor     audit screenshot artifacts against the manifest
  history     query recorded runs from the history database

Global flags (before the subcommand):
  --config <path>      guardrail.yaml overriding the defaults
  --build-dir <path>   build tree containing the producer binaries
  --ci                 emit CI annotations instead of plain failure lines
  --json               emit machine-readable JSON on stdout
`

func main() {
	os.Exit(run(os.Args[1:], os.Environ(), os.Stdout, os.Stderr))
}

// run dispatches one guardrail invocation. It returns the process exit
// code and is separated from main() so tests drive it with injected
// writers instead of capturing os.Stdout.
func run(args []string, environ []string, stdout, stderr io.Writer) int {
	cmd, err := cli.ParseArgs(args)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		fmt.Fprint(stderr, usage)
		return 1
	}
	if cmd.ShowHelp {
		fmt.Fprint(stdout, usage)
		return 0
	}

	cfg, err := scenario.LoadConfig(cmd.ConfigPath)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	applyOverrides(&cfg, cmd)

	ciMode := cmd.CIMode || getEnvBool(environ, "GUARDRAIL_CI") || getEnvBool(environ, "CI")

	switch cmd.Subcommand {
	case cli.SubcommandPerf:
		return runPerf(cmd, cfg, ciMode, stdout, stderr)
	case cli.SubcommandSize:
		return runSize(cmd, cfg, ciMode, stdout, stderr)
	case cli.SubcommandScreenshot:
		return runScreenshot(cmd, cfg, ciMode, stdout, stderr)
	case cli.SubcommandCapture:
		return runCapture(cmd, cfg, stdout, stderr)
	case cli.SubcommandMonitor:
		return runMonitor(cmd, cfg, ciMode, stdout, stderr)
	case cli.SubcommandHistory:
		return runHistory(cmd, stdout, stderr)
	}
	return 1
}

// applyOverrides folds command-line path overrides into the loaded
// configuration. --baseline targets whichever baseline the subcommand
// reads.
func applyOverrides(cfg *scenario.Config, cmd cli.Command) {
	if cmd.BuildDir != "" {
		cfg.BuildDir = cmd.BuildDir
	}
	if cmd.BaselinePath != "" {
		switch cmd.Subcommand {
		case cli.SubcommandPerf:
			cfg.BaselinePath = cmd.BaselinePath
		case cli.SubcommandSize:
			cfg.Size.BaselinePath = cmd.BaselinePath
		}
	}
}

// logTo returns the progress logger: prefixed human-readable lines on
// the given writer. Failures never go through it; they are enumerated
// on stderr by the caller.
func logTo(w io.Writer) func(format string, args ...interface{}) {
	return func(format string, args ...interface{}) {
		fmt.Fprintf(w, "[guardrail] "+format+"\n", args...)
	}
}

func runPerf(cmd cli.Command, cfg scenario.Config, ciMode bool, stdout, stderr io.Writer) int {
	selected, err := scenario.Select(cfg.Scenarios, cmd.Scenarios)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}

	engine := guard.New(guard.Options{
		Config:        cfg,
		Scenarios:     selected,
		WriteBaseline: cmd.WriteBaseline,
		SkipBuild:     cmd.SkipBuild,
		PrintMetrics:  cmd.PrintMetrics,
		HistoryDir:    cmd.HistoryDir,
		HistoryDB:     cmd.HistoryDB,
		Logf:          logTo(stdout),
	})

	report, err := engine.Run(context.Background())
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}

	if cmd.JSONOutput {
		out, err := guard.FormatJSON(report)
		if err != nil {
			fmt.Fprintln(stderr, "Error:", err)
			return 1
		}
		fmt.Fprintln(stdout, out)
	}

	if !report.Passed {
		if ciMode {
			fmt.Fprint(stderr, guard.FormatCI(report))
		} else {
			fmt.Fprint(stderr, guard.FormatCLI(report))
		}
		return 1
	}
	if !report.BaselineWritten {
		logTo(stdout)("Performance guardrail checks passed")
	}
	return 0
}

func runSize(cmd cli.Command, cfg scenario.Config, ciMode bool, stdout, stderr io.Writer) int {
	logf := logTo(stdout)
	entries := binsize.Collect(cfg.BuildDir, sizeTargets(cfg.Size))
	if cmd.PrintMetrics {
		fmt.Fprint(stdout, binsize.FormatTable(entries))
	}

	store := binsize.NewStore(cfg.Size.BaselinePath)
	if cmd.WriteBaseline {
		tol := binsize.Tolerance{Percent: cfg.Size.Percent, AbsoluteBytes: cfg.Size.AbsoluteBytes}
		if _, err := binsize.Record(store, entries, tol); err != nil {
			fmt.Fprintln(stderr, "Error:", err)
			return 1
		}
		logf("Writing new size baseline to %s", cfg.Size.BaselinePath)
		return 0
	}

	doc, err := store.Load()
	if errors.Is(err, binsize.ErrNotFound) {
		fmt.Fprintf(stderr, "size baseline not found at %s. Run with --write-baseline to create it first.\n", cfg.Size.BaselinePath)
		return 1
	}
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}

	result := binsize.Check(doc, entries)
	if cmd.JSONOutput {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			fmt.Fprintln(stderr, "Error:", err)
			return 1
		}
		fmt.Fprintln(stdout, string(data))
	}
	if !result.Passed {
		failures := make([]string, len(result.Failures))
		for i, failure := range result.Failures {
			failures[i] = failure.String()
		}
		printFailures(stderr, ciMode, "Binary size guardrail", cfg.Size.BaselinePath, failures)
		return 1
	}
	logf("Binary size guardrail checks passed")
	return 0
}

func runScreenshot(cmd cli.Command, cfg scenario.Config, ciMode bool, stdout, stderr io.Writer) int {
	logf := logTo(stdout)
	flow := screenshot.New(screenshot.Options{
		Config:   cfg.Screenshot,
		BuildDir: cfg.BuildDir,
		Tag:      cmd.Tag,
		Logf:     logf,
	})

	result, err := flow.Check(context.Background())
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}

	if cmd.JSONOutput {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			fmt.Fprintln(stderr, "Error:", err)
			return 1
		}
		fmt.Fprintln(stdout, string(data))
	}
	if !result.Passed {
		printFailures(stderr, ciMode, "Screenshot guardrail", cfg.Screenshot.ManifestPath, result.Failures)
		return 1
	}
	logf("Screenshot guardrail checks passed")
	return 0
}

func runCapture(cmd cli.Command, cfg scenario.Config, stdout, stderr io.Writer) int {
	flow := screenshot.New(screenshot.Options{
		Config:    cfg.Screenshot,
		BuildDir:  cfg.BuildDir,
		Tags:      cmd.Tags,
		Notes:     cmd.Notes,
		ExtraArgs: cmd.ExtraArgs,
		DryRun:    cmd.DryRun,
		Logf:      logTo(stdout),
	})
	if err := flow.Capture(context.Background()); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	return 0
}

func runMonitor(cmd cli.Command, cfg scenario.Config, ciMode bool, stdout, stderr io.Writer) int {
	logf := logTo(stdout)
	flow := screenshot.New(screenshot.Options{
		Config: cfg.Screenshot,
		Tags:   cmd.Tags,
		Logf:   logf,
	})

	result, err := flow.Monitor()
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}

	if cmd.JSONOutput {
		data, err := json.MarshalIndent(result.Report, "", "  ")
		if err != nil {
			fmt.Fprintln(stderr, "Error:", err)
			return 1
		}
		fmt.Fprintln(stdout, string(data))
	}
	if len(result.Failures) > 0 {
		printFailures(stderr, ciMode, "Screenshot monitor", cfg.Screenshot.ManifestPath, result.Failures)
		return 1
	}
	logf("Screenshot artifacts are consistent with manifest revision %d", result.Report.ManifestRevision)
	return 0
}

func runHistory(cmd cli.Command, stdout, stderr io.Writer) int {
	db, err := history.OpenDB(cmd.HistoryDB)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	defer db.Close()

	if cmd.RunRow > 0 {
		metrics, err := db.RunMetrics(cmd.RunRow)
		if err != nil {
			fmt.Fprintln(stderr, "Error:", err)
			return 1
		}
		if cmd.JSONOutput {
			data, err := json.MarshalIndent(metrics, "", "  ")
			if err != nil {
				fmt.Fprintln(stderr, "Error:", err)
				return 1
			}
			fmt.Fprintln(stdout, string(data))
			return 0
		}
		if len(metrics) == 0 {
			fmt.Fprintf(stdout, "No metrics recorded for run %d\n", cmd.RunRow)
			return 0
		}
		names := make([]string, 0, len(metrics))
		for name := range metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(stdout, "%s: %g\n", name, metrics[name])
		}
		return 0
	}

	runs, err := db.ListRuns(cmd.ScenarioName, cmd.Limit)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	if len(runs) == 0 {
		if cmd.JSONOutput {
			fmt.Fprintln(stdout, "[]")
		} else {
			fmt.Fprintln(stdout, "No runs recorded")
		}
		return 0
	}
	if cmd.JSONOutput {
		data, err := json.MarshalIndent(runs, "", "  ")
		if err != nil {
			fmt.Fprintln(stderr, "Error:", err)
			return 1
		}
		fmt.Fprintln(stdout, string(data))
		return 0
	}
	for _, run := range runs {
		status := "pass"
		if !run.Passed {
			status = fmt.Sprintf("FAIL(%d)", run.FailureCount)
		}
		fmt.Fprintf(stdout, "%d  %s  %s  %s  %s\n",
			run.ID, run.StartedAt.Format(time.RFC3339), run.Scenario, status, run.RunID)
	}
	return 0
}

// printFailures enumerates guardrail failures on one writer, either as
// GitHub annotations or as an indented block under a title line.
func printFailures(w io.Writer, ciMode bool, title, file string, failures []string) {
	if ciMode {
		for _, failure := range failures {
			fmt.Fprintf(w, "::error file=%s::%s\n", file, failure)
		}
		fmt.Fprintf(w, "\n❌ %s: %d failing check(s)\n", title, len(failures))
		return
	}
	fmt.Fprintf(w, "%s detected regressions:\n", title)
	for _, failure := range failures {
		fmt.Fprintf(w, "  %s\n", failure)
	}
}

// sizeTargets resolves the tracked binaries: configured targets, or the
// built-in demo list.
func sizeTargets(size scenario.SizeConfig) []binsize.Target {
	if len(size.Targets) == 0 {
		return binsize.DefaultTargets()
	}
	targets := make([]binsize.Target, len(size.Targets))
	for i, target := range size.Targets {
		targets[i] = binsize.Target{Name: target.Name, RelativePath: target.RelativePath}
	}
	return targets
}

// getEnvBool checks if an environment variable is set to a truthy value.
func getEnvBool(environ []string, name string) bool {
	prefix := name + "="
	for _, env := range environ {
		if strings.HasPrefix(env, prefix) {
			val := strings.ToLower(strings.TrimPrefix(env, prefix))
			return val == "true" || val == "1" || val == "yes"
		}
	}
	return false
}
