package guard

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"guardrail/internal/baseline"
	"guardrail/internal/extract"
	"guardrail/internal/history"
	"guardrail/internal/launcher"
	"guardrail/internal/scenario"
	"guardrail/internal/tolerance"
)

// Options configures one engine invocation. Scenarios is the selected
// subset to run; Config supplies the paths and build command shared by
// every subcommand.
type Options struct {
	Config        scenario.Config
	Scenarios     []scenario.Scenario
	WriteBaseline bool
	SkipBuild     bool
	PrintMetrics  bool
	HistoryDir    string
	HistoryDB     string
	WorkRoot      string        // parent for per-run work dirs; empty uses the system temp dir
	Backoff       time.Duration // retry backoff override; zero uses the default
	Runner        launcher.Runner
	Logf          func(format string, args ...interface{})
}

// Engine runs producer scenarios and turns their output into a guardrail
// verdict. Each invocation is a pure function of producer output and the
// persisted baseline; the engine holds no state between runs.
type Engine struct {
	opts     Options
	runner   launcher.Runner // bare runner for the build step
	producer launcher.Runner // retry-wrapped runner for scenario producers
	logf     func(format string, args ...interface{})
}

// New builds an engine. A nil Runner forks real subprocesses; tests
// inject fakes. Producers get the single-retry policy, the build step
// does not.
func New(opts Options) *Engine {
	logf := opts.Logf
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	inner := opts.Runner
	if inner == nil {
		inner = launcher.ExecRunner{}
	}
	return &Engine{
		opts:     opts,
		runner:   inner,
		producer: launcher.RetryRunner{Inner: inner, Backoff: opts.Backoff, Logf: logf},
		logf:     logf,
	}
}

// outcome carries the per-scenario values that feed stores but not the
// report itself.
type outcome struct {
	started  time.Time
	metadata map[string]interface{}
}

// Run executes every selected scenario and assembles the verdict. The
// returned error covers conditions that stop the run outright (build
// failure, unreadable baseline, store write failures); per-scenario
// failures land in the report instead so one run surfaces all of them.
func (e *Engine) Run(ctx context.Context) (Report, error) {
	report := Report{
		GeneratedAt:  time.Now().UTC(),
		RunID:        history.NewRunID(),
		BaselinePath: e.opts.Config.BaselinePath,
	}

	if err := e.build(ctx); err != nil {
		return report, err
	}

	outcomes := make([]outcome, 0, len(e.opts.Scenarios))
	for _, sc := range e.opts.Scenarios {
		sr, out := e.runScenario(ctx, sc)

		if len(sr.Problems) == 0 && e.opts.HistoryDir != "" {
			appender := history.Appender{Dir: e.opts.HistoryDir}
			entry := history.Entry{
				Timestamp: out.started,
				RunID:     report.RunID,
				Metrics:   sr.Metrics,
				Metadata:  out.metadata,
			}
			if err := appender.Append(sc.Name, entry); err != nil {
				return report, err
			}
		}
		if e.opts.PrintMetrics && len(sr.Problems) == 0 {
			e.printMetrics(sc.Name, sr.Metrics)
		}

		report.Scenarios = append(report.Scenarios, sr)
		outcomes = append(outcomes, out)
	}

	store := baseline.NewStore(e.opts.Config.BaselinePath)
	if e.opts.WriteBaseline {
		if err := e.writeBaseline(store, &report, outcomes); err != nil {
			return report, err
		}
	} else if err := e.compare(store, &report); err != nil {
		return report, err
	}

	if err := e.recordRuns(report, outcomes); err != nil {
		return report, err
	}
	return report, nil
}

// build runs the configured build command once, with every distinct
// scenario build target appended as a --target pair. The engine knows
// nothing about the build system beyond that argv shape.
func (e *Engine) build(ctx context.Context) error {
	if e.opts.SkipBuild || len(e.opts.Config.BuildCommand) == 0 {
		return nil
	}

	argv := append([]string(nil), e.opts.Config.BuildCommand...)
	seen := make(map[string]bool)
	for _, sc := range e.opts.Scenarios {
		if sc.BuildTarget == "" || seen[sc.BuildTarget] {
			continue
		}
		seen[sc.BuildTarget] = true
		argv = append(argv, "--target", sc.BuildTarget)
	}

	e.logf("building producers: %s", strings.Join(argv, " "))
	result, err := e.runner.Run(ctx, launcher.Command{Path: argv[0], Args: argv[1:]})
	if err != nil {
		if trimmed := strings.TrimSpace(result.Stderr); trimmed != "" {
			e.logf("build stderr:\n%s", trimmed)
		}
		return fmt.Errorf("build failed: %w", err)
	}
	return nil
}

// runScenario resolves, runs, and extracts one scenario. Failures become
// problems on the returned report entry; Metrics holds only the tracked
// values once extraction succeeds.
func (e *Engine) runScenario(ctx context.Context, sc scenario.Scenario) (ScenarioReport, outcome) {
	sr := ScenarioReport{Name: sc.Name}
	out := outcome{started: time.Now().UTC()}

	path, err := launcher.Resolve(e.opts.Config.BuildDir, sc.Binary)
	if err != nil {
		sr.Problems = append(sr.Problems, scenarioProblem(sc.Name, KindMissingBinary, "%v", err))
		return sr, out
	}

	workDir, err := os.MkdirTemp(e.opts.WorkRoot, "guardrail-"+sc.Name+"-")
	if err != nil {
		sr.Problems = append(sr.Problems, scenarioProblem(sc.Name, KindProcessFailure, "failed to create work directory: %v", err))
		return sr, out
	}
	defer os.RemoveAll(workDir)

	timeout := sc.Timeout
	if timeout <= 0 {
		timeout = scenario.DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	e.logf("running scenario '%s'", sc.Name)
	result, err := e.producer.Run(runCtx, launcher.Command{Path: path, Args: sc.ExpandArgs(workDir)})
	sr.Attempts = result.Attempts
	if err != nil {
		sr.Problems = append(sr.Problems, scenarioProblem(sc.Name, KindProcessFailure, "%v", err))
		return sr, out
	}

	samples, metadata, problem := e.collectMetrics(sc, workDir, result.Stdout)
	if problem != nil {
		sr.Problems = append(sr.Problems, *problem)
		return sr, out
	}

	out.metadata = metadata
	sr.Metrics = trackedMetrics(samples.Metrics(), sc.Tolerances)
	return sr, out
}

// collectMetrics turns producer output into samples plus audit metadata.
// JSON reports are read from the work dir and mapped through the
// scenario's metric roots; scenarios with a text fallback parse stdout
// when the report file never appeared.
func (e *Engine) collectMetrics(sc scenario.Scenario, workDir, stdout string) (extract.Set, map[string]interface{}, *Problem) {
	if sc.ReportFile == "" {
		return e.parseStdout(sc, stdout)
	}

	data, err := os.ReadFile(filepath.Join(workDir, sc.ReportFile))
	if err != nil {
		if !os.IsNotExist(err) {
			p := scenarioProblem(sc.Name, KindMalformedOutput, "failed to read report file %s: %v", sc.ReportFile, err)
			return nil, nil, &p
		}
		if sc.TextFallback {
			e.logf("report file %s missing; parsing stdout instead", sc.ReportFile)
			return e.parseStdout(sc, stdout)
		}
		p := scenarioProblem(sc.Name, KindMalformedOutput, "report file %s was not written", sc.ReportFile)
		return nil, nil, &p
	}

	root, err := extract.Decode(data)
	if err != nil {
		p := scenarioProblem(sc.Name, KindMalformedOutput, "%s", malformedReason(err))
		return nil, nil, &p
	}

	samples := extract.Set{}
	if len(sc.MetricRoots) == 0 {
		samples = extract.FlattenTree("", root)
	} else {
		for _, mr := range sc.MetricRoots {
			node, ok := extract.Lookup(root, mr.Path)
			if !ok {
				continue // absent subtrees surface as missing metrics downstream
			}
			for name, sample := range extract.FlattenTree(mr.Prefix, node) {
				samples[name] = sample
			}
		}
	}

	var metadata map[string]interface{}
	for _, metaPath := range sc.MetadataPaths {
		value, ok := extract.Lookup(root, metaPath)
		if !ok {
			continue
		}
		if metadata == nil {
			metadata = map[string]interface{}{}
		}
		metadata[metaPath] = value
	}
	return samples, metadata, nil
}

func (e *Engine) parseStdout(sc scenario.Scenario, stdout string) (extract.Set, map[string]interface{}, *Problem) {
	report, err := extract.ParseText(stdout)
	if err != nil {
		p := scenarioProblem(sc.Name, KindMalformedOutput, "%s", malformedReason(err))
		return nil, nil, &p
	}
	metadata := map[string]interface{}{
		"canvas": fmt.Sprintf("%dx%d", report.Canvas.Width, report.Canvas.Height),
	}
	return report.Samples, metadata, nil
}

// writeBaseline replaces the baseline document with this run's tracked
// metrics and the tolerance tables in effect. Every scenario must have
// produced metrics; recording a failed run as ground truth would bake
// the failure into every future comparison.
func (e *Engine) writeBaseline(store *baseline.Store, report *Report, outcomes []outcome) error {
	for _, sr := range report.Scenarios {
		if len(sr.Problems) > 0 {
			return fmt.Errorf("cannot write baseline; scenario '%s' produced no metrics: %s", sr.Name, sr.Problems[0].Message)
		}
	}

	e.logf("Writing new baseline to %s", store.Path)
	doc := baseline.NewDocument()
	for i, sc := range e.opts.Scenarios {
		doc.Scenarios[sc.Name] = baseline.ScenarioBaseline{
			Metrics:    report.Scenarios[i].Metrics,
			Tolerances: sc.Tolerances,
			Metadata:   outcomes[i].metadata,
		}
	}
	if err := store.Save(doc); err != nil {
		return err
	}

	for i := range report.Scenarios {
		report.Scenarios[i].Passed = true
	}
	report.Passed = true
	report.BaselineWritten = true
	return nil
}

// compare evaluates every scenario's tracked metrics against the loaded
// baseline. Scenarios that already failed to produce metrics keep their
// problems and are not compared; a missing baseline document stops the
// run with instructions rather than failing metric by metric.
func (e *Engine) compare(store *baseline.Store, report *Report) error {
	doc, err := store.Load()
	if errors.Is(err, baseline.ErrNotFound) {
		return fmt.Errorf("baseline not found at %s. Run with --write-baseline to create it first.", store.Path)
	}
	if err != nil {
		return err
	}

	passed := true
	for i, sc := range e.opts.Scenarios {
		sr := &report.Scenarios[i]
		if len(sr.Problems) > 0 {
			passed = false
			continue
		}

		sb, ok := doc.Scenarios[sc.Name]
		if !ok {
			sr.Problems = append(sr.Problems, Problem{
				Kind:    KindMissingScenario,
				Message: fmt.Sprintf("scenario '%s' missing from baseline; rerun with --write-baseline", sc.Name),
			})
			passed = false
			continue
		}

		specs := tolerance.Merge(sc.Tolerances, sb.Tolerances)
		result := tolerance.Evaluate(sb.Metrics, sr.Metrics, specs)
		for _, f := range result.Failures {
			sr.Problems = append(sr.Problems, Problem{
				Kind:    string(f.Kind),
				Message: fmt.Sprintf("%s: %s", sc.Name, f.String()),
			})
		}
		sr.Passed = result.Passed
		if !result.Passed {
			passed = false
		}
	}

	report.Passed = passed
	return nil
}

// recordRuns mirrors the verdicts into the optional SQLite index.
func (e *Engine) recordRuns(report Report, outcomes []outcome) error {
	if e.opts.HistoryDB == "" {
		return nil
	}

	db, err := history.OpenDB(e.opts.HistoryDB)
	if err != nil {
		return err
	}
	defer db.Close()

	for i, sr := range report.Scenarios {
		run := history.Run{
			RunID:        report.RunID,
			Scenario:     sr.Name,
			StartedAt:    outcomes[i].started,
			Passed:       sr.Passed,
			FailureCount: len(sr.Problems),
		}
		if err := db.RecordRun(&run, sr.Metrics); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) printMetrics(name string, metrics map[string]float64) {
	e.logf("%s metrics:", name)
	keys := make([]string, 0, len(metrics))
	for key := range metrics {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		e.logf("  %s: %.6f", key, metrics[key])
	}
}

// scenarioProblem renders a problem line prefixed with the scenario name,
// the way failures read in guardrail logs.
func scenarioProblem(name, kind, format string, args ...interface{}) Problem {
	return Problem{
		Kind:    kind,
		Message: fmt.Sprintf("%s: %s", name, fmt.Sprintf(format, args...)),
	}
}

// trackedMetrics filters extracted values down to the metrics a tolerance
// policy tracks. Untracked producer output never reaches the baseline,
// history, or the evaluator.
func trackedMetrics(metrics map[string]float64, specs map[string]tolerance.Spec) map[string]float64 {
	out := make(map[string]float64, len(specs))
	for name, value := range metrics {
		if _, ok := specs[name]; ok {
			out[name] = value
		}
	}
	return out
}

func malformedReason(err error) string {
	var malformed *extract.MalformedError
	if errors.As(err, &malformed) {
		return malformed.Reason
	}
	return err.Error()
}
