package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"
)

// ErrNoSubcommand is returned when no subcommand follows the global flags.
var ErrNoSubcommand = errors.New("missing subcommand: usage: guardrail [flags] <perf|size|screenshot|capture|monitor|history> [flags]")

// Subcommand names one of the guardrail flows.
type Subcommand string

const (
	SubcommandPerf       Subcommand = "perf"
	SubcommandSize       Subcommand = "size"
	SubcommandScreenshot Subcommand = "screenshot"
	SubcommandCapture    Subcommand = "capture"
	SubcommandMonitor    Subcommand = "monitor"
	SubcommandHistory    Subcommand = "history"
)

// Command is the parsed CLI input: the selected subcommand plus every
// flag value, global and subcommand-scoped alike.
type Command struct {
	Subcommand Subcommand
	ShowHelp   bool

	// Global flags
	ConfigPath string // --config <path>
	BuildDir   string // --build-dir <path>
	CIMode     bool   // --ci
	JSONOutput bool   // --json

	// perf / size
	WriteBaseline bool   // --write-baseline
	Scenarios     string // --scenarios <a,b,..> ("all" selects everything)
	BaselinePath  string // --baseline <path>
	SkipBuild     bool   // --skip-build
	PrintMetrics  bool   // --print
	HistoryDir    string // --history-dir <path>
	HistoryDB     string // --history-db <path>

	// screenshot / capture / monitor
	Tag       string   // --tag <tag>
	Tags      []string // --tags <tag,..>
	Notes     string   // --notes <text>
	DryRun    bool     // --dry-run
	ExtraArgs []string // capture: positional arguments passed through to the producer

	// history
	ScenarioName string // --scenario <name>
	Limit        int    // --limit <n>
	RunRow       int64  // --run <row id>
}

// ParseArgs parses CLI arguments into a Command. It expects args to be
// os.Args[1:]. Global flags come before the subcommand; parsing stops at
// the first positional so subcommand flags stay with their subcommand.
func ParseArgs(args []string) (Command, error) {
	var cmd Command

	global := newFlagSet("guardrail")
	global.SetInterspersed(false)
	global.StringVar(&cmd.ConfigPath, "config", "", "path to guardrail.yaml")
	global.StringVar(&cmd.BuildDir, "build-dir", "", "build tree containing the producer binaries")
	global.BoolVar(&cmd.CIMode, "ci", false, "emit CI annotations instead of plain failure lines")
	global.BoolVar(&cmd.JSONOutput, "json", false, "emit machine-readable JSON on stdout")
	if err := global.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			cmd.ShowHelp = true
			return cmd, nil
		}
		return Command{}, err
	}

	rest := global.Args()
	if len(rest) == 0 {
		return Command{}, ErrNoSubcommand
	}

	var err error
	cmd.Subcommand = Subcommand(rest[0])
	switch cmd.Subcommand {
	case SubcommandPerf:
		err = parsePerf(&cmd, rest[1:])
	case SubcommandSize:
		err = parseSize(&cmd, rest[1:])
	case SubcommandScreenshot:
		err = parseScreenshot(&cmd, rest[1:])
	case SubcommandCapture:
		err = parseCapture(&cmd, rest[1:])
	case SubcommandMonitor:
		err = parseMonitor(&cmd, rest[1:])
	case SubcommandHistory:
		err = parseHistory(&cmd, rest[1:])
	default:
		return Command{}, fmt.Errorf("unknown subcommand '%s' (want perf, size, screenshot, capture, monitor, or history)", rest[0])
	}
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			cmd.ShowHelp = true
			return cmd, nil
		}
		return Command{}, fmt.Errorf("%s: %w", cmd.Subcommand, err)
	}
	return cmd, nil
}

// newFlagSet builds a flag set that reports errors instead of exiting
// or printing; the caller owns all output.
func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parsePerf(cmd *Command, args []string) error {
	fs := newFlagSet("perf")
	fs.BoolVar(&cmd.WriteBaseline, "write-baseline", false, "record fresh metrics as the new baseline")
	fs.StringVar(&cmd.Scenarios, "scenarios", "all", "comma-separated scenario names, or 'all'")
	fs.StringVar(&cmd.BaselinePath, "baseline", "", "override the baseline document path")
	fs.BoolVar(&cmd.SkipBuild, "skip-build", false, "skip the configured pre-build command")
	fs.BoolVar(&cmd.PrintMetrics, "print", false, "print every extracted metric per scenario")
	fs.StringVar(&cmd.HistoryDir, "history-dir", "", "append per-scenario JSONL history under this directory")
	fs.StringVar(&cmd.HistoryDB, "history-db", "", "record run verdicts in this SQLite database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if extra := fs.Args(); len(extra) > 0 {
		return fmt.Errorf("unexpected argument '%s'", extra[0])
	}
	return nil
}

func parseSize(cmd *Command, args []string) error {
	fs := newFlagSet("size")
	fs.BoolVar(&cmd.WriteBaseline, "write-baseline", false, "record measured sizes as the new baseline")
	fs.StringVar(&cmd.BaselinePath, "baseline", "", "override the size baseline document path")
	fs.BoolVar(&cmd.PrintMetrics, "print", false, "print the measured size table")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if extra := fs.Args(); len(extra) > 0 {
		return fmt.Errorf("unexpected argument '%s'", extra[0])
	}
	return nil
}

func parseScreenshot(cmd *Command, args []string) error {
	fs := newFlagSet("screenshot")
	fs.StringVar(&cmd.Tag, "tag", "", "manifest tag to verify (defaults to <width>x<height>)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if extra := fs.Args(); len(extra) > 0 {
		return fmt.Errorf("unexpected argument '%s'", extra[0])
	}
	return nil
}

func parseCapture(cmd *Command, args []string) error {
	fs := newFlagSet("capture")
	fs.StringSliceVar(&cmd.Tags, "tags", nil, "manifest tags to recapture (default: every capture)")
	fs.StringVar(&cmd.Notes, "notes", "", "note recorded on each refreshed manifest entry")
	fs.BoolVar(&cmd.DryRun, "dry-run", false, "print producer commands without running or writing")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cmd.ExtraArgs = fs.Args()
	return nil
}

func parseMonitor(cmd *Command, args []string) error {
	fs := newFlagSet("monitor")
	fs.StringSliceVar(&cmd.Tags, "tags", nil, "manifest tags to audit (default: every capture)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if extra := fs.Args(); len(extra) > 0 {
		return fmt.Errorf("unexpected argument '%s'", extra[0])
	}
	return nil
}

func parseHistory(cmd *Command, args []string) error {
	fs := newFlagSet("history")
	fs.StringVar(&cmd.HistoryDB, "db", "", "path to the run database (required)")
	fs.StringVar(&cmd.ScenarioName, "scenario", "", "only list runs of this scenario")
	fs.IntVar(&cmd.Limit, "limit", 20, "maximum number of runs to list")
	fs.Int64Var(&cmd.RunRow, "run", 0, "show the metrics recorded for this run row")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if extra := fs.Args(); len(extra) > 0 {
		return fmt.Errorf("unexpected argument '%s'", extra[0])
	}
	if cmd.HistoryDB == "" {
		return errors.New("--db is required")
	}
	return nil
}
