package scenario

import (
	"strings"
	"testing"

	"guardrail/internal/tolerance"
)

func TestSelectAll(t *testing.T) {
	for _, arg := range []string{"all", "ALL", " all "} {
		selected, err := Select(Builtin(), arg)
		if err != nil {
			t.Fatalf("Select(%q): %v", arg, err)
		}
		if len(selected) != 2 {
			t.Fatalf("Select(%q) returned %d scenarios", arg, len(selected))
		}
		if selected[0].Name != "path_renderer2d" || selected[1].Name != "pixel_noise_software" {
			t.Errorf("registry order not preserved: %s, %s", selected[0].Name, selected[1].Name)
		}
	}
}

func TestSelectByName(t *testing.T) {
	selected, err := Select(Builtin(), "pixel_noise_software")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(selected) != 1 || selected[0].Name != "pixel_noise_software" {
		t.Errorf("got %+v", selected)
	}

	selected, err = Select(Builtin(), " path_renderer2d , pixel_noise_software ,")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(selected) != 2 {
		t.Errorf("empty segments not skipped: %d scenarios", len(selected))
	}
}

func TestSelectUnknownListsAvailable(t *testing.T) {
	_, err := Select(Builtin(), "bogus")
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "unknown scenario 'bogus'") {
		t.Errorf("message: %s", msg)
	}
	if !strings.Contains(msg, "path_renderer2d") || !strings.Contains(msg, "pixel_noise_software") {
		t.Errorf("available names not listed: %s", msg)
	}
}

func TestExpandArgs(t *testing.T) {
	sc := Scenario{Args: []string{"--metrics", "--write-json={work}/report.json"}}

	expanded := sc.ExpandArgs("/tmp/run42")
	if expanded[0] != "--metrics" {
		t.Errorf("plain arg changed: %s", expanded[0])
	}
	if expanded[1] != "--write-json=/tmp/run42/report.json" {
		t.Errorf("token not substituted: %s", expanded[1])
	}
	if sc.Args[1] != "--write-json={work}/report.json" {
		t.Error("ExpandArgs mutated the scenario argv")
	}
}

func TestBuiltinDefinitions(t *testing.T) {
	byName := make(map[string]Scenario)
	for _, sc := range Builtin() {
		byName[sc.Name] = sc
		if sc.Timeout <= 0 {
			t.Errorf("%s: timeout not set", sc.Name)
		}
		if sc.ReportFile == "" || sc.Format != FormatJSON {
			t.Errorf("%s: report wiring incomplete", sc.Name)
		}
		if len(sc.Tolerances) == 0 {
			t.Errorf("%s: no tolerances", sc.Name)
		}
		for metric, spec := range sc.Tolerances {
			if spec.Direction != tolerance.IncreaseBad && spec.Direction != tolerance.DecreaseBad {
				t.Errorf("%s/%s: direction %q", sc.Name, metric, spec.Direction)
			}
		}
	}

	renderer := byName["path_renderer2d"]
	if !renderer.TextFallback {
		t.Error("renderer benchmark must fall back to stdout parsing")
	}
	if spec := renderer.Tolerances["full.avgMs"]; spec.Percent != 15.0 || spec.Absolute != 1.5 {
		t.Errorf("full.avgMs tolerance drifted: %+v", spec)
	}
	roots := map[string]string{}
	for _, root := range renderer.MetricRoots {
		roots[root.Prefix] = root.Path
	}
	if roots["full"] != "frames.fullRepaint" || roots["incremental"] != "frames.incremental" {
		t.Errorf("renderer metric roots drifted: %v", roots)
	}

	noise := byName["pixel_noise_software"]
	seeded := false
	for _, arg := range noise.Args {
		if arg == "--seed=123456789" {
			seeded = true
		}
	}
	if !seeded {
		t.Error("pixel noise argv must pin the seed")
	}
	if spec := noise.Tolerances["tileStats.averageBytesCopied"]; spec.Absolute != 200000.0 {
		t.Errorf("averageBytesCopied floor drifted: %+v", spec)
	}
	if len(noise.MetricRoots) != 2 || noise.MetricRoots[0].Prefix != "summary" {
		t.Errorf("pixel noise metric roots drifted: %+v", noise.MetricRoots)
	}

	// Every tracked metric must live under a declared root so the report
	// subtree it comes from is unambiguous.
	for _, sc := range Builtin() {
		for metric := range sc.Tolerances {
			underRoot := false
			for _, root := range sc.MetricRoots {
				if strings.HasPrefix(metric, root.Prefix+".") {
					underRoot = true
				}
			}
			if !underRoot {
				t.Errorf("%s: metric %s has no matching root", sc.Name, metric)
			}
		}
	}
}
