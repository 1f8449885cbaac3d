package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Free-text benchmark stdout is line-oriented:
//
//	Canvas: 3840x2160 progressive tiles=510 initial tile size=256px
//	Full repaint stats: frames=120 avgMs=3.2, fps=312.5
//	Incremental stroke stats: frames=600 avgMs=0.42, fps=2380.9
//	Small-surface tiles: 64 (count=12)
//
// The canvas header must precede every stats record; producer chatter that
// matches no pattern is skipped.

// CanvasHeader is the leading record a benchmark emission starts with.
type CanvasHeader struct {
	Width            int `json:"widthPx"`
	Height           int `json:"heightPx"`
	ProgressiveTiles int `json:"progressiveTiles"`
	InitialTilePx    int `json:"initialTileSizePx"`
}

// SmallSurface is the optional trailing tile diagnostic record.
type SmallSurface struct {
	Tiles       int `json:"tiles"`
	SampleCount int `json:"sampleCount"`
}

// TextReport is the structured form of free-text benchmark stdout. Samples
// holds the key=value tokens of every stats section under dotted names
// ("full.avgMs", "incremental.fps").
type TextReport struct {
	Canvas       CanvasHeader  `json:"canvas"`
	SmallSurface *SmallSurface `json:"smallSurface,omitempty"`
	Samples      Set           `json:"samples"`

	hasCanvas bool
}

var (
	canvasPattern       = regexp.MustCompile(`^Canvas:\s*(\d+)x(\d+)\s+progressive tiles=(\d+)\s+initial tile size=(\d+)px`)
	statsPattern        = regexp.MustCompile(`^(Full repaint|Incremental stroke) stats:`)
	smallSurfacePattern = regexp.MustCompile(`^Small-surface tiles:\s*(\d+)\s*\(count=(\d+)\)`)
	tokenPattern        = regexp.MustCompile(`([A-Za-z_]+)=([^\s]+)`)
	numericPattern      = regexp.MustCompile(`^([-+]?\d+(?:\.\d+)?)([A-Za-z%]+)?`)
)

// sectionPrefixes maps stats section headers to their metric name prefix.
var sectionPrefixes = map[string]string{
	"Full repaint":       "full",
	"Incremental stroke": "incremental",
}

// lineParser recognizes one stdout line shape and folds its structured
// record into the report. Parsers are tried in order; the first match
// consumes the line.
type lineParser struct {
	pattern *regexp.Regexp
	apply   func(r *TextReport, groups []string, line string) error
}

var lineParsers = []lineParser{
	{canvasPattern, applyCanvas},
	{statsPattern, applyStats},
	{smallSurfacePattern, applySmallSurface},
}

func applyCanvas(r *TextReport, groups []string, line string) error {
	r.Canvas = CanvasHeader{
		Width:            mustAtoi(groups[1]),
		Height:           mustAtoi(groups[2]),
		ProgressiveTiles: mustAtoi(groups[3]),
		InitialTilePx:    mustAtoi(groups[4]),
	}
	r.hasCanvas = true
	return nil
}

func applyStats(r *TextReport, groups []string, line string) error {
	if !r.hasCanvas {
		return fmt.Errorf("stats line before canvas header: %s", line)
	}
	prefix := sectionPrefixes[groups[1]]
	for _, token := range tokenPattern.FindAllStringSubmatch(line, -1) {
		r.Samples[prefix+"."+token[1]] = parseToken(token[2])
	}
	return nil
}

func applySmallSurface(r *TextReport, groups []string, line string) error {
	if !r.hasCanvas {
		return fmt.Errorf("stats line before canvas header: %s", line)
	}
	r.SmallSurface = &SmallSurface{
		Tiles:       mustAtoi(groups[1]),
		SampleCount: mustAtoi(groups[2]),
	}
	return nil
}

// ParseText parses free-text benchmark stdout against the line grammar.
// Output with no canvas header at all, or with stats records arriving
// before the header, fails extraction outright with the full captured
// output attached.
func ParseText(output string) (*TextReport, error) {
	report := &TextReport{Samples: Set{}}

	for _, rawLine := range strings.Split(output, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}
		for _, parser := range lineParsers {
			groups := parser.pattern.FindStringSubmatch(line)
			if groups == nil {
				continue
			}
			if err := parser.apply(report, groups, line); err != nil {
				return nil, &MalformedError{Reason: err.Error(), Output: output}
			}
			break
		}
	}

	if !report.hasCanvas {
		return nil, &MalformedError{
			Reason: "no canvas header found in benchmark output",
			Output: output,
		}
	}
	return report, nil
}

// parseToken splits a key=value token into a sample. A trailing comma is
// stripped; values carrying a numeric prefix become numeric samples, with
// mb/gb suffixes converted to bytes. Anything else keeps only the raw
// string for diagnostics.
func parseToken(value string) Sample {
	raw := strings.TrimSuffix(value, ",")

	groups := numericPattern.FindStringSubmatch(raw)
	if groups == nil {
		return Sample{Raw: raw}
	}
	number, err := strconv.ParseFloat(groups[1], 64)
	if err != nil {
		return Sample{Raw: raw}
	}

	unit := groups[2]
	switch strings.ToLower(unit) {
	case "mb":
		return Sample{Value: number * 1024 * 1024, Unit: "bytes", Raw: raw, Numeric: true}
	case "gb":
		return Sample{Value: number * 1024 * 1024 * 1024, Unit: "bytes", Raw: raw, Numeric: true}
	}
	return Sample{Value: number, Unit: unit, Raw: raw, Numeric: true}
}

func mustAtoi(s string) int {
	n, _ := strconv.Atoi(s) // pattern guarantees digits
	return n
}
