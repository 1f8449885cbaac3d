package scenario

import "guardrail/internal/tolerance"

// Builtin returns the scenario definitions shipped with the tool. The
// tolerance tables were tuned against recorded runs of each producer;
// a config file can override them per metric.
func Builtin() []Scenario {
	return []Scenario{
		{
			Name:        "path_renderer2d",
			Description: "PathRenderer2D 4K brush benchmark",
			Binary:      "path_renderer2d_benchmark",
			BuildTarget: "path_renderer2d_benchmark",
			Args: []string{
				"--canvas=3840x2160",
				"--metrics",
				"--write-json={work}/renderer_metrics.json",
			},
			ReportFile:   "renderer_metrics.json",
			Format:       FormatJSON,
			TextFallback: true,
			Timeout:      DefaultTimeout,
			MetricRoots: []MetricRoot{
				{Prefix: "full", Path: "frames.fullRepaint"},
				{Prefix: "incremental", Path: "frames.incremental"},
			},
			MetadataPaths: []string{"canvas", "progressive", "command", "metricsEnabled"},
			Tolerances: map[string]tolerance.Spec{
				"full.avgMs":                           {Direction: tolerance.IncreaseBad, Percent: 15.0, Absolute: 1.5},
				"full.fps":                             {Direction: tolerance.DecreaseBad, Percent: 15.0, Absolute: 20.0},
				"incremental.avgMs":                    {Direction: tolerance.IncreaseBad, Percent: 20.0, Absolute: 0.5},
				"incremental.fps":                      {Direction: tolerance.DecreaseBad, Percent: 20.0, Absolute: 100.0},
				"incremental.damage.averageCoverage":   {Direction: tolerance.IncreaseBad, Percent: 25.0, Absolute: 0.05},
				"incremental.damage.averageTilesDirty": {Direction: tolerance.IncreaseBad, Percent: 35.0, Absolute: 25.0},
			},
		},
		{
			Name:        "pixel_noise_software",
			Description: "Pixel noise software presenter",
			Binary:      "pixel_noise_example",
			BuildTarget: "pixel_noise_example",
			Args: []string{
				"--headless",
				"--width=1280",
				"--height=720",
				"--frames=120",
				"--present-refresh=0",
				"--report-metrics",
				"--report-interval=0.5",
				"--present-call-metric",
				"--seed=123456789",
				"--budget-present-ms=20",
				"--budget-render-ms=20",
				"--min-fps=50",
				"--write-baseline={work}/pixel_noise_metrics.json",
			},
			ReportFile: "pixel_noise_metrics.json",
			Format:     FormatJSON,
			Timeout:    DefaultTimeout,
			MetricRoots: []MetricRoot{
				{Prefix: "summary", Path: "summary"},
				{Prefix: "tileStats", Path: "tileStats"},
			},
			MetadataPaths: []string{"command", "tileStats.tileSize", "tileStats.backendKind", "residency.overallStatus"},
			Tolerances: map[string]tolerance.Spec{
				"summary.averageFps":           {Direction: tolerance.DecreaseBad, Percent: 12.0, Absolute: 15.0},
				"summary.averageRenderMs":      {Direction: tolerance.IncreaseBad, Percent: 20.0, Absolute: 0.4},
				"summary.averagePresentCallMs": {Direction: tolerance.IncreaseBad, Percent: 25.0, Absolute: 3.0},
				"tileStats.averageBytesCopied": {Direction: tolerance.IncreaseBad, Percent: 25.0, Absolute: 200000.0},
			},
		},
	}
}
