// Package report renders an HTML chart of saccade landing positions.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/fipslab/fips/internal/models"
)

// LandingChart plots where each recorded saccade ended, one series per
// target probe, together with the probe positions themselves.
func LandingChart(title string, outcomes []models.TrialOutcome) *charts.Scatter {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: "saccade end points (deg)",
		}),
		charts.WithXAxisOpts(opts.XAxis{
			Type: "value",
			Name: "x (deg)",
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Type: "value",
			Name: "y (deg)",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)

	landings := map[models.Target][]opts.ScatterData{}
	targets := make([]opts.ScatterData, 0)
	seen := map[models.Point]bool{}

	for _, o := range outcomes {
		if o.Outcome != models.OutcomeResponseRecorded || o.Saccade == nil || !o.Saccade.Ended {
			continue
		}
		end := o.Saccade.End
		landings[o.Target] = append(landings[o.Target], opts.ScatterData{
			Name:  fmt.Sprintf("run %d trial %d", o.Run, o.Trial),
			Value: []interface{}{end.X, end.Y},
		})
		if !seen[o.TargetPos] {
			seen[o.TargetPos] = true
			targets = append(targets, opts.ScatterData{
				Name:       string(o.Target),
				Value:      []interface{}{o.TargetPos.X, o.TargetPos.Y},
				Symbol:     "diamond",
				SymbolSize: 14,
			})
		}
	}

	for _, tg := range []models.Target{models.TargetTop, models.TargetBot} {
		scatter.AddSeries(fmt.Sprintf("landing %s", tg), landings[tg])
	}
	scatter.AddSeries("probes", targets)
	return scatter
}

// Write renders the landing chart to w.
func Write(w io.Writer, title string, outcomes []models.TrialOutcome) error {
	return LandingChart(title, outcomes).Render(w)
}

// WriteFile renders the landing chart to path.
func WriteFile(path, title string, outcomes []models.TrialOutcome) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report: %w", err)
	}
	if err := Write(f, title, outcomes); err != nil {
		f.Close()
		return fmt.Errorf("rendering report: %w", err)
	}
	return f.Close()
}
