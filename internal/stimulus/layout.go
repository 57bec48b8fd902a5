// Package stimulus places the fixation cross, the moving frame and the two
// probes on screen for a given quadrant.
package stimulus

import (
	"github.com/fipslab/fips/internal/gaze"
	"github.com/fipslab/fips/internal/models"
)

// Layout holds the trial-start positions, in degrees, of every stimulus.
type Layout struct {
	Fixation   models.Point
	FrameStart models.Point
	ProbeTop   models.Point
	ProbeBot   models.Point
}

// NewLayout computes the layout for quadrant q. The frame starts at the near
// end of its path; the top probe sits towards the far end, above the path,
// and the bottom probe mirrors it.
func NewLayout(cfg models.StimulusConfig, q models.Quadrant) Layout {
	shift := models.Point{X: q.Sign() * cfg.QuadrantShiftDeg}
	return Layout{
		FrameStart: models.Point{X: -cfg.PathLengthDeg / 2, Y: cfg.FrameYShiftDeg}.Add(shift),
		ProbeTop:   models.Point{X: cfg.ProbeXShiftDeg, Y: cfg.FrameYShiftDeg + cfg.ProbeYShiftDeg}.Add(shift),
		ProbeBot:   models.Point{X: -cfg.ProbeXShiftDeg, Y: cfg.FrameYShiftDeg - cfg.ProbeYShiftDeg}.Add(shift),
	}
}

// Probe returns the position of probe t.
func (l Layout) Probe(t models.Target) models.Point {
	if t == models.TargetBot {
		return l.ProbeBot
	}
	return l.ProbeTop
}

// FixationRegion builds the gaze region around the fixation cross.
func FixationRegion(cfg models.StimulusConfig) gaze.Region {
	if cfg.FixationRegion == models.RegionRect {
		side := 2 * cfg.FixationRadiusDeg
		return gaze.Rect{Width: side, Height: side}
	}
	return gaze.Circle{Radius: cfg.FixationRadiusDeg}
}
