// Package gaze decides whether a tracker sample satisfies a fixation
// requirement.
package gaze

import (
	"math"
	"time"

	"github.com/fipslab/fips/internal/models"
)

// Sample is a single gaze reading in degrees.
type Sample struct {
	Pos   models.Point
	Valid bool
	Time  time.Time
}

// Result of checking one sample.
type Result int

const (
	OK Result = iota
	FailOutside
	FailInvalid
)

func (r Result) String() string {
	switch r {
	case OK:
		return "ok"
	case FailOutside:
		return "outside"
	default:
		return "invalid"
	}
}

// AbortReason maps a failed result onto the reason recorded for the trial.
func (r Result) AbortReason() models.AbortReason {
	switch r {
	case FailOutside:
		return models.AbortBadFixation
	case FailInvalid:
		return models.AbortTrackerInvalid
	default:
		return models.AbortNone
	}
}

// Region is an area gaze has to stay inside. Boundaries count as inside.
type Region interface {
	Contains(p models.Point) bool
}

// Circle is a round fixation region.
type Circle struct {
	Center models.Point
	Radius float64
}

func (c Circle) Contains(p models.Point) bool {
	return math.Hypot(p.X-c.Center.X, p.Y-c.Center.Y) <= c.Radius
}

// Rect is an axis-aligned fixation region.
type Rect struct {
	Center models.Point
	Width  float64
	Height float64
}

func (r Rect) Contains(p models.Point) bool {
	return math.Abs(p.X-r.Center.X) <= r.Width/2 && math.Abs(p.Y-r.Center.Y) <= r.Height/2
}

// Evaluate checks s against region. Validity is checked before position.
func Evaluate(s Sample, region Region) Result {
	if !s.Valid || math.IsNaN(s.Pos.X) || math.IsNaN(s.Pos.Y) {
		return FailInvalid
	}
	if !region.Contains(s.Pos) {
		return FailOutside
	}
	return OK
}
