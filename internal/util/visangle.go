package util

import (
	"fmt"
	"math"

	"github.com/fipslab/fips/internal/models"
)

// Converter maps degrees of visual angle to screen pixels for one monitor.
// Pixel coordinates keep the degree convention: origin at screen centre,
// y up.
type Converter struct {
	pxPerCm    float64
	distanceCm float64
}

// NewConverter builds a Converter from a monitor profile. The horizontal
// size is used for both axes, assuming square pixels.
func NewConverter(m models.MonitorProfile) (*Converter, error) {
	if m.SizeCm[0] <= 0 || m.SizePx[0] <= 0 {
		return nil, fmt.Errorf("monitor %q: width must be positive (%.1fcm, %dpx)", m.Name, m.SizeCm[0], m.SizePx[0])
	}
	if m.DistanceCm <= 0 {
		return nil, fmt.Errorf("monitor %q: viewing distance must be positive, got %.1fcm", m.Name, m.DistanceCm)
	}
	return &Converter{
		pxPerCm:    float64(m.SizePx[0]) / m.SizeCm[0],
		distanceCm: m.DistanceCm,
	}, nil
}

// Deg2Pix converts a length in degrees to pixels.
func (c *Converter) Deg2Pix(deg float64) float64 {
	cm := deg * c.distanceCm * math.Pi / 180
	return cm * c.pxPerCm
}

// Pix2Deg converts a length in pixels to degrees.
func (c *Converter) Pix2Deg(px float64) float64 {
	cm := px / c.pxPerCm
	return cm / (c.distanceCm * math.Pi / 180)
}

// PointToPix converts a point in degrees to pixels.
func (c *Converter) PointToPix(p models.Point) models.Point {
	return models.Point{X: c.Deg2Pix(p.X), Y: c.Deg2Pix(p.Y)}
}
