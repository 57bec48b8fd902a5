package sim

import (
	"context"
	"time"

	"github.com/fipslab/fips/internal/device"
	"github.com/fipslab/fips/internal/models"
)

// ProbeDraw is one DrawProbe call.
type ProbeDraw struct {
	ID    models.Target
	Pos   models.Point
	State device.ProbeState
}

// Scene is everything drawn between two Present calls.
type Scene struct {
	Fixation bool
	Frame    *models.Point
	Probes   []ProbeDraw
}

// Observer is told about every presented scene.
type Observer interface {
	Observe(s Scene, at time.Time)
}

// Display is a simulated vsync display.
type Display struct {
	clock     *Clock
	period    time.Duration
	observers []Observer

	scene     Scene
	presented int
}

// NewDisplay returns a display refreshing at refreshRate Hz.
func NewDisplay(clock *Clock, refreshRate float64, observers ...Observer) *Display {
	return &Display{
		clock:     clock,
		period:    time.Duration(float64(time.Second) / refreshRate),
		observers: observers,
	}
}

func (d *Display) DrawFixation() {
	d.scene.Fixation = true
}

func (d *Display) DrawFrame(pos models.Point) {
	p := pos
	d.scene.Frame = &p
}

func (d *Display) DrawProbe(id models.Target, pos models.Point, state device.ProbeState) {
	d.scene.Probes = append(d.scene.Probes, ProbeDraw{ID: id, Pos: pos, State: state})
}

// Present advances the clock by one refresh period.
func (d *Display) Present(ctx context.Context) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	at := d.clock.Advance(d.period)
	for _, o := range d.observers {
		o.Observe(d.scene, at)
	}
	d.scene = Scene{}
	d.presented++
	return at, nil
}

// Presented is the number of frames swapped so far.
func (d *Display) Presented() int {
	return d.presented
}
