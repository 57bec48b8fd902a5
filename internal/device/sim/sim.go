package sim

import (
	"time"

	"github.com/fipslab/fips/internal/models"
)

// Rig is a simulated display and participant sharing one clock.
type Rig struct {
	Clock       *Clock
	Display     *Display
	Participant *Participant
}

// NewRig wires a participant to watch a display refreshing at refreshRate.
func NewRig(cfg models.SimConfig, refreshRate float64, seed uint64) *Rig {
	clock := NewClock(time.Unix(0, 0).UTC())
	p := NewParticipant(cfg, clock, seed)
	return &Rig{
		Clock:       clock,
		Display:     NewDisplay(clock, refreshRate, p),
		Participant: p,
	}
}
