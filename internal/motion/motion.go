// Package motion turns the kinematics of an oscillating stimulus frame into a
// frame-indexed classification of what the frame is doing.
//
// One cycle is laid out as
//
//	[0, P)          forward
//	[P, P+F)        flash at the far end
//	[P+F, 2P+F)     backward
//	[2P+F, 2P+2F)   flash at the near end
//	[2P+2F, C)      idle
//
// where P is the path length in frames, F the flash length and C the cycle
// length. The cycle is repeated RepeatCount times, replica r starting at r*C.
package motion

import (
	"fmt"

	"github.com/fipslab/fips/internal/models"
)

// Phase is what the stimulus frame does on a given display frame.
type Phase int

const (
	Idle Phase = iota
	Forward
	Backward
	Flash
)

func (p Phase) String() string {
	switch p {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	case Flash:
		return "flash"
	default:
		return "idle"
	}
}

// Side is the end of the path a flash happens at.
type Side string

const (
	SideFar  Side = "far"
	SideNear Side = "near"
)

// FlashWindow is one flash sub-range [Start, Stop).
type FlashWindow struct {
	Start int
	Stop  int
	Side  Side
}

// PhaseMap is the motion schedule for RepeatCount cycles. Forward, Backward
// and Flash are sorted and pairwise disjoint; idle frames belong to none of
// them.
type PhaseMap struct {
	PathFrames  int
	FlashFrames int
	RepeatCount int
	CycleFrames int

	Forward  []int
	Backward []int
	Flash    []int
	Flashes  []FlashWindow
}

// BuildMotionPhaseMap lays out repeatCount oscillation cycles. The result only
// depends on its arguments.
func BuildMotionPhaseMap(pathFrames, flashFrames, repeatCount, cycleFrames int) (*PhaseMap, error) {
	if pathFrames <= 0 {
		return nil, fmt.Errorf("%w: path frames must be positive, got %d", models.ErrInvalidKinematics, pathFrames)
	}
	if flashFrames < 0 {
		return nil, fmt.Errorf("%w: flash frames must be non-negative, got %d", models.ErrInvalidKinematics, flashFrames)
	}
	if repeatCount < 1 {
		return nil, fmt.Errorf("%w: repeat count must be at least 1, got %d", models.ErrInvalidKinematics, repeatCount)
	}
	active := 2*pathFrames + 2*flashFrames
	if cycleFrames < active {
		return nil, fmt.Errorf("%w: cycle of %d frames cannot hold %d frames of motion and flashes",
			models.ErrInvalidKinematics, cycleFrames, active)
	}

	m := &PhaseMap{
		PathFrames:  pathFrames,
		FlashFrames: flashFrames,
		RepeatCount: repeatCount,
		CycleFrames: cycleFrames,
		Forward:     make([]int, 0, repeatCount*pathFrames),
		Backward:    make([]int, 0, repeatCount*pathFrames),
		Flash:       make([]int, 0, repeatCount*2*flashFrames),
	}

	farStart := pathFrames
	backStart := pathFrames + flashFrames
	nearStart := 2*pathFrames + flashFrames

	for r := 0; r < repeatCount; r++ {
		off := r * cycleFrames
		m.Forward = appendRange(m.Forward, off, off+pathFrames)
		m.Flash = appendRange(m.Flash, off+farStart, off+farStart+flashFrames)
		m.Backward = appendRange(m.Backward, off+backStart, off+backStart+pathFrames)
		m.Flash = appendRange(m.Flash, off+nearStart, off+nearStart+flashFrames)

		if flashFrames > 0 {
			m.Flashes = append(m.Flashes,
				FlashWindow{Start: off + farStart, Stop: off + farStart + flashFrames, Side: SideFar},
				FlashWindow{Start: off + nearStart, Stop: off + nearStart + flashFrames, Side: SideNear},
			)
		}
	}

	return m, nil
}

func appendRange(dst []int, start, stop int) []int {
	for i := start; i < stop; i++ {
		dst = append(dst, i)
	}
	return dst
}

// Len is the number of frames covered by all replicas.
func (m *PhaseMap) Len() int {
	return m.RepeatCount * m.CycleFrames
}

// Phase classifies frame. Frames outside [0, Len()) are idle.
func (m *PhaseMap) Phase(frame int) Phase {
	if frame < 0 || frame >= m.Len() {
		return Idle
	}
	f := frame % m.CycleFrames
	p, fl := m.PathFrames, m.FlashFrames
	switch {
	case f < p:
		return Forward
	case f < p+fl:
		return Flash
	case f < 2*p+fl:
		return Backward
	case f < 2*p+2*fl:
		return Flash
	default:
		return Idle
	}
}

// FlashAt returns the flash window containing frame, if any.
func (m *PhaseMap) FlashAt(frame int) (FlashWindow, bool) {
	if m.Phase(frame) != Flash {
		return FlashWindow{}, false
	}
	for _, w := range m.Flashes {
		if frame >= w.Start && frame < w.Stop {
			return w, true
		}
	}
	return FlashWindow{}, false
}

// LastFlashBefore returns the flash window with the highest start that lies
// in [from, before). It reports false if there is none.
func (m *PhaseMap) LastFlashBefore(from, before int) (FlashWindow, bool) {
	for i := len(m.Flashes) - 1; i >= 0; i-- {
		w := m.Flashes[i]
		if w.Start < before && w.Start >= from {
			return w, true
		}
	}
	return FlashWindow{}, false
}
