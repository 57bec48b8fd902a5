// Package timeline composes the phases of one trial into contiguous ranges of
// display-frame indices.
package timeline

import (
	"fmt"

	"github.com/fipslab/fips/internal/models"
	"github.com/fipslab/fips/internal/motion"
)

// Phase is the trial phase a display frame belongs to.
type Phase int

const (
	FixateWait Phase = iota
	Stabilize
	Cue
	Response
	Done
)

func (p Phase) String() string {
	switch p {
	case FixateWait:
		return "FIXATE_WAIT"
	case Stabilize:
		return "STABILIZE"
	case Cue:
		return "CUE"
	case Response:
		return "RESPONSE"
	default:
		return "DONE"
	}
}

// RequiresFixation reports whether gaze must stay in the fixation region.
func (p Phase) RequiresFixation() bool {
	return p == FixateWait || p == Stabilize || p == Cue
}

// Range is a half-open interval of display frames.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len is the number of frames in r.
func (r Range) Len() int {
	return r.End - r.Start
}

// Contains reports whether frame lies in r.
func (r Range) Contains(frame int) bool {
	return frame >= r.Start && frame < r.End
}

// Params are the per-trial values the timeline is built from besides the
// kinematics. A zero RefreshRate means the one in the kinematic spec.
type Params struct {
	FixationDelayMs  float64
	CueTriggerCycle  int
	RefreshRate      float64
	ResponseWindowMs float64
}

// Timeline is the frame plan of one trial.
type Timeline struct {
	FixationWait  Range
	Stabilization Range
	Cue           Range
	Response      Range

	PathFrames  int
	CycleFrames int

	// CueFrame is the first frame of the last flash inside Cue, or -1 when
	// the cue phase holds no flash.
	CueFrame int
	CueSide  motion.Side

	// Motion covers Stabilization and Cue and is indexed from
	// Stabilization.Start.
	Motion *motion.PhaseMap
}

// Build converts spec and p into a trial timeline.
func Build(spec models.KinematicSpec, p Params) (*Timeline, error) {
	if p.RefreshRate == 0 {
		p.RefreshRate = spec.RefreshRate
	}
	if p.RefreshRate <= 0 {
		return nil, fmt.Errorf("%w: refresh rate must be positive, got %.3f", models.ErrInvalidTimelineConfig, p.RefreshRate)
	}
	if p.FixationDelayMs < 0 {
		return nil, fmt.Errorf("%w: negative fixation delay %.1fms", models.ErrInvalidTimelineConfig, p.FixationDelayMs)
	}
	if p.CueTriggerCycle < 0 {
		return nil, fmt.Errorf("%w: negative cue trigger cycle %d", models.ErrInvalidTimelineConfig, p.CueTriggerCycle)
	}
	if spec.StabilizationCycles < 0 {
		return nil, fmt.Errorf("%w: negative stabilization cycles %d", models.ErrInvalidTimelineConfig, spec.StabilizationCycles)
	}
	if p.ResponseWindowMs < 0 {
		return nil, fmt.Errorf("%w: negative response window %.1fms", models.ErrInvalidTimelineConfig, p.ResponseWindowMs)
	}

	pathFrames := spec.PathFrames()
	cycleFrames := 2 * (pathFrames + spec.FlashFrames)

	repeats := spec.StabilizationCycles + p.CueTriggerCycle
	// built even when no cycle is played so bad kinematics still fail here
	seq, err := motion.BuildMotionPhaseMap(pathFrames, spec.FlashFrames, max(repeats, 1), cycleFrames)
	if err != nil {
		return nil, fmt.Errorf("building motion sequence: %w", err)
	}

	f0 := models.FramesFor(p.FixationDelayMs, p.RefreshRate)
	tl := &Timeline{
		PathFrames:  pathFrames,
		CycleFrames: cycleFrames,
		CueFrame:    -1,
		Motion:      seq,
	}
	tl.FixationWait = Range{Start: 0, End: f0}
	tl.Stabilization = Range{Start: f0, End: f0 + spec.StabilizationCycles*cycleFrames}
	tl.Cue = Range{Start: tl.Stabilization.End, End: tl.Stabilization.End + p.CueTriggerCycle*cycleFrames}
	tl.Response = Range{Start: tl.Cue.End, End: tl.Cue.End + models.FramesFor(p.ResponseWindowMs, p.RefreshRate)}

	for _, r := range tl.Phases() {
		if r.Len() < 0 {
			return nil, fmt.Errorf("%w: phase [%d, %d) has negative length", models.ErrInvalidTimelineConfig, r.Start, r.End)
		}
	}

	base := tl.Stabilization.Start
	if w, ok := seq.LastFlashBefore(tl.Cue.Start-base, tl.Cue.End-base); ok {
		tl.CueFrame = base + w.Start
		tl.CueSide = w.Side
	}

	return tl, nil
}

// Phases returns the four phase ranges in playback order.
func (t *Timeline) Phases() [4]Range {
	return [4]Range{t.FixationWait, t.Stabilization, t.Cue, t.Response}
}

// Total is the number of display frames in the trial.
func (t *Timeline) Total() int {
	return t.Response.End
}

// PhaseAt returns the phase frame belongs to. Empty phases never match.
func (t *Timeline) PhaseAt(frame int) Phase {
	if frame < 0 {
		return FixateWait
	}
	for i, r := range t.Phases() {
		if r.Contains(frame) {
			return Phase(i)
		}
	}
	return Done
}

// MotionPhase classifies frame against the oscillation schedule. Frames
// outside stabilization and cue are idle.
func (t *Timeline) MotionPhase(frame int) motion.Phase {
	if !t.Stabilization.Contains(frame) && !t.Cue.Contains(frame) {
		return motion.Idle
	}
	return t.Motion.Phase(frame - t.Stabilization.Start)
}

// FlashAt returns the flash window containing frame, in trial frames.
func (t *Timeline) FlashAt(frame int) (motion.FlashWindow, bool) {
	if !t.Stabilization.Contains(frame) && !t.Cue.Contains(frame) {
		return motion.FlashWindow{}, false
	}
	base := t.Stabilization.Start
	w, ok := t.Motion.FlashAt(frame - base)
	if !ok {
		return motion.FlashWindow{}, false
	}
	w.Start += base
	w.Stop += base
	return w, true
}
