package models

import (
	"fmt"
	"math"
)

// KinematicParams are the experiment-level inputs a KinematicSpec is derived from.
type KinematicParams struct {
	PathLength          float64 // degrees travelled in one direction
	FrameSize           float64 // side of the stimulus frame, degrees
	MotionDurationMs    float64 // time for one traversal of the path
	FlashFrames         int
	RefreshRate         float64 // Hz
	StabilizationCycles int
	CueCycles           int
}

// KinematicSpec holds the per-trial motion parameters. It is built once per
// trial by NewKinematicSpec and passed by value afterwards.
type KinematicSpec struct {
	PathLength          float64 `json:"path_length"`
	FrameSize           float64 `json:"frame_size"`
	SpeedPerFrame       float64 `json:"speed_per_frame"`
	FlashFrames         int     `json:"flash_frames"`
	RefreshRate         float64 `json:"refresh_rate"`
	StabilizationCycles int     `json:"stabilization_cycles"`
	CueCycles           int     `json:"cue_cycles"`
}

// NewKinematicSpec validates p and derives the per-frame speed.
func NewKinematicSpec(p KinematicParams) (KinematicSpec, error) {
	// flashes must land strictly inside the frame
	if p.PathLength >= p.FrameSize {
		return KinematicSpec{}, fmt.Errorf("%w: path length %.3f must be smaller than frame size %.3f",
			ErrInvalidKinematics, p.PathLength, p.FrameSize)
	}
	if p.PathLength <= 0 {
		return KinematicSpec{}, fmt.Errorf("%w: path length must be positive, got %.3f", ErrInvalidKinematics, p.PathLength)
	}
	if p.RefreshRate <= 0 {
		return KinematicSpec{}, fmt.Errorf("%w: refresh rate must be positive, got %.3f", ErrInvalidKinematics, p.RefreshRate)
	}
	if p.FlashFrames < 0 {
		return KinematicSpec{}, fmt.Errorf("%w: flash frames must be non-negative, got %d", ErrInvalidKinematics, p.FlashFrames)
	}
	if p.StabilizationCycles < 0 || p.CueCycles < 0 {
		return KinematicSpec{}, fmt.Errorf("%w: cycle counts must be non-negative (stabilization %d, cue %d)",
			ErrInvalidKinematics, p.StabilizationCycles, p.CueCycles)
	}

	pathFrames := FramesFor(p.MotionDurationMs, p.RefreshRate)
	if pathFrames <= 0 {
		return KinematicSpec{}, fmt.Errorf("%w: motion duration %.1fms is shorter than one frame at %.1fHz",
			ErrInvalidKinematics, p.MotionDurationMs, p.RefreshRate)
	}

	return KinematicSpec{
		PathLength:          p.PathLength,
		FrameSize:           p.FrameSize,
		SpeedPerFrame:       p.PathLength / float64(pathFrames),
		FlashFrames:         p.FlashFrames,
		RefreshRate:         p.RefreshRate,
		StabilizationCycles: p.StabilizationCycles,
		CueCycles:           p.CueCycles,
	}, nil
}

// PathFrames is the number of display frames one traversal of the path takes.
func (k KinematicSpec) PathFrames() int {
	if k.SpeedPerFrame <= 0 {
		return 0
	}
	return int(math.Round(k.PathLength / k.SpeedPerFrame))
}

// CycleFrames is the length of one full oscillation: out, flash, back, flash.
func (k KinematicSpec) CycleFrames() int {
	return 2 * (k.PathFrames() + k.FlashFrames)
}

// FramesFor converts a duration in milliseconds to a whole number of display frames.
func FramesFor(durationMs, refreshRate float64) int {
	return int(math.Round(durationMs * refreshRate / 1000))
}

// MsFor converts a frame count back to milliseconds.
func MsFor(frames int, refreshRate float64) float64 {
	if refreshRate <= 0 {
		return 0
	}
	return float64(frames) * 1000 / refreshRate
}
