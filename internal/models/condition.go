package models

import "fmt"

// Target names the probe the participant is cued to look at.
type Target string

const (
	TargetTop Target = "top"
	TargetBot Target = "bot"
)

// Valid reports whether t is a known probe.
func (t Target) Valid() bool {
	return t == TargetTop || t == TargetBot
}

// Quadrant selects on which side of fixation the stimulus is shown.
type Quadrant int

const (
	QuadrantLeft  Quadrant = 1
	QuadrantRight Quadrant = 2
)

// Sign is -1 for the left quadrant and +1 for the right one.
func (q Quadrant) Sign() float64 {
	if q == QuadrantLeft {
		return -1
	}
	return 1
}

// Cell is one combination of the crossed design factors.
type Cell struct {
	Quadrant         Quadrant `json:"quadrant"`
	MotionDurationMs float64  `json:"motion_duration_ms"`
	Target           Target   `json:"target"`
}

// TrialCondition is one fully drawn trial: the crossed design factors plus
// the per-trial random draws.
type TrialCondition struct {
	Block            int      `json:"block"`
	Index            int      `json:"index"`
	Quadrant         Quadrant `json:"quadrant"`
	MotionDurationMs float64  `json:"motion_duration_ms"`
	Target           Target   `json:"target"`
	Catch            bool     `json:"catch"`
	FixationDelayMs  float64  `json:"fixation_delay_ms"`
	CueCycles        int      `json:"cue_cycles"`
	Attempt          int      `json:"attempt"`
}

// Validate checks the fields that do not depend on the monitor.
func (c TrialCondition) Validate() error {
	if c.Quadrant != QuadrantLeft && c.Quadrant != QuadrantRight {
		return fmt.Errorf("unknown quadrant %d", c.Quadrant)
	}
	if !c.Target.Valid() {
		return fmt.Errorf("unknown target %q", c.Target)
	}
	if c.MotionDurationMs <= 0 {
		return fmt.Errorf("motion duration must be positive, got %.1f", c.MotionDurationMs)
	}
	if c.FixationDelayMs < 0 {
		return fmt.Errorf("fixation delay must be non-negative, got %.1f", c.FixationDelayMs)
	}
	if c.CueCycles < 0 {
		return fmt.Errorf("cue cycles must be non-negative, got %d", c.CueCycles)
	}
	return nil
}

// TrialType is "catch" when the frame is hidden, "test" otherwise.
func (c TrialCondition) TrialType() string {
	if c.Catch {
		return "catch"
	}
	return "test"
}
