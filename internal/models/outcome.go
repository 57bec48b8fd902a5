package models

import "time"

// Point is a position in degrees of visual angle relative to screen centre,
// y pointing up.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p shifted by q.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// TrialStatus is the terminal state of the runner.
type TrialStatus string

const (
	StatusComplete TrialStatus = "complete"
	StatusAborted  TrialStatus = "aborted"
)

// Outcome classifies what the trial produced.
type Outcome string

const (
	OutcomeResponseRecorded Outcome = "response_recorded"
	OutcomeNoResponse       Outcome = "no_response"
	OutcomeAborted          Outcome = "aborted"
)

// AbortReason says why a trial stopped early.
type AbortReason string

const (
	AbortNone           AbortReason = ""
	AbortBadFixation    AbortReason = "bad fixation"
	AbortTrackerInvalid AbortReason = "tracker invalid"
	AbortUserEscape     AbortReason = "user escape"
	AbortSetupFailed    AbortReason = "setup failed"
	AbortDeviceFailed   AbortReason = "device failed"
)

// Saccade is a detected eye movement during the response window.
type Saccade struct {
	StartFrame int       `json:"start_frame"`
	EndFrame   int       `json:"end_frame"`
	Start      Point     `json:"start"`
	End        Point     `json:"end"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
	Ended      bool      `json:"ended"`
}

// TrialOutcome is accumulated by the trial runner and handed to a result
// sink when the trial ends. Aborted trials produce one too.
type TrialOutcome struct {
	Subject   string         `json:"subject"`
	Session   string         `json:"session"`
	Run       int            `json:"run"`
	Trial     int            `json:"trial"`
	Attempt   int            `json:"attempt"`
	Condition TrialCondition `json:"condition"`

	Status      TrialStatus `json:"status"`
	Outcome     Outcome     `json:"outcome"`
	AbortReason AbortReason `json:"abort_reason,omitempty"`
	AbortFrame  int         `json:"abort_frame"`
	Error       *TrialError `json:"error,omitempty"`
	TrialType   string      `json:"trial_type"`
	Fixation    string      `json:"fixation"`

	Target         Target   `json:"target"`
	TargetPos      Point    `json:"target_pos"`
	TargetPosPx    Point    `json:"target_pos_px"`
	Saccade        *Saccade `json:"saccade,omitempty"`
	SaccadeStartPx Point    `json:"saccade_start_px"`
	SaccadeEndPx   Point    `json:"saccade_end_px"`
	LatencyMs      float64  `json:"latency_ms"`
	DurationMs     float64  `json:"saccade_duration_ms"`

	CueFrame        int `json:"cue_frame"`
	TotalFrames     int `json:"total_frames"`
	FramesPresented int `json:"frames_presented"`
	HeldFrames      int `json:"held_frames"`

	StartedAt       time.Time `json:"started_at"`
	ResponseOnsetAt time.Time `json:"response_onset_at"`
	EndedAt         time.Time `json:"ended_at"`
}

// Completed reports whether the trial ran to the end of its response window.
func (o *TrialOutcome) Completed() bool {
	return o.Status == StatusComplete
}
