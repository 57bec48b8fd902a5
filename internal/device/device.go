// Package device defines the hardware the trial runner drives: a display
// synchronised to vertical blank, an eye tracker and a TTL marker line.
package device

import (
	"context"
	"errors"
	"time"

	"github.com/fipslab/fips/internal/gaze"
	"github.com/fipslab/fips/internal/models"
)

// ProbeState is the colour state of a probe.
type ProbeState int

const (
	ProbeNormal ProbeState = iota
	ProbeCued
)

func (s ProbeState) String() string {
	if s == ProbeCued {
		return "cued"
	}
	return "normal"
}

// Renderer draws into the back buffer and swaps it on Present.
type Renderer interface {
	// DrawFixation draws the fixation cross at screen centre.
	DrawFixation()

	// DrawFrame draws the stimulus frame centred on pos.
	DrawFrame(pos models.Point)

	// DrawProbe draws probe id at pos.
	DrawProbe(id models.Target, pos models.Point, state ProbeState)

	// Present swaps buffers. It blocks until the next vertical blank and
	// returns the time of the swap.
	Present(ctx context.Context) (time.Time, error)
}

// SaccadeEvent is a saccade boundary reported by the tracker.
type SaccadeEvent struct {
	Pos  models.Point
	Time time.Time
}

// GazeSource is an eye tracker. None of its methods block.
type GazeSource interface {
	// PollGaze returns the most recent gaze sample.
	PollGaze(ctx context.Context) (gaze.Sample, error)

	// PollSaccadeStart reports a saccade onset detected since the last call.
	PollSaccadeStart(ctx context.Context) (SaccadeEvent, bool, error)

	// PollSaccadeEnd reports a saccade offset detected since the last call.
	PollSaccadeEnd(ctx context.Context) (SaccadeEvent, bool, error)
}

// MarkerCode is the event sent on the trigger line.
type MarkerCode int

const (
	MarkTrialStart MarkerCode = iota + 1
	MarkStimulusOnset
	MarkCue
	MarkResponseOnset
	MarkTrialEnd
)

func (c MarkerCode) String() string {
	switch c {
	case MarkTrialStart:
		return "trial_start"
	case MarkStimulusOnset:
		return "stimulus_onset"
	case MarkCue:
		return "cue"
	case MarkResponseOnset:
		return "response_onset"
	case MarkTrialEnd:
		return "trial_end"
	default:
		return "unknown"
	}
}

// Marker sends event codes to an external recording system.
type Marker interface {
	Mark(code MarkerCode) error
	Close() error
}

// NopMarker discards every mark.
type NopMarker struct{}

func (NopMarker) Mark(MarkerCode) error { return nil }
func (NopMarker) Close() error          { return nil }

// MultiMarker sends every mark to each of its markers.
type MultiMarker []Marker

func (m MultiMarker) Mark(code MarkerCode) error {
	var errs []error
	for _, mk := range m {
		errs = append(errs, mk.Mark(code))
	}
	return errors.Join(errs...)
}

func (m MultiMarker) Close() error {
	var errs []error
	for _, mk := range m {
		errs = append(errs, mk.Close())
	}
	return errors.Join(errs...)
}
