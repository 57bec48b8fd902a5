package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fipslab/fips/internal/device"
	"github.com/fipslab/fips/internal/gaze"
	"github.com/fipslab/fips/internal/models"
	"github.com/fipslab/fips/internal/motion"
	"github.com/fipslab/fips/internal/stimulus"
	"github.com/fipslab/fips/internal/timeline"
	"github.com/fipslab/fips/internal/util"
)

// Devices groups the hardware a trial runs on.
type Devices struct {
	Renderer device.Renderer
	Gaze     device.GazeSource
	Marker   device.Marker
}

// RunnerConfig holds the session-wide settings of the trial runner.
type RunnerConfig struct {
	Subject     int
	Session     int
	RefreshRate float64
	Stimulus    models.StimulusConfig
	Timing      models.TimingConfig
	Gaze        models.GazeConfig
}

// RunnerConfigFrom extracts the runner settings from an experiment config.
func RunnerConfigFrom(cfg models.ExperimentConfig, refreshRate float64) RunnerConfig {
	return RunnerConfig{
		Subject:     cfg.Subject,
		Session:     cfg.Session,
		RefreshRate: refreshRate,
		Stimulus:    cfg.Stimulus,
		Timing:      cfg.Timing,
		Gaze:        cfg.Gaze,
	}
}

// DefaultTrialRunner plays one trial frame by frame.
type DefaultTrialRunner struct {
	cfg    RunnerConfig
	dev    Devices
	conv   *util.Converter
	region gaze.Region
}

// NewTrialRunner creates a trial runner. conv may be nil, in which case the
// pixel columns of the outcome stay zero.
func NewTrialRunner(cfg RunnerConfig, dev Devices, conv *util.Converter) *DefaultTrialRunner {
	if dev.Marker == nil {
		dev.Marker = device.NopMarker{}
	}
	return &DefaultTrialRunner{
		cfg:    cfg,
		dev:    dev,
		conv:   conv,
		region: stimulus.FixationRegion(cfg.Stimulus),
	}
}

// playback is the mutable state of one trial.
type playback struct {
	out    *models.TrialOutcome
	tl     *timeline.Timeline
	layout stimulus.Layout
	speed  float64
	pos    models.Point
	cued   bool
	held   int
}

// Execute runs the trial and returns its outcome. Failures inside the trial
// are recorded on the outcome; the returned error is always nil.
func (r *DefaultTrialRunner) Execute(ctx context.Context, cond models.TrialCondition) (*models.TrialOutcome, error) {
	out := &models.TrialOutcome{
		Subject:   fmt.Sprintf("%02d", r.cfg.Subject),
		Session:   fmt.Sprintf("%d", r.cfg.Session),
		Run:       cond.Block + 1,
		Trial:     cond.Index,
		Attempt:   cond.Attempt,
		Condition: cond,
		TrialType: cond.TrialType(),
		Fixation:  "good",
		Target:    cond.Target,
		CueFrame:  -1,
	}

	// Phase 1: Setup
	tl, spec, err := r.setup(cond)
	if err != nil {
		r.fail(out, models.AbortSetupFailed, models.ErrorTypeOf(err), err)
		slog.Debug("trial setup failed", "run", out.Run, "trial", out.Trial, "error", err)
		return out, nil
	}

	layout := stimulus.NewLayout(r.cfg.Stimulus, cond.Quadrant)
	pb := &playback{
		out:    out,
		tl:     tl,
		layout: layout,
		speed:  spec.SpeedPerFrame,
		pos:    layout.FrameStart,
	}
	out.TotalFrames = tl.Total()
	out.CueFrame = tl.CueFrame
	out.TargetPos = layout.Probe(cond.Target)
	if r.conv != nil {
		out.TargetPosPx = r.conv.PointToPix(out.TargetPos)
	}

	slog.Debug("trial started",
		"run", out.Run,
		"trial", out.Trial,
		"quadrant", cond.Quadrant,
		"target", cond.Target,
		"catch", cond.Catch,
		"total_frames", tl.Total(),
		"cue_frame", tl.CueFrame)
	r.mark(device.MarkTrialStart)

	// Phase 2: Fixation, stabilization and cue
	if !r.playFixated(ctx, pb) {
		r.mark(device.MarkTrialEnd)
		return out, nil
	}

	// Phase 3: Response
	if !r.awaitSaccade(ctx, pb) {
		r.mark(device.MarkTrialEnd)
		return out, nil
	}

	r.finish(out)
	r.mark(device.MarkTrialEnd)

	slog.Debug("trial finished",
		"run", out.Run,
		"trial", out.Trial,
		"outcome", out.Outcome,
		"latency_ms", out.LatencyMs,
		"held_frames", out.HeldFrames)
	return out, nil
}

func (r *DefaultTrialRunner) setup(cond models.TrialCondition) (*timeline.Timeline, models.KinematicSpec, error) {
	if err := cond.Validate(); err != nil {
		return nil, models.KinematicSpec{}, fmt.Errorf("%w: %s", models.ErrInvalidTimelineConfig, err)
	}

	spec, err := models.NewKinematicSpec(models.KinematicParams{
		PathLength:          r.cfg.Stimulus.PathLengthDeg,
		FrameSize:           r.cfg.Stimulus.FrameSizeDeg,
		MotionDurationMs:    cond.MotionDurationMs,
		FlashFrames:         r.cfg.Timing.FlashFrames,
		RefreshRate:         r.cfg.RefreshRate,
		StabilizationCycles: r.cfg.Timing.StabilizationCycles,
		CueCycles:           cond.CueCycles,
	})
	if err != nil {
		return nil, spec, err
	}

	tl, err := timeline.Build(spec, timeline.Params{
		FixationDelayMs:  cond.FixationDelayMs,
		CueTriggerCycle:  cond.CueCycles,
		RefreshRate:      r.cfg.RefreshRate,
		ResponseWindowMs: r.cfg.Timing.ResponseWindowMs,
	})
	if err != nil {
		return nil, spec, err
	}
	return tl, spec, nil
}

// playFixated runs every frame before the response window. The schedule
// cursor only advances on frames whose gaze sample passed the gate. It
// reports false if the trial was aborted.
func (r *DefaultTrialRunner) playFixated(ctx context.Context, pb *playback) bool {
	tl := pb.tl
	cursor := 0
	for cursor < tl.Response.Start {
		if ctx.Err() != nil {
			r.abort(pb.out, models.AbortUserEscape, cursor)
			return false
		}

		sample, err := r.dev.Gaze.PollGaze(ctx)
		if err != nil {
			r.deviceFailed(ctx, pb.out, models.ErrTrackerFailed, cursor, fmt.Errorf("polling gaze: %w", err))
			return false
		}

		phase := tl.PhaseAt(cursor)
		if res := gaze.Evaluate(sample, r.region); res != gaze.OK {
			pb.out.Fixation = "bad"
			pb.held++
			if r.cfg.Gaze.Policy != models.GazeHold || pb.held >= r.cfg.Gaze.MaxHoldFrames {
				r.abort(pb.out, res.AbortReason(), cursor)
				slog.Debug("trial aborted on gaze check",
					"run", pb.out.Run,
					"trial", pb.out.Trial,
					"frame", cursor,
					"phase", phase,
					"result", res)
				return false
			}
			pb.out.HeldFrames++
			r.drawHold(pb, cursor, phase)
		} else {
			pb.held = 0
			r.drawScheduled(pb, cursor, phase)
		}

		if !r.present(ctx, pb.out, cursor) {
			return false
		}

		if pb.held == 0 {
			if cursor == tl.Stabilization.Start && tl.Cue.End > tl.Stabilization.Start {
				r.mark(device.MarkStimulusOnset)
			}
			if cursor == tl.CueFrame {
				r.mark(device.MarkCue)
			}
			cursor++
		}
	}
	return true
}

// drawScheduled renders schedule frame cursor and advances the frame
// position according to the motion map.
func (r *DefaultTrialRunner) drawScheduled(pb *playback, cursor int, phase timeline.Phase) {
	r.dev.Renderer.DrawFixation()
	if phase != timeline.Stabilize && phase != timeline.Cue {
		return
	}

	if cursor == pb.tl.CueFrame {
		pb.cued = true
	}

	switch pb.tl.MotionPhase(cursor) {
	case motion.Forward:
		pb.pos.X += pb.speed
	case motion.Backward:
		pb.pos.X -= pb.speed
	case motion.Flash:
		r.drawProbes(pb, cursor)
		return
	}
	if !pb.out.Condition.Catch {
		r.dev.Renderer.DrawFrame(pb.pos)
	}
}

// drawHold redraws the current state without advancing it.
func (r *DefaultTrialRunner) drawHold(pb *playback, cursor int, phase timeline.Phase) {
	r.dev.Renderer.DrawFixation()
	if phase != timeline.Stabilize && phase != timeline.Cue {
		return
	}
	if pb.tl.MotionPhase(cursor) == motion.Flash {
		r.drawProbes(pb, cursor)
		return
	}
	if !pb.out.Condition.Catch {
		r.dev.Renderer.DrawFrame(pb.pos)
	}
}

// drawProbes draws the probes of the flash at cursor. With end-specific
// probes only the top probe flashes at the far end and the bottom one at the
// near end.
func (r *DefaultTrialRunner) drawProbes(pb *playback, cursor int) {
	ids := []models.Target{models.TargetTop, models.TargetBot}
	if r.cfg.Stimulus.EndSpecificProbes {
		if w, ok := pb.tl.FlashAt(cursor); ok {
			ids = ids[:1]
			if w.Side == motion.SideNear {
				ids = []models.Target{models.TargetBot}
			}
		}
	}
	for _, id := range ids {
		state := device.ProbeNormal
		if pb.cued && id == pb.out.Target {
			state = device.ProbeCued
		}
		r.dev.Renderer.DrawProbe(id, pb.layout.Probe(id), state)
	}
}

// awaitSaccade runs the response window: fixation is released and the
// tracker is polled once per frame for the saccade onset, then its offset.
// It reports false if the trial was aborted.
func (r *DefaultTrialRunner) awaitSaccade(ctx context.Context, pb *playback) bool {
	tl := pb.tl
	out := pb.out
	pb.cued = false

	for frame := tl.Response.Start; frame < tl.Response.End; frame++ {
		if ctx.Err() != nil {
			r.abort(out, models.AbortUserEscape, frame)
			return false
		}

		if out.Saccade == nil {
			ev, ok, err := r.dev.Gaze.PollSaccadeStart(ctx)
			if err != nil {
				r.deviceFailed(ctx, out, models.ErrTrackerFailed, frame, fmt.Errorf("polling saccade start: %w", err))
				return false
			}
			if ok {
				out.Saccade = &models.Saccade{StartFrame: frame, Start: ev.Pos, StartedAt: ev.Time}
			}
		}
		ended := false
		if out.Saccade != nil && !out.Saccade.Ended {
			ev, ok, err := r.dev.Gaze.PollSaccadeEnd(ctx)
			if err != nil {
				r.deviceFailed(ctx, out, models.ErrTrackerFailed, frame, fmt.Errorf("polling saccade end: %w", err))
				return false
			}
			if ok {
				out.Saccade.EndFrame = frame
				out.Saccade.End = ev.Pos
				out.Saccade.EndedAt = ev.Time
				out.Saccade.Ended = true
				ended = true
			}
		}
		// The onset frame is always presented; latency is measured from it.
		if ended && frame != tl.Response.Start {
			return true
		}

		if !r.present(ctx, out, frame) {
			return false
		}
		if frame == tl.Response.Start {
			out.ResponseOnsetAt = out.EndedAt
			r.mark(device.MarkResponseOnset)
		}
		if ended {
			return true
		}
	}
	return true
}

// present swaps the display and keeps the frame counters current.
func (r *DefaultTrialRunner) present(ctx context.Context, out *models.TrialOutcome, frame int) bool {
	at, err := r.dev.Renderer.Present(ctx)
	if err != nil {
		r.deviceFailed(ctx, out, models.ErrDisplayFailed, frame, fmt.Errorf("presenting frame %d: %w", frame, err))
		return false
	}
	if out.FramesPresented == 0 {
		out.StartedAt = at
	}
	out.FramesPresented++
	out.EndedAt = at
	return true
}

func (r *DefaultTrialRunner) finish(out *models.TrialOutcome) {
	out.Status = models.StatusComplete
	out.AbortFrame = -1

	s := out.Saccade
	if s == nil {
		out.Outcome = models.OutcomeNoResponse
		return
	}
	out.Outcome = models.OutcomeResponseRecorded
	if !out.ResponseOnsetAt.IsZero() {
		out.LatencyMs = msBetween(out.ResponseOnsetAt, s.StartedAt)
	}
	if s.Ended {
		out.DurationMs = msBetween(s.StartedAt, s.EndedAt)
	}
	if r.conv != nil {
		out.SaccadeStartPx = r.conv.PointToPix(s.Start)
		if s.Ended {
			out.SaccadeEndPx = r.conv.PointToPix(s.End)
		}
	}
}

func (r *DefaultTrialRunner) abort(out *models.TrialOutcome, reason models.AbortReason, frame int) {
	out.Status = models.StatusAborted
	out.Outcome = models.OutcomeAborted
	out.AbortReason = reason
	out.AbortFrame = frame
}

func (r *DefaultTrialRunner) fail(out *models.TrialOutcome, reason models.AbortReason, typ models.ErrorType, err error) {
	r.abort(out, reason, 0)
	out.Error = &models.TrialError{
		Type:    typ,
		Message: err.Error(),
	}
}

// deviceFailed records a device error, or an escape if the error came from
// the context being cancelled.
func (r *DefaultTrialRunner) deviceFailed(ctx context.Context, out *models.TrialOutcome, typ models.ErrorType, frame int, err error) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		r.abort(out, models.AbortUserEscape, frame)
		return
	}
	r.fail(out, models.AbortDeviceFailed, typ, err)
	out.AbortFrame = frame
	slog.Warn("device failed during trial", "run", out.Run, "trial", out.Trial, "frame", frame, "error", err)
}

func (r *DefaultTrialRunner) mark(code device.MarkerCode) {
	if err := r.dev.Marker.Mark(code); err != nil {
		slog.Warn("failed to send marker", "code", code, "error", err)
	}
}

func msBetween(from, to time.Time) float64 {
	return float64(to.Sub(from)) / float64(time.Millisecond)
}
