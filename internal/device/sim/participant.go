package sim

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/fipslab/fips/internal/device"
	"github.com/fipslab/fips/internal/gaze"
	"github.com/fipslab/fips/internal/models"
)

const (
	breakFrames = 12
	lossFrames  = 4
	breakOffset = 6.0 // degrees
)

// Participant simulates an observer watching the display through an eye
// tracker. It fixates the centre, occasionally breaks fixation or blinks,
// and after fixation offset saccades to the last cued probe.
type Participant struct {
	cfg   models.SimConfig
	clock *Clock
	rng   *rand.Rand

	eye        models.Point
	breakLeft  int
	lossLeft   int
	cued       *models.Point
	cuedSign   float64
	sawOnset   bool
	planned    bool
	start, end device.SaccadeEvent
	startSent  bool
	endSent    bool
}

// NewParticipant returns a participant drawing its behaviour from seed.
func NewParticipant(cfg models.SimConfig, clock *Clock, seed uint64) *Participant {
	return &Participant{
		cfg:   cfg,
		clock: clock,
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Observe implements Observer.
func (p *Participant) Observe(s Scene, at time.Time) {
	for _, pr := range s.Probes {
		if pr.State == device.ProbeCued {
			pos := pr.Pos
			p.cued = &pos
			p.cuedSign = 1
			if pr.ID == models.TargetBot {
				p.cuedSign = -1
			}
		}
	}

	// fixation cross alone on screen: waiting for a new trial
	if s.Fixation && s.Frame == nil && len(s.Probes) == 0 {
		p.reset()
	}

	if !s.Fixation && p.cued != nil && !p.sawOnset {
		p.sawOnset = true
		p.plan(at)
	}

	if p.breakLeft > 0 {
		p.breakLeft--
	} else if p.rng.Float64() < p.cfg.BreakProb {
		p.breakLeft = breakFrames
	}
	if p.lossLeft > 0 {
		p.lossLeft--
	} else if p.rng.Float64() < p.cfg.LossProb {
		p.lossLeft = lossFrames
	}
}

func (p *Participant) reset() {
	p.eye = models.Point{}
	p.cued = nil
	p.sawOnset = false
	p.planned = false
	p.startSent = false
	p.endSent = false
}

func (p *Participant) plan(onset time.Time) {
	if p.rng.Float64() < p.cfg.MissProb {
		return
	}
	latency := p.cfg.LatencyMeanMs + p.rng.NormFloat64()*p.cfg.LatencySDMs
	latency = math.Max(latency, 80)
	startAt := onset.Add(time.Duration(latency * float64(time.Millisecond)))
	endAt := startAt.Add(time.Duration(p.cfg.SaccadeDurationMs * float64(time.Millisecond)))

	landing := p.cued.Add(models.Point{
		X: p.cuedSign*p.cfg.LandingBiasDeg + p.rng.NormFloat64()*p.cfg.GazeJitterDeg,
		Y: p.rng.NormFloat64() * p.cfg.GazeJitterDeg,
	})
	p.start = device.SaccadeEvent{Pos: p.eye, Time: startAt}
	p.end = device.SaccadeEvent{Pos: landing, Time: endAt}
	p.planned = true
}

// Mark implements device.Marker. A trial start puts the eye back on the
// fixation cross.
func (p *Participant) Mark(code device.MarkerCode) error {
	if code == device.MarkTrialStart {
		p.reset()
	}
	return nil
}

// Close implements device.Marker.
func (p *Participant) Close() error { return nil }

// PollGaze implements device.GazeSource.
func (p *Participant) PollGaze(ctx context.Context) (gaze.Sample, error) {
	if err := ctx.Err(); err != nil {
		return gaze.Sample{}, err
	}
	now := p.clock.Now()
	if p.lossLeft > 0 {
		return gaze.Sample{Time: now}, nil
	}

	pos := p.eye
	if p.planned && !now.Before(p.end.Time) {
		pos = p.end.Pos
	} else if p.breakLeft > 0 {
		pos = pos.Add(models.Point{X: breakOffset})
	}
	pos = pos.Add(models.Point{
		X: p.rng.NormFloat64() * p.cfg.GazeJitterDeg / 3,
		Y: p.rng.NormFloat64() * p.cfg.GazeJitterDeg / 3,
	})
	return gaze.Sample{Pos: pos, Valid: true, Time: now}, nil
}

// PollSaccadeStart implements device.GazeSource.
func (p *Participant) PollSaccadeStart(ctx context.Context) (device.SaccadeEvent, bool, error) {
	if err := ctx.Err(); err != nil {
		return device.SaccadeEvent{}, false, err
	}
	if !p.planned || p.startSent || p.clock.Now().Before(p.start.Time) {
		return device.SaccadeEvent{}, false, nil
	}
	p.startSent = true
	return p.start, true, nil
}

// PollSaccadeEnd implements device.GazeSource.
func (p *Participant) PollSaccadeEnd(ctx context.Context) (device.SaccadeEvent, bool, error) {
	if err := ctx.Err(); err != nil {
		return device.SaccadeEvent{}, false, err
	}
	if !p.startSent || p.endSent || p.clock.Now().Before(p.end.Time) {
		return device.SaccadeEvent{}, false, nil
	}
	p.endSent = true
	return p.end, true, nil
}
