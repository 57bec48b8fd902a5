package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/fipslab/fips/internal/config"
	"github.com/fipslab/fips/internal/design"
	"github.com/fipslab/fips/internal/device"
	"github.com/fipslab/fips/internal/device/dlp"
	"github.com/fipslab/fips/internal/device/sim"
	"github.com/fipslab/fips/internal/logging"
	"github.com/fipslab/fips/internal/models"
	"github.com/fipslab/fips/internal/report"
	"github.com/fipslab/fips/internal/results"
	"github.com/fipslab/fips/internal/system"
	"github.com/fipslab/fips/internal/util"
)

// TrialRunner executes a single trial and returns its outcome.
type TrialRunner interface {
	Execute(ctx context.Context, cond models.TrialCondition) (*models.TrialOutcome, error)
}

// ConditionSource hands out the trials of one run.
type ConditionSource interface {
	Next() (models.TrialCondition, bool)
	Requeue(cond models.TrialCondition) bool
}

// ResultSink collects the outcomes of one run and writes them out.
type ResultSink interface {
	AppendRow(o models.TrialOutcome) error
	Flush(path string) error
}

// SessionInfo is recorded alongside the session summary.
type SessionInfo struct {
	Seed        uint64
	Monitor     string
	RefreshRate float64
	System      system.Status
	Warnings    []string
}

// SessionOrchestrator runs the blocks of a session one after the other and
// exports their results.
type SessionOrchestrator struct {
	cfg     models.ExperimentConfig
	info    SessionInfo
	runner  TrialRunner
	newSink func() ResultSink
}

// NewSessionOrchestrator creates a new session orchestrator. newSink is
// called once per block.
func NewSessionOrchestrator(cfg models.ExperimentConfig, info SessionInfo, runner TrialRunner, newSink func() ResultSink) *SessionOrchestrator {
	return &SessionOrchestrator{
		cfg:     cfg,
		info:    info,
		runner:  runner,
		newSink: newSink,
	}
}

// Run executes every block in order. Cancelling ctx stops the session after
// the current trial; whatever was recorded up to then is still written.
func (o *SessionOrchestrator) Run(ctx context.Context, blocks []ConditionSource) (*models.SessionResult, error) {
	startTime := time.Now()
	cfg := o.cfg

	dir := results.TaskDir(cfg.DataDir, cfg.Subject, cfg.Task)
	runPaths := make([]string, len(blocks))
	for i := range blocks {
		runPaths[i] = filepath.Join(dir, results.RunFileName(cfg.Subject, cfg.Session, i+1, cfg.Task))
	}
	sessionPath := filepath.Join(dir, results.SessionFileName(cfg.Subject, cfg.Session, cfg.Task, "session", "json"))
	configPath := filepath.Join(dir, results.SessionFileName(cfg.Subject, cfg.Session, cfg.Task, "config", "json"))
	reportPath := filepath.Join(dir, results.SessionFileName(cfg.Subject, cfg.Session, cfg.Task, "landing", "html"))

	for _, p := range append([]string{sessionPath}, runPaths...) {
		if _, err := os.Stat(p); err == nil {
			return nil, fmt.Errorf("output file already exists: %s (will not overwrite existing results)", p)
		}
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	// Save experiment config
	if err := writeJSON(configPath, cfg); err != nil {
		slog.Warn("failed to save experiment config", "path", configPath, "error", err)
	}

	sessionID := uuid.NewString()
	slog.Info("session started",
		"session_id", sessionID,
		"subject", cfg.Subject,
		"session", cfg.Session,
		"blocks", len(blocks),
		"seed", o.info.Seed)

	sinks := make([]ResultSink, len(blocks))
	var outcomes []models.TrialOutcome
	requeued := 0
	cancelled := false

	for i, src := range blocks {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		sinks[i] = o.newSink()
		slog.Info("block started", "run", i+1)

		for {
			if ctx.Err() != nil {
				cancelled = true
				break
			}
			cond, ok := src.Next()
			if !ok {
				break
			}

			out := o.execute(ctx, cond)
			if err := sinks[i].AppendRow(*out); err != nil {
				return nil, fmt.Errorf("recording trial %d of run %d: %w", cond.Index, i+1, err)
			}
			outcomes = append(outcomes, *out)

			if out.AbortReason == models.AbortUserEscape {
				cancelled = true
				break
			}
			if requeueable(out.AbortReason) && src.Requeue(cond) {
				requeued++
				slog.Debug("trial requeued", "run", i+1, "trial", cond.Index, "reason", out.AbortReason)
			}
		}
		if cancelled {
			slog.Warn("session cancelled", "run", i+1)
			break
		}
	}

	files, err := o.export(sinks, runPaths, reportPath, outcomes)
	if err != nil {
		return nil, err
	}

	// Aggregate results
	sr := o.aggregateResults(sessionID, outcomes, startTime)
	sr.RequeuedTrials = requeued
	sr.Cancelled = cancelled
	sr.Files = files

	// Save session result
	if err := writeJSON(sessionPath, sr); err != nil {
		return sr, fmt.Errorf("writing session summary: %w", err)
	}
	sr.Files = append(sr.Files, sessionPath)

	slog.Info("session finished",
		"session_id", sessionID,
		"trials", sr.TotalTrials,
		"aborted", sr.AbortedTrials,
		"cancelled", sr.Cancelled)
	return sr, nil
}

// execute runs one trial, turning a runner error into an aborted outcome.
func (o *SessionOrchestrator) execute(ctx context.Context, cond models.TrialCondition) *models.TrialOutcome {
	out, err := o.runner.Execute(ctx, cond)
	if err == nil {
		return out
	}
	slog.Error("trial runner failed", "run", cond.Block+1, "trial", cond.Index, "error", err)
	return &models.TrialOutcome{
		Subject:     fmt.Sprintf("%02d", o.cfg.Subject),
		Session:     fmt.Sprintf("%d", o.cfg.Session),
		Run:         cond.Block + 1,
		Trial:       cond.Index,
		Attempt:     cond.Attempt,
		Condition:   cond,
		Status:      models.StatusAborted,
		Outcome:     models.OutcomeAborted,
		AbortReason: models.AbortDeviceFailed,
		TrialType:   cond.TrialType(),
		Target:      cond.Target,
		CueFrame:    -1,
		Error: &models.TrialError{
			Type:    models.ErrInternalError,
			Message: err.Error(),
		},
	}
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// requeueable reports whether a trial aborted for reason is worth showing
// again later in the block.
func requeueable(reason models.AbortReason) bool {
	return reason == models.AbortBadFixation || reason == models.AbortTrackerInvalid
}

// export writes the run files and the optional report concurrently. The
// returned file list is in block order.
func (o *SessionOrchestrator) export(sinks []ResultSink, runPaths []string, reportPath string, outcomes []models.TrialOutcome) ([]string, error) {
	var g errgroup.Group
	for i, sink := range sinks {
		if sink == nil {
			continue
		}
		g.Go(func() error {
			if err := sink.Flush(runPaths[i]); err != nil {
				return fmt.Errorf("writing run %d: %w", i+1, err)
			}
			return nil
		})
	}
	if o.cfg.Report {
		g.Go(func() error {
			return report.WriteFile(reportPath, o.cfg.Name, outcomes)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("exporting session: %w", err)
	}

	var files []string
	for i, sink := range sinks {
		if sink != nil {
			files = append(files, runPaths[i])
		}
	}
	if o.cfg.Report {
		files = append(files, reportPath)
	}
	return files, nil
}

func (o *SessionOrchestrator) aggregateResults(sessionID string, outcomes []models.TrialOutcome, startTime time.Time) *models.SessionResult {
	sr := &models.SessionResult{
		SessionID:    sessionID,
		Name:         o.cfg.Name,
		Subject:      fmt.Sprintf("%02d", o.cfg.Subject),
		Session:      fmt.Sprintf("%d", o.cfg.Session),
		Seed:         o.info.Seed,
		Monitor:      o.info.Monitor,
		RefreshRate:  o.info.RefreshRate,
		Host:         o.info.System.Hostname,
		GitCommit:    o.info.System.GitCommit,
		TotalTrials:  len(outcomes),
		StartedAt:    startTime,
		EndedAt:      time.Now(),
		AbortReasons: make(map[models.AbortReason]int),
		Quadrants:    make(map[models.Quadrant]models.QuadrantSummary),
		Warnings:     o.info.Warnings,
	}

	sr.TotalDurationSec = sr.EndedAt.Sub(sr.StartedAt).Seconds()

	var totalLatency float64

	quadData := make(map[models.Quadrant]struct {
		total    int
		response int
		aborted  int
		latency  float64
		landed   int
		errX     float64
		errY     float64
	})

	for _, out := range outcomes {
		q := out.Condition.Quadrant
		qd := quadData[q]
		qd.total++

		switch out.Outcome {
		case models.OutcomeAborted:
			sr.AbortedTrials++
			sr.AbortReasons[out.AbortReason]++
			qd.aborted++
		case models.OutcomeNoResponse:
			sr.CompletedTrials++
			sr.NoResponseTrials++
		case models.OutcomeResponseRecorded:
			sr.CompletedTrials++
			sr.ResponseTrials++
			qd.response++
			totalLatency += out.LatencyMs
			qd.latency += out.LatencyMs
			if s := out.Saccade; s != nil && s.Ended {
				d := s.End.Sub(out.TargetPos)
				qd.landed++
				qd.errX += d.X
				qd.errY += d.Y
			}
		}

		quadData[q] = qd
	}

	if sr.ResponseTrials > 0 {
		sr.MeanLatencyMs = totalLatency / float64(sr.ResponseTrials)
	}

	for q, qd := range quadData {
		qs := models.QuadrantSummary{
			TotalTrials:    qd.total,
			ResponseTrials: qd.response,
			AbortedTrials:  qd.aborted,
		}
		if qd.response > 0 {
			qs.MeanLatencyMs = qd.latency / float64(qd.response)
		}
		if qd.landed > 0 {
			qs.MeanErrorXDeg = qd.errX / float64(qd.landed)
			qs.MeanErrorYDeg = qd.errY / float64(qd.landed)
		}
		sr.Quadrants[q] = qs
	}

	return sr
}

// openDevices builds the devices named in cfg. The returned function
// releases them.
func openDevices(cfg models.ExperimentConfig, refreshRate float64, seed uint64) (Devices, func(), error) {
	var dev Devices
	var markers device.MultiMarker

	switch cfg.Devices.Display {
	case "sim":
		if cfg.Devices.Tracker != "sim" {
			return dev, nil, fmt.Errorf("unsupported tracker %q for simulated display", cfg.Devices.Tracker)
		}
		rig := sim.NewRig(cfg.Sim, refreshRate, seed)
		dev.Renderer = rig.Display
		dev.Gaze = rig.Participant
		// the simulated tracker hears the markers like a recording would
		markers = append(markers, rig.Participant)
	default:
		return dev, nil, fmt.Errorf("unsupported display type: %s", cfg.Devices.Display)
	}

	if t := cfg.Devices.Trigger; t.Device != "" {
		box, err := dlp.Open(t.Device, t.BaudRate)
		if err != nil {
			return dev, nil, fmt.Errorf("opening trigger box: %w", err)
		}
		markers = append(markers, box)
	}
	dev.Marker = markers

	release := func() {
		if err := dev.Marker.Close(); err != nil {
			slog.Warn("failed to close marker", "error", err)
		}
	}
	return dev, release, nil
}

// relativeTo resolves name against the directory of configPath unless it
// is absolute, and splits the result into a filesystem and a file name.
func relativeTo(configPath, name string) (dir, file string) {
	if !filepath.IsAbs(name) {
		name = filepath.Join(filepath.Dir(configPath), name)
	}
	return filepath.Dir(name), filepath.Base(name)
}

// RunFromConfig loads an experiment config file and runs the session.
func RunFromConfig(ctx context.Context, configPath string) (*models.SessionResult, error) {
	cfg, err := config.LoadExperimentConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading experiment config: %w", err)
	}

	prev := slog.Default()
	defer slog.SetDefault(prev)
	logs, err := logging.Setup(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return nil, fmt.Errorf("setting up logging: %w", err)
	}
	defer logs.Close()

	dir, file := relativeTo(configPath, cfg.MonitorsFile)
	profiles, err := config.LoadMonitorProfiles(os.DirFS(dir), file)
	if err != nil {
		return nil, fmt.Errorf("loading monitor profiles: %w", err)
	}
	monitor, err := config.LookupMonitor(profiles, cfg.Monitor)
	if err != nil {
		return nil, err
	}
	conv, err := util.NewConverter(monitor)
	if err != nil {
		return nil, fmt.Errorf("monitor %s: %w", monitor.Name, err)
	}

	info := SessionInfo{
		Seed:        cfg.Seed,
		Monitor:     monitor.Name,
		RefreshRate: monitor.RefreshRate,
	}
	if info.Seed == 0 {
		info.Seed = uint64(time.Now().UnixNano())
	}

	st, err := system.Collect(ctx, filepath.Dir(configPath))
	if err != nil {
		slog.Warn("failed to read system status", "error", err)
	}
	info.System = st
	info.Warnings = system.Check(st, cfg.System)
	for _, w := range info.Warnings {
		slog.Warn(w)
	}

	cells := design.Cells(cfg.Design, cfg.Timing)
	if cfg.Design.ConditionsFile != "" {
		dir, file := relativeTo(configPath, cfg.Design.ConditionsFile)
		cells, err = design.LoadCells(os.DirFS(dir), file)
		if err != nil {
			return nil, fmt.Errorf("loading conditions: %w", err)
		}
	}
	gen, err := design.NewGenerator(cfg.Design, cfg.Timing, cells, info.Seed)
	if err != nil {
		return nil, fmt.Errorf("building design: %w", err)
	}
	var blocks []ConditionSource
	for _, b := range gen.Blocks() {
		blocks = append(blocks, b)
	}

	dev, release, err := openDevices(cfg, monitor.RefreshRate, info.Seed)
	if err != nil {
		return nil, err
	}
	defer release()

	runner := NewTrialRunner(RunnerConfigFrom(cfg, monitor.RefreshRate), dev, conv)
	orchestrator := NewSessionOrchestrator(cfg, info, runner, func() ResultSink {
		return results.NewCSVSink()
	})
	return orchestrator.Run(ctx, blocks)
}
