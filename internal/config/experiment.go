package config

import (
	"fmt"
	"os"

	"github.com/fipslab/fips/internal/models"
	"github.com/fipslab/fips/internal/util"
	"gopkg.in/yaml.v3"
)

// DefaultExperimentConfig returns an ExperimentConfig with default values.
func DefaultExperimentConfig() models.ExperimentConfig {
	return models.ExperimentConfig{
		Name:         "fips-saccade",
		Task:         "FIPSSaccade",
		Subject:      1,
		Session:      1,
		DataDir:      "data",
		LogLevel:     "info",
		Monitor:      "default",
		MonitorsFile: "monitors.toml",
		Stimulus: models.StimulusConfig{
			FrameSizeDeg:      10,
			PathLengthDeg:     8,
			FrameYShiftDeg:    3,
			QuadrantShiftDeg:  11,
			ProbeXShiftDeg:    1.5,
			ProbeYShiftDeg:    1.5,
			FixationRegion:    models.RegionCircle,
			FixationRadiusDeg: 2,
		},
		Timing: models.TimingConfig{
			MotionDurationsMs:   []float64{200},
			FlashFrames:         5,
			StabilizationCycles: 4,
			CueCyclesMin:        1,
			CueCyclesMax:        3,
			FixationDelayMinMs:  400,
			FixationDelayMaxMs:  600,
			ResponseWindowMs:    600,
		},
		Design: models.DesignConfig{
			Quadrants:   []models.Quadrant{models.QuadrantLeft, models.QuadrantRight},
			Targets:     []models.Target{models.TargetTop, models.TargetBot},
			Blocks:      1,
			TotalTrials: 10,
			CatchRate:   0.1,
			MaxRequeues: 10,
		},
		Gaze: models.GazeConfig{
			Policy:        models.GazeAbort,
			MaxHoldFrames: 60,
		},
		Devices: models.DevicesConfig{
			Display: "sim",
			Tracker: "sim",
			Trigger: models.TriggerConfig{BaudRate: 9600},
		},
		Sim: models.SimConfig{
			BreakProb:         0.0002,
			LossProb:          0.0001,
			GazeJitterDeg:     0.3,
			LatencyMeanMs:     220,
			LatencySDMs:       40,
			SaccadeDurationMs: 45,
			LandingBiasDeg:    0.5,
			MissProb:          0.02,
		},
		System: models.SystemConfig{
			MinFreeMemory: "1G",
			MinCPUs:       2,
		},
	}
}

// LoadExperimentConfig loads and parses an experiment.yaml file.
func LoadExperimentConfig(path string) (models.ExperimentConfig, error) {
	cfg := DefaultExperimentConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading experiment config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing experiment config: %w", err)
	}

	applyDefaults(&cfg)

	if err := ValidateExperimentConfig(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// applyDefaults fills values an explicit but empty YAML entry wiped out.
func applyDefaults(cfg *models.ExperimentConfig) {
	def := DefaultExperimentConfig()

	if cfg.DataDir == "" {
		cfg.DataDir = def.DataDir
	}
	if cfg.Task == "" {
		cfg.Task = def.Task
	}
	if cfg.Monitor == "" {
		cfg.Monitor = def.Monitor
	}
	if cfg.MonitorsFile == "" {
		cfg.MonitorsFile = def.MonitorsFile
	}
	if cfg.Stimulus.FixationRegion == "" {
		cfg.Stimulus.FixationRegion = def.Stimulus.FixationRegion
	}
	if len(cfg.Timing.MotionDurationsMs) == 0 {
		cfg.Timing.MotionDurationsMs = def.Timing.MotionDurationsMs
	}
	if len(cfg.Design.Quadrants) == 0 {
		cfg.Design.Quadrants = def.Design.Quadrants
	}
	if len(cfg.Design.Targets) == 0 {
		cfg.Design.Targets = def.Design.Targets
	}
	if cfg.Design.Blocks == 0 {
		cfg.Design.Blocks = def.Design.Blocks
	}
	if cfg.Gaze.Policy == "" {
		cfg.Gaze.Policy = def.Gaze.Policy
	}
	if cfg.Gaze.MaxHoldFrames == 0 {
		cfg.Gaze.MaxHoldFrames = def.Gaze.MaxHoldFrames
	}
	if cfg.Devices.Display == "" {
		cfg.Devices.Display = def.Devices.Display
	}
	if cfg.Devices.Tracker == "" {
		cfg.Devices.Tracker = def.Devices.Tracker
	}
	if cfg.Devices.Trigger.BaudRate == 0 {
		cfg.Devices.Trigger.BaudRate = def.Devices.Trigger.BaudRate
	}
}

// ValidateExperimentConfig checks the values that would make every trial
// fail at setup.
func ValidateExperimentConfig(cfg models.ExperimentConfig) error {
	st := cfg.Stimulus
	if st.PathLengthDeg <= 0 || st.PathLengthDeg >= st.FrameSizeDeg {
		return fmt.Errorf("stimulus: path length %.2f must be positive and smaller than frame size %.2f",
			st.PathLengthDeg, st.FrameSizeDeg)
	}
	if st.FixationRegion != models.RegionCircle && st.FixationRegion != models.RegionRect {
		return fmt.Errorf("stimulus: unknown fixation region %q", st.FixationRegion)
	}
	if st.FixationRadiusDeg <= 0 {
		return fmt.Errorf("stimulus: fixation radius must be positive, got %.2f", st.FixationRadiusDeg)
	}

	tm := cfg.Timing
	for i, d := range tm.MotionDurationsMs {
		if d <= 0 {
			return fmt.Errorf("timing: motion_durations_ms[%d] must be positive, got %.1f", i, d)
		}
	}
	if tm.FlashFrames < 0 || tm.StabilizationCycles < 0 {
		return fmt.Errorf("timing: flash frames and stabilization cycles must be non-negative")
	}
	if tm.CueCyclesMin < 0 || tm.CueCyclesMax < tm.CueCyclesMin {
		return fmt.Errorf("timing: invalid cue cycle range [%d, %d]", tm.CueCyclesMin, tm.CueCyclesMax)
	}
	if tm.FixationDelayMinMs < 0 || tm.FixationDelayMaxMs < tm.FixationDelayMinMs {
		return fmt.Errorf("timing: invalid fixation delay range [%.1f, %.1f]", tm.FixationDelayMinMs, tm.FixationDelayMaxMs)
	}
	if tm.ResponseWindowMs < 0 {
		return fmt.Errorf("timing: response window must be non-negative, got %.1f", tm.ResponseWindowMs)
	}

	d := cfg.Design
	for i, q := range d.Quadrants {
		if q != models.QuadrantLeft && q != models.QuadrantRight {
			return fmt.Errorf("design: quadrants[%d]: unknown quadrant %d", i, q)
		}
	}
	for i, tg := range d.Targets {
		if !tg.Valid() {
			return fmt.Errorf("design: targets[%d]: unknown target %q", i, tg)
		}
	}
	if d.Blocks < 1 {
		return fmt.Errorf("design: blocks must be at least 1, got %d", d.Blocks)
	}
	if d.TotalTrials < d.Blocks {
		return fmt.Errorf("design: total_trials %d must be at least the number of blocks %d", d.TotalTrials, d.Blocks)
	}
	if d.CatchRate < 0 || d.CatchRate > 1 {
		return fmt.Errorf("design: catch rate must be in [0, 1], got %.2f", d.CatchRate)
	}
	if d.MaxRequeues < 0 {
		return fmt.Errorf("design: max_requeues must be non-negative, got %d", d.MaxRequeues)
	}

	switch cfg.Gaze.Policy {
	case models.GazeAbort, models.GazeHold:
	default:
		return fmt.Errorf("gaze: unknown policy %q", cfg.Gaze.Policy)
	}
	if cfg.Gaze.MaxHoldFrames < 1 {
		return fmt.Errorf("gaze: max_hold_frames must be at least 1, got %d", cfg.Gaze.MaxHoldFrames)
	}

	if _, err := util.ParseMemory(cfg.System.MinFreeMemory); err != nil {
		return fmt.Errorf("system: min_free_memory: %w", err)
	}

	return nil
}
