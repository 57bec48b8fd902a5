package models

// GazePolicy decides what a failed gaze check does while fixation is required.
type GazePolicy string

const (
	// GazeAbort ends the trial on the first failed frame.
	GazeAbort GazePolicy = "abort"
	// GazeHold freezes the schedule until gaze is back, up to MaxHoldFrames.
	GazeHold GazePolicy = "hold"
)

// RegionShape is the shape of the fixation region.
type RegionShape string

const (
	RegionCircle RegionShape = "circle"
	RegionRect   RegionShape = "rect"
)

// ExperimentConfig represents the parsed experiment.yaml configuration.
type ExperimentConfig struct {
	Name         string         `yaml:"name" json:"name"`
	Task         string         `yaml:"task" json:"task"`
	Subject      int            `yaml:"subject" json:"subject"`
	Session      int            `yaml:"session" json:"session"`
	DataDir      string         `yaml:"data_dir" json:"data_dir"`
	LogLevel     string         `yaml:"log_level,omitempty" json:"log_level,omitempty"`
	LogFile      string         `yaml:"log_file,omitempty" json:"log_file,omitempty"`
	Seed         uint64         `yaml:"seed" json:"seed"`
	Monitor      string         `yaml:"monitor" json:"monitor"`
	MonitorsFile string         `yaml:"monitors_file" json:"monitors_file"`
	Report       bool           `yaml:"report" json:"report"`
	Stimulus     StimulusConfig `yaml:"stimulus" json:"stimulus"`
	Timing       TimingConfig   `yaml:"timing" json:"timing"`
	Design       DesignConfig   `yaml:"design" json:"design"`
	Gaze         GazeConfig     `yaml:"gaze" json:"gaze"`
	Devices      DevicesConfig  `yaml:"devices" json:"devices"`
	Sim          SimConfig      `yaml:"sim" json:"sim"`
	System       SystemConfig   `yaml:"system" json:"system"`
}

// StimulusConfig is the stimulus geometry in degrees of visual angle.
type StimulusConfig struct {
	FrameSizeDeg      float64     `yaml:"frame_size_deg" json:"frame_size_deg"`
	PathLengthDeg     float64     `yaml:"path_length_deg" json:"path_length_deg"`
	FrameYShiftDeg    float64     `yaml:"frame_y_shift_deg" json:"frame_y_shift_deg"`
	QuadrantShiftDeg  float64     `yaml:"quadrant_shift_deg" json:"quadrant_shift_deg"`
	ProbeXShiftDeg    float64     `yaml:"probe_x_shift_deg" json:"probe_x_shift_deg"`
	ProbeYShiftDeg    float64     `yaml:"probe_y_shift_deg" json:"probe_y_shift_deg"`
	FixationRegion    RegionShape `yaml:"fixation_region" json:"fixation_region"`
	FixationRadiusDeg float64     `yaml:"fixation_radius_deg" json:"fixation_radius_deg"`
	EndSpecificProbes bool        `yaml:"end_specific_probes" json:"end_specific_probes"`
}

// TimingConfig holds the temporal parameters of a trial.
type TimingConfig struct {
	MotionDurationsMs   []float64 `yaml:"motion_durations_ms" json:"motion_durations_ms"`
	FlashFrames         int       `yaml:"flash_frames" json:"flash_frames"`
	StabilizationCycles int       `yaml:"stabilization_cycles" json:"stabilization_cycles"`
	CueCyclesMin        int       `yaml:"cue_cycles_min" json:"cue_cycles_min"`
	CueCyclesMax        int       `yaml:"cue_cycles_max" json:"cue_cycles_max"`
	FixationDelayMinMs  float64   `yaml:"fixation_delay_min_ms" json:"fixation_delay_min_ms"`
	FixationDelayMaxMs  float64   `yaml:"fixation_delay_max_ms" json:"fixation_delay_max_ms"`
	ResponseWindowMs    float64   `yaml:"response_window_ms" json:"response_window_ms"`
}

// DesignConfig describes the crossed factors and the block structure.
type DesignConfig struct {
	ConditionsFile string     `yaml:"conditions_file,omitempty" json:"conditions_file,omitempty"`
	Quadrants      []Quadrant `yaml:"quadrants" json:"quadrants"`
	Targets        []Target   `yaml:"targets" json:"targets"`
	Blocks         int        `yaml:"blocks" json:"blocks"`
	TotalTrials    int        `yaml:"total_trials" json:"total_trials"`
	CatchRate      float64    `yaml:"catch_rate" json:"catch_rate"`
	RequeueAborted bool       `yaml:"requeue_aborted" json:"requeue_aborted"`
	MaxRequeues    int        `yaml:"max_requeues" json:"max_requeues"`
}

// GazeConfig controls the gaze gate during fixation-required phases.
type GazeConfig struct {
	Policy        GazePolicy `yaml:"policy" json:"policy"`
	MaxHoldFrames int        `yaml:"max_hold_frames" json:"max_hold_frames"`
}

// DevicesConfig selects the device implementations.
type DevicesConfig struct {
	Display string        `yaml:"display" json:"display"`
	Tracker string        `yaml:"tracker" json:"tracker"`
	Trigger TriggerConfig `yaml:"trigger,omitempty" json:"trigger,omitempty"`
}

// TriggerConfig points at a serial TTL trigger box. An empty device disables it.
type TriggerConfig struct {
	Device   string `yaml:"device,omitempty" json:"device,omitempty"`
	BaudRate int    `yaml:"baud_rate,omitempty" json:"baud_rate,omitempty"`
}

// SimConfig parameterises the simulated participant.
type SimConfig struct {
	BreakProb         float64 `yaml:"break_prob" json:"break_prob"`
	LossProb          float64 `yaml:"loss_prob" json:"loss_prob"`
	GazeJitterDeg     float64 `yaml:"gaze_jitter_deg" json:"gaze_jitter_deg"`
	LatencyMeanMs     float64 `yaml:"latency_mean_ms" json:"latency_mean_ms"`
	LatencySDMs       float64 `yaml:"latency_sd_ms" json:"latency_sd_ms"`
	SaccadeDurationMs float64 `yaml:"saccade_duration_ms" json:"saccade_duration_ms"`
	LandingBiasDeg    float64 `yaml:"landing_bias_deg" json:"landing_bias_deg"`
	MissProb          float64 `yaml:"miss_prob" json:"miss_prob"`
}

// SystemConfig holds the thresholds of the pre-session system check.
type SystemConfig struct {
	MinFreeMemory string `yaml:"min_free_memory" json:"min_free_memory"` // e.g. "1G"
	MinCPUs       int    `yaml:"min_cpus" json:"min_cpus"`
}
