package models

import "time"

// SessionResult contains aggregate numbers across all trials of a session.
type SessionResult struct {
	SessionID        string                       `json:"session_id"`
	Name             string                       `json:"name"`
	Subject          string                       `json:"subject"`
	Session          string                       `json:"session"`
	Seed             uint64                       `json:"seed"`
	Monitor          string                       `json:"monitor"`
	RefreshRate      float64                      `json:"refresh_rate"`
	Host             string                       `json:"host,omitempty"`
	GitCommit        string                       `json:"git_commit,omitempty"`
	Cancelled        bool                         `json:"cancelled"`
	TotalTrials      int                          `json:"total_trials"`
	CompletedTrials  int                          `json:"completed_trials"`
	ResponseTrials   int                          `json:"response_trials"`
	NoResponseTrials int                          `json:"no_response_trials"`
	AbortedTrials    int                          `json:"aborted_trials"`
	RequeuedTrials   int                          `json:"requeued_trials"`
	MeanLatencyMs    float64                      `json:"mean_latency_ms"`
	TotalDurationSec float64                      `json:"total_duration_sec"`
	StartedAt        time.Time                    `json:"started_at"`
	EndedAt          time.Time                    `json:"ended_at"`
	AbortReasons     map[AbortReason]int          `json:"abort_reasons"`
	Quadrants        map[Quadrant]QuadrantSummary `json:"quadrants"`
	Files            []string                     `json:"files"`
	Warnings         []string                     `json:"warnings,omitempty"`
}

// QuadrantSummary aggregates the trials shown in one quadrant.
type QuadrantSummary struct {
	TotalTrials    int     `json:"total_trials"`
	ResponseTrials int     `json:"response_trials"`
	AbortedTrials  int     `json:"aborted_trials"`
	MeanLatencyMs  float64 `json:"mean_latency_ms"`
	MeanErrorXDeg  float64 `json:"mean_error_x_deg"`
	MeanErrorYDeg  float64 `json:"mean_error_y_deg"`
}
