package models

import (
	"errors"
)

// Setup errors. Both are fatal to a trial and are raised before any frame
// is scheduled.
var (
	ErrInvalidKinematics     = errors.New("invalid kinematics")
	ErrInvalidTimelineConfig = errors.New("invalid timeline config")
)

// ErrorType identifies the category of error recorded on a trial outcome.
type ErrorType string

const (
	// Trial setup
	ErrKinematicsInvalid ErrorType = "invalid_kinematics"
	ErrTimelineInvalid   ErrorType = "invalid_timeline_config"

	// Devices
	ErrDisplayFailed ErrorType = "display_failed"
	ErrTrackerFailed ErrorType = "tracker_failed"

	// Catch-all
	ErrInternalError ErrorType = "internal_error"
)

// ErrorTypeOf maps a setup error onto the type recorded in the outcome.
func ErrorTypeOf(err error) ErrorType {
	switch {
	case errors.Is(err, ErrInvalidKinematics):
		return ErrKinematicsInvalid
	case errors.Is(err, ErrInvalidTimelineConfig):
		return ErrTimelineInvalid
	default:
		return ErrInternalError
	}
}

// TrialError is the error attached to an outcome that did not run to
// completion for a reason other than the participant's behaviour.
type TrialError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
}
