package robot

import (
	"errors"
	"fmt"
)

var (
	// ErrBusUnavailable means the servo bus could not be opened or scanned.
	ErrBusUnavailable = errors.New("servo bus unavailable")
	// ErrReadFailure marks a telemetry read that failed for one cycle.
	ErrReadFailure = errors.New("read failure")
	// ErrCommandFailure marks a move or torque command the bus did not accept.
	ErrCommandFailure = errors.New("command failure")
	// ErrCalibrationIncomplete means a joint has no recorded zero or range.
	ErrCalibrationIncomplete = errors.New("calibration incomplete")
	// ErrCancelled means the operator stopped the workflow.
	ErrCancelled = errors.New("cancelled by operator")

	ErrNotDiscovered     = errors.New("joints not discovered")
	ErrAlreadyDiscovered = errors.New("joints already discovered")
	ErrUnknownJoint      = errors.New("unknown joint")
	ErrNoLimit           = errors.New("no limit for joint")
)

// JointError is a failure of one operation on one joint.
type JointError struct {
	ID  int
	Op  string
	Err error
}

func (e *JointError) Error() string {
	return fmt.Sprintf("joint %d (%s): %s: %v", e.ID, JointName(e.ID), e.Op, e.Err)
}

func (e *JointError) Unwrap() error {
	return e.Err
}

// jointErr wraps cause with a sentinel so both match with errors.Is.
func jointErr(id int, op string, sentinel, cause error) error {
	return &JointError{ID: id, Op: op, Err: fmt.Errorf("%w: %w", sentinel, cause)}
}
