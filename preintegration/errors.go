package preintegration

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrEmptyBuffer is returned when a factor is requested for a window that holds no samples.
	ErrEmptyBuffer = errors.New("no imu samples buffered in the requested window")
	// ErrNotStarted is returned by operations that need an anchor state before SetStart was called.
	ErrNotStarted = errors.New("preintegration session has no start state")
	// ErrPoseUnavailable is returned when a pose is requested outside the buffered time range.
	ErrPoseUnavailable = errors.New("pose not available at requested time")
)

// OrderingError reports a sample or request whose time precedes data already accepted.
type OrderingError struct {
	What      string
	Time      time.Time
	Reference time.Time
}

func (e *OrderingError) Error() string {
	return fmt.Sprintf("%s at %s precedes %s", e.What, e.Time.Format(time.RFC3339Nano), e.Reference.Format(time.RFC3339Nano))
}

func newOrderingError(what string, t, ref time.Time) error {
	return &OrderingError{What: what, Time: t, Reference: ref}
}

// NumericalError reports non-finite inputs or results.
type NumericalError struct {
	Reason string
}

func (e *NumericalError) Error() string {
	return "numerical failure: " + e.Reason
}

func newNumericalError(format string, args ...interface{}) error {
	return &NumericalError{Reason: fmt.Sprintf(format, args...)}
}

// ConfigurationError wraps every problem found while validating a Config.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return "invalid preintegration config: " + e.Err.Error()
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
