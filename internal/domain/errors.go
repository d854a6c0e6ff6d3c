package domain

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a missing or malformed setting, most often a
// projection parameter. It is raised when the owning object is constructed.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Key, e.Reason)
}

// GeometryError reports a region boundary that cannot be used for
// classification, e.g. a self-intersecting ring.
type GeometryError struct {
	Reason string
	Err    error
}

func (e *GeometryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("geometry: %s: %v", e.Reason, e.Err)
	}
	return "geometry: " + e.Reason
}

func (e *GeometryError) Unwrap() error { return e.Err }

// ComputationError reports inconsistent input arrays, such as field arrays
// whose shape does not match the coordinate arrays.
type ComputationError struct {
	Reason string
}

func (e *ComputationError) Error() string {
	return "computation: " + e.Reason
}

// DataUnavailableError means the upstream source for a cycle has not been
// published yet. It is a clean terminal state, not a failure.
type DataUnavailableError struct {
	Source string
	Cycle  Cycle
}

func (e *DataUnavailableError) Error() string {
	return fmt.Sprintf("data unavailable: %s for %s", e.Source, e.Cycle)
}

// IsDataUnavailable reports whether err, or anything it wraps, is a
// DataUnavailableError.
func IsDataUnavailable(err error) bool {
	var target *DataUnavailableError
	return errors.As(err, &target)
}

func computationf(format string, args ...any) error {
	return &ComputationError{Reason: fmt.Sprintf(format, args...)}
}
