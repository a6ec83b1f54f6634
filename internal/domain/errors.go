package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy for the detection engine. Structural and input errors
// fail the specific call; numeric non-convergence is reported through
// result flags rather than errors.
var (
	// ErrInvalidTransaction rejects malformed edges at the graph
	// construction boundary.
	ErrInvalidTransaction = errors.New("invalid transaction")

	// ErrConfiguration rejects out-of-range detector options before any
	// traversal begins.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrCapacityExceeded signals that cycle enumeration hit its safety
	// cap. Detection returns partial results alongside this condition.
	ErrCapacityExceeded = errors.New("cycle capacity exceeded")
)

func invalidTransaction(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidTransaction, reason)
}

func configError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
