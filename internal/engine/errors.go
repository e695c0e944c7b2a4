package engine

import "errors"

// Errors a trigger caller can observe synchronously. Everything that happens
// after dispatch is recorded on the execution itself, never returned.
var (
	ErrJobNotFound       = errors.New("job not found")
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrJobNotRunnable covers inactive jobs and jobs that already have a
	// run in flight.
	ErrJobNotRunnable = errors.New("job is not runnable")

	// ErrAlreadyTerminal is returned by Finish when the execution has
	// already reached a terminal status.
	ErrAlreadyTerminal = errors.New("execution already terminal")
)
