package pairing

import "errors"

var (
	// ErrAttemptsExhausted is set on a Result when every attempt failed.
	ErrAttemptsExhausted = errors.New("pairing: attempts exhausted")

	// ErrUnknownWorkflow is returned for a workflow name that is not recognised.
	ErrUnknownWorkflow = errors.New("pairing: unknown workflow")
)
