package sampler

import "errors"

var (
	// ErrInvalidTransition is returned when an attempt is made to transition
	// the sampler state to a state not reachable from the current one.
	ErrInvalidTransition = errors.New("sampler: invalid state transition")

	// ErrFaulted indicates the sampler is in the terminal faulted state and
	// must be recreated.
	ErrFaulted = errors.New("sampler: faulted")

	// ErrAlreadyStarted indicates Start was called on a sampler that is not
	// idle.
	ErrAlreadyStarted = errors.New("sampler: already started")
)
