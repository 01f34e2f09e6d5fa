package sampler

import (
	"context"

	"github.com/probescope/probescope/store"
)

// DefaultSampleQueueSize is the capacity of the sample handoff channel
// between the sampling worker and the session writer.
const DefaultSampleQueueSize = 10000

// SignalInfo names one signal a sampler can produce.
type SignalInfo struct {
	ID   uint32
	Name string
}

// NotificationKind classifies sampler notifications.
type NotificationKind uint8

const (
	// StatusNotification reports a state transition; State is set.
	StatusNotification NotificationKind = iota
	// InfoNotification carries a human-readable progress message.
	InfoNotification
	// ErrorNotification carries the error that faulted the sampler.
	ErrorNotification
)

// Notification is an out-of-band event from the sampling worker.
type Notification struct {
	Kind    NotificationKind
	State   State
	Message string
	Err     error
}

// Sampler is an acquisition scheduler: it owns a protocol client, runs the
// sampling cadence on a dedicated worker, and emits timestamped samples.
//
// The sample and notification channels are closed when the worker exits.
type Sampler interface {
	// Start connects to the target and launches the acquisition worker.
	// It returns ErrAlreadyStarted if the sampler is not idle.
	Start() error

	// AvailableSignals lists the signals this sampler can produce.
	AvailableSignals() []SignalInfo

	// SetActiveSignals selects which signals are sampled. Taking effect on
	// the next scheduling tick: for memory sampling this changes the next
	// batch's address list, for RTT it changes which decoded fields are
	// retained.
	SetActiveSignals(ids []uint32)

	// Samples is the stream of acquired samples.
	Samples() <-chan store.Sample

	// Notifications is the stream of state changes, progress messages and
	// the fatal error, if any.
	Notifications() <-chan Notification

	// State returns the current lifecycle state.
	State() State

	// WaitState blocks until the given state is reached or ctx is done.
	WaitState(ctx context.Context, state State) error

	// Metrics returns the live acquisition counters.
	Metrics() *Metrics

	// Pause suspends sample emission without releasing the transport.
	Pause()

	// Resume continues sample emission after Pause.
	Resume()

	// Stop requests a cooperative shutdown and blocks until the worker has
	// released the transport.
	Stop()
}

// command is a consumer-to-worker control message.
type command struct {
	kind    commandKind
	signals []uint32
}

type commandKind uint8

const (
	cmdPause commandKind = iota
	cmdResume
	cmdStop
	cmdSetActive
)
