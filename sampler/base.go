package sampler

import (
	"context"
	"sync"

	"github.com/probescope/probescope/logger"
	"github.com/probescope/probescope/store"
)

// base carries the lifecycle plumbing shared by all samplers: the state
// manager, the command/sample/notification channels and the metrics block.
type base struct {
	stateMgr *StateMgr
	metrics  Metrics
	logger   logger.Logger

	commands chan command
	samples  chan store.Sample
	notifs   chan Notification

	// stopping is closed by Stop so a worker blocked in emit on a full
	// sample queue can still reach the stop command.
	stopping chan struct{}
	stopOnce sync.Once

	// done is closed after the worker has exited and released its transport.
	done chan struct{}
}

func newBase(l logger.Logger, queueSize int) base {
	if l == nil {
		l = logger.GetLogger()
	}
	if queueSize <= 0 {
		queueSize = DefaultSampleQueueSize
	}

	return base{
		stateMgr: NewStateMgr(l),
		logger:   l,
		commands: make(chan command, 16),
		samples:  make(chan store.Sample, queueSize),
		notifs:   make(chan Notification, 64),
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (b *base) Samples() <-chan store.Sample {
	return b.samples
}

func (b *base) Notifications() <-chan Notification {
	return b.notifs
}

func (b *base) State() State {
	return b.stateMgr.State()
}

func (b *base) WaitState(ctx context.Context, state State) error {
	return b.stateMgr.WaitState(ctx, state)
}

func (b *base) Metrics() *Metrics {
	return &b.metrics
}

func (b *base) Pause() {
	b.sendCommand(command{kind: cmdPause})
}

func (b *base) Resume() {
	b.sendCommand(command{kind: cmdResume})
}

func (b *base) Stop() {
	b.stopOnce.Do(func() { close(b.stopping) })
	b.sendCommand(command{kind: cmdStop})
	<-b.done
}

func (b *base) SetActiveSignals(ids []uint32) {
	b.sendCommand(command{kind: cmdSetActive, signals: append([]uint32(nil), ids...)})
}

// sendCommand never blocks indefinitely: a dead worker is detected via done.
func (b *base) sendCommand(cmd command) {
	select {
	case b.commands <- cmd:
	case <-b.done:
		b.logger.Debug("command dropped, sampler worker already exited", "kind", cmd.kind)
	}
}

// transition moves to next and publishes a status notification.
func (b *base) transition(next State) {
	if err := b.stateMgr.To(next); err != nil {
		b.logger.Error("state transition rejected", "to", next, "error", err)
		return
	}

	b.notify(Notification{Kind: StatusNotification, State: next})
}

// fault records err, publishes it and enters the terminal faulted state.
func (b *base) fault(err error) {
	b.logger.Error("sampler faulted", "error", err)
	b.notify(Notification{Kind: ErrorNotification, Err: err, Message: err.Error()})
	b.transition(FaultedState)
}

func (b *base) notifyInfo(msg string) {
	b.notify(Notification{Kind: InfoNotification, Message: msg})
}

// notify publishes without blocking the worker; the consumer missing a
// notification is preferable to stalling the cadence loop.
func (b *base) notify(n Notification) {
	select {
	case b.notifs <- n:
	default:
		b.logger.Warn("notification dropped, consumer not draining", "kind", n.Kind)
	}
}

// emit blocks until the session accepts the sample, or discards it once
// Stop has been requested. A consumer that stopped draining therefore
// cannot wedge shutdown.
func (b *base) emit(s store.Sample) {
	select {
	case b.samples <- s:
		b.metrics.incSampleCount()
	case <-b.stopping:
	}
}

// finish closes the outbound channels and marks the worker done.
func (b *base) finish() {
	close(b.samples)
	close(b.notifs)
	close(b.done)
}
