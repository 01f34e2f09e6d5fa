package sampler

import (
	"errors"
	"fmt"
	"time"

	"github.com/probescope/probescope/catalog"
	"github.com/probescope/probescope/frame"
	"github.com/probescope/probescope/gdbremote"
	"github.com/probescope/probescope/internal/pool"
	"github.com/probescope/probescope/logger"
	"github.com/probescope/probescope/store"
)

// DefaultFaultBudget is the number of consecutive transient protocol errors
// tolerated before the sampler faults.
const DefaultFaultBudget = 5

// MemConfig configures a MemSampler.
type MemConfig struct {
	// Conn is the GDB remote endpoint configuration.
	Conn *gdbremote.ConnConfig

	// Rate is the target sampling frequency in Hz.
	Rate float64

	// Signals are the memory-source signal definitions this sampler can
	// read. Which of them are read per tick is selected with
	// SetActiveSignals.
	Signals []catalog.Signal

	// FaultBudget bounds consecutive transient protocol errors.
	// Zero selects DefaultFaultBudget.
	FaultBudget int

	// QueueSize overrides the sample channel capacity. Zero selects
	// DefaultSampleQueueSize.
	QueueSize int

	Logger logger.Logger
}

func (cfg *MemConfig) validate() error {
	if cfg.Conn == nil {
		return errors.New("sampler: gdb connection config is nil")
	}
	if cfg.Rate <= 0 {
		return fmt.Errorf("sampler: invalid sample rate %g", cfg.Rate)
	}
	for _, sig := range cfg.Signals {
		if sig.Source.Kind != catalog.MemorySource {
			return fmt.Errorf("sampler: signal %q is not a memory-source signal", sig.Name)
		}
		switch sig.Source.Width {
		case 1, 2, 4:
		default:
			return fmt.Errorf("sampler: signal %q has unsupported width %d", sig.Name, sig.Source.Width)
		}
		if sig.Source.Encoding == frame.Float && sig.Source.Width != 4 {
			return fmt.Errorf("sampler: signal %q: float signals must be 4 bytes wide", sig.Name)
		}
		if sig.Source.Encoding == frame.Bool && sig.Source.Width != 1 {
			return fmt.Errorf("sampler: signal %q: bool signals must be 1 byte wide", sig.Name)
		}
	}
	if cfg.FaultBudget == 0 {
		cfg.FaultBudget = DefaultFaultBudget
	}

	return nil
}

// MemSampler samples target memory addresses over the GDB remote protocol at
// a fixed rate.
type MemSampler struct {
	base

	cfg     *MemConfig
	signals map[uint32]catalog.Signal
	order   []uint32 // signal IDs in definition order
}

var _ Sampler = (*MemSampler)(nil)

// NewMemSampler creates a memory sampler. Call Start to begin acquisition.
func NewMemSampler(cfg *MemConfig) (*MemSampler, error) {
	if cfg == nil {
		return nil, errors.New("sampler: mem config is nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	s := &MemSampler{
		base:    newBase(cfg.Logger, cfg.QueueSize),
		cfg:     cfg,
		signals: make(map[uint32]catalog.Signal, len(cfg.Signals)),
	}
	for _, sig := range cfg.Signals {
		s.signals[uint32(sig.ID)] = sig
		s.order = append(s.order, uint32(sig.ID))
	}

	return s, nil
}

// AvailableSignals lists the configured memory signals.
func (s *MemSampler) AvailableSignals() []SignalInfo {
	out := make([]SignalInfo, 0, len(s.order))
	for _, id := range s.order {
		sig := s.signals[id]
		out = append(out, SignalInfo{
			ID:   id,
			Name: fmt.Sprintf("%s (0x%08x)", sig.Name, sig.Source.Address),
		})
	}

	return out
}

// Start connects and launches the sampling worker.
func (s *MemSampler) Start() error {
	if s.State() != IdleState {
		return ErrAlreadyStarted
	}

	go s.run()

	return nil
}

func (s *MemSampler) run() {
	defer s.finish()

	s.transition(ConnectingState)

	client, err := gdbremote.Connect(s.cfg.Conn)
	if err != nil {
		s.fault(fmt.Errorf("sampler: connect: %w", err))
		return
	}
	defer client.Close()

	// Make sure the target is executing before polling memory.
	if err := client.Continue(); err != nil {
		s.fault(fmt.Errorf("sampler: resume target: %w", err))
		return
	}

	s.transition(SamplingState)
	s.notifyInfo("memory sampling started")

	s.sampleLoop(client)
}

func (s *MemSampler) sampleLoop(client *gdbremote.Client) {
	period := time.Duration(float64(time.Second) / s.cfg.Rate)
	start := time.Now()
	lastTick := start
	consecutiveErrs := 0

	var active []uint32

	for {
		// 1. Process pending commands.
		select {
		case cmd := <-s.commands:
			switch cmd.kind {
			case cmdStop:
				s.transition(StoppingState)
				s.transition(IdleState)
				return
			case cmdPause:
				s.transition(PausedState)
				if !s.waitResume(&active) {
					return
				}
				lastTick = time.Now()
			case cmdSetActive:
				active = cmd.signals
			case cmdResume:
				// already sampling
			}
		default:
		}

		// 2. Wait for the next tick.
		if elapsed := time.Since(lastTick); elapsed < period {
			timer := pool.GetTimer(period - elapsed)
			select {
			case <-timer.C:
			case cmd := <-s.commands:
				pool.PutTimer(timer)
				if cmd.kind == cmdStop {
					s.transition(StoppingState)
					s.transition(IdleState)
					return
				}
				// Re-queue anything else for the next iteration.
				s.sendCommand(cmd)
				continue
			}
			pool.PutTimer(timer)
		}
		lastTick = lastTick.Add(period)

		// Probe lag: if the previous round trip overran the tick interval,
		// skip the overdue ticks instead of queueing requests.
		if lag := time.Since(lastTick); lag > period/2 {
			skipped := uint64(lag/period) + 1
			lastTick = lastTick.Add(time.Duration(skipped) * time.Duration(period))
			s.metrics.addLagCount(skipped)
			s.logger.Debug("sampling lag, ticks skipped", "lag", lag, "skipped", skipped)
		}

		if len(active) == 0 {
			continue
		}

		// 3. Issue the batched read.
		reqs := make([]gdbremote.ReadRequest, 0, len(active))
		for _, id := range active {
			sig, ok := s.signals[id]
			if !ok {
				continue
			}
			reqs = append(reqs, gdbremote.ReadRequest{Address: sig.Source.Address, Size: sig.Source.Width})
		}

		replies, err := client.ReadBatch(reqs)
		if err != nil {
			if errors.Is(err, gdbremote.ErrConnClosed) || errors.Is(err, gdbremote.ErrRetryExhausted) {
				s.fault(fmt.Errorf("sampler: batch read: %w", err))
				return
			}

			s.metrics.incProtocolErrCount()
			consecutiveErrs++
			s.logger.Warn("transient protocol error", "error", err, "consecutive", consecutiveErrs)

			if consecutiveErrs > s.cfg.FaultBudget {
				s.fault(fmt.Errorf("sampler: fault budget exhausted: %w", err))
				return
			}

			continue
		}
		consecutiveErrs = 0

		// 4. Timestamp the batch with the completion time of its round trip.
		timestamp := uint64(time.Since(start).Microseconds())

		values := make([]store.SignalValue, 0, len(active))
		for _, id := range active {
			sig, ok := s.signals[id]
			if !ok {
				continue
			}

			data, ok := replies[sig.Source.Address]
			if !ok {
				continue
			}

			v, err := frame.DecodeValue(frame.Field{Kind: sig.Source.Encoding, Size: sig.Source.Width}, data)
			if err != nil {
				s.metrics.incDecodeErrCount()
				continue
			}

			values = append(values, store.SignalValue{ID: id, Value: v})
		}

		if len(values) > 0 {
			s.emit(store.Sample{Timestamp: timestamp, Values: values})
		}
	}
}

// waitResume blocks in the paused state until a resume or stop command.
// Returns false when the worker must exit.
func (s *MemSampler) waitResume(active *[]uint32) bool {
	for cmd := range s.commands {
		switch cmd.kind {
		case cmdResume:
			s.transition(SamplingState)
			return true
		case cmdStop:
			s.transition(StoppingState)
			s.transition(IdleState)
			return false
		case cmdSetActive:
			*active = cmd.signals
		case cmdPause:
			// already paused
		}
	}

	return false
}
