package sampler

import (
	"fmt"
	"math"
	"time"

	"github.com/probescope/probescope/logger"
	"github.com/probescope/probescope/store"
)

// DefaultFakeRate is the sample rate of a FakeSampler when none is given.
const DefaultFakeRate = 1000.0

// fakeSignal is one synthetic waveform.
type fakeSignal struct {
	name      string
	frequency float64 // Hz
	amplitude float64
	phase     float64 // radians
}

var fakeSignals = []fakeSignal{
	{name: "sine 1 Hz", frequency: 1, amplitude: 1},
	{name: "sine 5 Hz", frequency: 5, amplitude: 0.5, phase: math.Pi / 3},
	{name: "sine 50 Hz", frequency: 50, amplitude: 0.1, phase: math.Pi / 7},
}

// FakeSampler produces synthetic sine signals without any probe attached.
// It exists so the rest of the pipeline can be exercised end to end.
type FakeSampler struct {
	base

	rate float64
}

var _ Sampler = (*FakeSampler)(nil)

// NewFakeSampler creates a fake sampler producing samples at rate Hz.
// A non-positive rate selects DefaultFakeRate.
func NewFakeSampler(rate float64, l logger.Logger) *FakeSampler {
	if rate <= 0 {
		rate = DefaultFakeRate
	}

	return &FakeSampler{
		base: newBase(l, 0),
		rate: rate,
	}
}

// AvailableSignals lists the synthetic waveforms.
func (s *FakeSampler) AvailableSignals() []SignalInfo {
	out := make([]SignalInfo, 0, len(fakeSignals))
	for i, sig := range fakeSignals {
		out = append(out, SignalInfo{ID: uint32(i), Name: sig.name})
	}

	return out
}

// Start launches the generator worker.
func (s *FakeSampler) Start() error {
	if s.State() != IdleState {
		return ErrAlreadyStarted
	}

	go s.run()

	return nil
}

func (s *FakeSampler) run() {
	defer s.finish()

	s.transition(ConnectingState)
	s.transition(SamplingState)
	s.notifyInfo(fmt.Sprintf("fake sampling started at %g Hz", s.rate))

	period := time.Duration(float64(time.Second) / s.rate)
	start := time.Now()
	next := start
	paused := false

	var active []uint32

	for {
		select {
		case cmd := <-s.commands:
			switch cmd.kind {
			case cmdStop:
				s.transition(StoppingState)
				s.transition(IdleState)
				return
			case cmdPause:
				if !paused {
					paused = true
					s.transition(PausedState)
				}
			case cmdResume:
				if paused {
					paused = false
					next = time.Now()
					s.transition(SamplingState)
				}
			case cmdSetActive:
				active = cmd.signals
			}
			continue
		default:
		}

		if d := time.Until(next); d > 0 {
			sleepTick(d)
		}
		next = next.Add(period)

		if paused || len(active) == 0 {
			continue
		}

		t := time.Since(start)
		timestamp := uint64(t.Microseconds())
		seconds := t.Seconds()

		values := make([]store.SignalValue, 0, len(active))
		for _, id := range active {
			if int(id) >= len(fakeSignals) {
				continue
			}
			sig := fakeSignals[id]
			v := sig.amplitude * math.Sin(2*math.Pi*sig.frequency*seconds+sig.phase)
			values = append(values, store.SignalValue{ID: id, Value: v})
		}

		s.emit(store.Sample{Timestamp: timestamp, Values: values})
	}
}
