package sampler

import "sync/atomic"

// Metrics contains atomic counters describing the health of an acquisition.
// They are live values, safe to read from any goroutine, and can back a
// prometheus CounterFunc or a status line.
type Metrics struct {
	// SampleCount indicates the number of samples emitted.
	SampleCount atomic.Uint64
	// LagCount indicates the number of scheduled ticks skipped because the
	// previous round trip had not completed in time. Lag is a condition, not
	// an error.
	LagCount atomic.Uint64
	// DecodeErrCount indicates the number of frames dropped due to decode
	// errors. Decode errors never fault the sampler.
	DecodeErrCount atomic.Uint64
	// ResyncCount indicates the number of stream resynchronizations.
	ResyncCount atomic.Uint64
	// ProtocolErrCount indicates the number of transient protocol errors
	// absorbed by retry before the fault budget was reached.
	ProtocolErrCount atomic.Uint64
}

func (m *Metrics) incSampleCount() {
	m.SampleCount.Add(1)
}

func (m *Metrics) addLagCount(n uint64) {
	m.LagCount.Add(n)
}

func (m *Metrics) incDecodeErrCount() {
	m.DecodeErrCount.Add(1)
}

func (m *Metrics) incResyncCount() {
	m.ResyncCount.Add(1)
}

func (m *Metrics) incProtocolErrCount() {
	m.ProtocolErrCount.Add(1)
}
