// Package store provides the append-only, thread-safe time series store that
// the sampling worker writes and display/export consumers read.
//
// The store is scoped to one acquisition session: a single writer appends
// samples in timestamp order while arbitrarily many readers take consistent
// snapshots. Growth is unbounded within a session; TruncateBefore is offered
// as an explicit extension for callers that want bounded retention, the
// engine itself never evicts.
package store

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// ErrRangeBounds indicates a snapshot range with from > to or out-of-range
// indices.
var ErrRangeBounds = errors.New("store: invalid snapshot range")

// SignalValue is one (signal, raw value) pair within a sample.
type SignalValue struct {
	ID    uint32
	Value float64
}

// Sample is one timestamped set of signal values.
//
// Timestamp is in microseconds, either device-provided or relative to the
// session start, monotonic non-decreasing within a session.
type Sample struct {
	Timestamp uint64
	Values    []SignalValue
}

// Point is one (time, value) pair within a per-signal series.
type Point struct {
	Timestamp uint64
	Value     float64
}

// Store is the session-scoped sample store.
//
// Append is writer-only and must be called from a single goroutine; all other
// methods are safe for arbitrary concurrent use.
type Store struct {
	mu      sync.RWMutex
	samples []Sample

	lastTimestamp atomic.Uint64
	regressions   atomic.Uint64

	series *xsync.MapOf[uint32, *Series]
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		series: xsync.NewMapOf[uint32, *Series](),
	}
}

// Append adds one sample to the store and fans its values out into the
// per-signal series.
//
// Timestamps must be non-decreasing; a regressing timestamp is clamped to the
// previous one and counted, so readers always observe ordered data.
func (s *Store) Append(sample Sample) {
	last := s.lastTimestamp.Load()
	if sample.Timestamp < last {
		s.regressions.Add(1)
		sample.Timestamp = last
	} else {
		s.lastTimestamp.Store(sample.Timestamp)
	}

	s.mu.Lock()
	s.samples = append(s.samples, sample)
	s.mu.Unlock()

	for _, sv := range sample.Values {
		series, _ := s.series.LoadOrCompute(sv.ID, func() *Series {
			return newSeries(sv.ID)
		})
		series.append(Point{Timestamp: sample.Timestamp, Value: sv.Value})
	}
}

// Len returns the number of appended samples.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.samples)
}

// Latest returns the most recently appended sample.
// ok is false when the store is empty.
func (s *Store) Latest() (sample Sample, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.samples) == 0 {
		return Sample{}, false
	}

	return s.samples[len(s.samples)-1], true
}

// SnapshotRange returns a copy of the samples in [from, to).
//
// The copy is a consistent prefix observation: samples already appended are
// returned in exact append order and are never mutated afterwards.
func (s *Store) SnapshotRange(from, to int) ([]Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if from < 0 || to < from || to > len(s.samples) {
		return nil, ErrRangeBounds
	}

	out := make([]Sample, to-from)
	copy(out, s.samples[from:to])

	return out, nil
}

// Series returns the per-signal series for id, or nil if the signal has no
// samples yet.
func (s *Store) Series(id uint32) *Series {
	series, ok := s.series.Load(id)
	if !ok {
		return nil
	}

	return series
}

// SignalIDs returns the IDs of all signals that have at least one sample.
func (s *Store) SignalIDs() []uint32 {
	ids := make([]uint32, 0, s.series.Size())
	s.series.Range(func(id uint32, _ *Series) bool {
		ids = append(ids, id)
		return true
	})

	return ids
}

// Regressions returns the number of timestamp regressions clamped so far.
// A non-zero value is a data-quality signal, not an error.
func (s *Store) Regressions() uint64 {
	return s.regressions.Load()
}
