package store

import "sync"

// Series is the append-only sample sequence of one signal.
type Series struct {
	id uint32

	mu     sync.RWMutex
	points []Point
}

func newSeries(id uint32) *Series {
	return &Series{id: id}
}

// ID returns the signal ID this series belongs to.
func (sr *Series) ID() uint32 {
	return sr.id
}

func (sr *Series) append(p Point) {
	sr.mu.Lock()
	sr.points = append(sr.points, p)
	sr.mu.Unlock()
}

// Len returns the number of points in the series.
func (sr *Series) Len() int {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	return len(sr.points)
}

// Latest returns the most recent point.
// ok is false when the series is empty.
func (sr *Series) Latest() (p Point, ok bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	if len(sr.points) == 0 {
		return Point{}, false
	}

	return sr.points[len(sr.points)-1], true
}

// SnapshotRange returns a copy of the points in [from, to).
func (sr *Series) SnapshotRange(from, to int) ([]Point, error) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	if from < 0 || to < from || to > len(sr.points) {
		return nil, ErrRangeBounds
	}

	out := make([]Point, to-from)
	copy(out, sr.points[from:to])

	return out, nil
}

// SnapshotTimeRange returns a copy of the points with Timestamp in [fromT, toT].
//
// The series is ordered by timestamp, so the bounds are located by binary
// search.
func (sr *Series) SnapshotTimeRange(fromT, toT uint64) []Point {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	lo := sr.searchLocked(fromT)
	hi := sr.searchLocked(toT + 1)

	out := make([]Point, hi-lo)
	copy(out, sr.points[lo:hi])

	return out
}

// searchLocked returns the index of the first point with Timestamp >= t.
// Caller must hold at least the read lock.
func (sr *Series) searchLocked(t uint64) int {
	lo, hi := 0, len(sr.points)
	for lo < hi {
		mid := (lo + hi) / 2
		if sr.points[mid].Timestamp < t {
			lo = mid + 1
		} else {
			hi = mid
		}
	}

	return lo
}

// TruncateBefore drops all points with Timestamp < t and returns the number
// dropped.
//
// This is a retention extension for long-running consumers; the acquisition
// engine never calls it. Indices returned by earlier SnapshotRange calls are
// invalidated.
func (sr *Series) TruncateBefore(t uint64) int {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	cut := 0
	for cut < len(sr.points) && sr.points[cut].Timestamp < t {
		cut++
	}
	if cut == 0 {
		return 0
	}

	remaining := len(sr.points) - cut
	copy(sr.points, sr.points[cut:])
	sr.points = sr.points[:remaining]

	return cut
}
