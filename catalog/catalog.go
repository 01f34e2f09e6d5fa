// Package catalog maintains the in-memory registry of signal definitions
// consumed by the samplers and exposed to the display layer.
//
// The catalog is written by the consumer side (enable/disable, multiplier
// changes) and read by the sampler worker; all accessors return complete
// copies of a definition so the worker never observes a half-updated signal.
package catalog

import (
	"errors"
	"fmt"
	"sync"

	"github.com/probescope/probescope/frame"
)

// ErrUnknownSignal indicates an operation on a signal ID that is not in the
// catalog.
var ErrUnknownSignal = errors.New("catalog: unknown signal id")

// SignalID identifies a signal within one catalog.
type SignalID uint32

// SourceKind distinguishes the two signal source locator forms.
type SourceKind uint8

const (
	// MemorySource locates a signal by target memory address.
	MemorySource SourceKind = iota
	// RTTSource locates a signal by field index within a resolved RTT buffer.
	RTTSource
)

// Source locates where a signal's raw value comes from.
type Source struct {
	Kind SourceKind

	// Memory source: byte address, width and encoding of the value.
	Address  uint64
	Width    int
	Encoding frame.FieldKind

	// RTT source: data field index within the channel's frame layout.
	FieldIndex int
}

// Signal is one named, independently enable/disable-able sampled quantity.
type Signal struct {
	ID      SignalID
	Name    string
	Source  Source
	Enabled bool

	// Multiplier scales the signal at presentation time only. Stored raw
	// values are never multiplied.
	Multiplier float64
}

// Candidate is a signal suggestion produced by an external symbol-table
// parser: a (name, address, width/encoding) triple used to pre-populate the
// catalog.
type Candidate struct {
	Name     string
	Address  uint64
	Width    int
	Encoding frame.FieldKind
}

// Catalog is the thread-safe signal registry.
type Catalog struct {
	mu      sync.RWMutex
	nextID  SignalID
	order   []SignalID
	signals map[SignalID]*Signal
}

// New creates an empty Catalog.
func New() *Catalog {
	return &Catalog{signals: make(map[SignalID]*Signal)}
}

// Add registers a signal definition and returns its assigned ID.
// New signals start disabled with a multiplier of 1.
func (c *Catalog) Add(name string, src Source) SignalID {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++

	c.signals[id] = &Signal{
		ID:         id,
		Name:       name,
		Source:     src,
		Multiplier: 1.0,
	}
	c.order = append(c.order, id)

	return id
}

// Remove deletes a signal definition.
func (c *Catalog) Remove(id SignalID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.signals[id]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownSignal, id)
	}
	delete(c.signals, id)

	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}

	return nil
}

// SetEnabled toggles whether a signal is sampled.
func (c *Catalog) SetEnabled(id SignalID, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sig, ok := c.signals[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownSignal, id)
	}
	sig.Enabled = enabled

	return nil
}

// SetMultiplier sets the display multiplier of a signal.
// The multiplier never alters stored raw values; it is applied only at
// presentation time.
func (c *Catalog) SetMultiplier(id SignalID, multiplier float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sig, ok := c.signals[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownSignal, id)
	}
	sig.Multiplier = multiplier

	return nil
}

// Snapshot returns a copy of one signal definition.
func (c *Catalog) Snapshot(id SignalID) (Signal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sig, ok := c.signals[id]
	if !ok {
		return Signal{}, false
	}

	return *sig, true
}

// List returns copies of all signal definitions in insertion order.
func (c *Catalog) List() []Signal {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Signal, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.signals[id])
	}

	return out
}

// Enabled returns copies of the enabled signal definitions in insertion order.
func (c *Catalog) Enabled() []Signal {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Signal, 0, len(c.order))
	for _, id := range c.order {
		if sig := c.signals[id]; sig.Enabled {
			out = append(out, *sig)
		}
	}

	return out
}

// Len returns the number of registered signals.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.order)
}

// Populate adds one signal per candidate produced by an external symbol-table
// parser. The signals start disabled.
func (c *Catalog) Populate(candidates []Candidate) []SignalID {
	ids := make([]SignalID, 0, len(candidates))
	for _, cand := range candidates {
		ids = append(ids, c.Add(cand.Name, Source{
			Kind:     MemorySource,
			Address:  cand.Address,
			Width:    cand.Width,
			Encoding: cand.Encoding,
		}))
	}

	return ids
}
