// Package session ties one sampler to one store: it owns the drain loop
// moving acquired samples into the store, exposes scaled views of the stored
// series, and surfaces worker notifications to the caller.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/probescope/probescope/catalog"
	"github.com/probescope/probescope/logger"
	"github.com/probescope/probescope/sampler"
	"github.com/probescope/probescope/store"
)

// Config configures a Session.
type Config struct {
	// Sampler is the acquisition source. The session calls Start.
	Sampler sampler.Sampler

	// Store receives the acquired samples. Nil creates a fresh store.
	// The store outlives the session: closing the session stops
	// acquisition but keeps the data readable.
	Store *store.Store

	// Catalog holds the signal definitions. Nil creates an empty catalog
	// populated from the sampler's available signals.
	Catalog *catalog.Catalog

	// OnNotification, when set, is invoked for every sampler notification
	// from the drain goroutine.
	OnNotification func(sampler.Notification)

	Logger logger.Logger
}

// Session runs one acquisition: it starts the sampler, drains its sample
// stream into the store, and records the fault, if any, for the caller to
// inspect. Raw values are stored unscaled; catalog multipliers are applied
// only by the read-side views such as Points.
type Session struct {
	smp  sampler.Sampler
	st   *store.Store
	cat  *catalog.Catalog
	log  logger.Logger
	noti func(sampler.Notification)

	faultMu sync.Mutex
	fault   error

	done     chan struct{}
	stopOnce sync.Once
}

// New creates a session and starts acquisition.
func New(cfg *Config) (*Session, error) {
	if cfg == nil || cfg.Sampler == nil {
		return nil, errors.New("session: sampler is required")
	}

	l := cfg.Logger
	if l == nil {
		l = logger.GetLogger()
	}

	st := cfg.Store
	if st == nil {
		st = store.New()
	}

	cat := cfg.Catalog
	if cat == nil {
		cat = catalog.New()
	}

	s := &Session{
		smp:  cfg.Sampler,
		st:   st,
		cat:  cat,
		log:  l,
		noti: cfg.OnNotification,
		done: make(chan struct{}),
	}

	if err := cfg.Sampler.Start(); err != nil {
		return nil, err
	}

	go s.drainSamples()
	go s.drainNotifications()

	return s, nil
}

// Store returns the backing store. It stays valid after Close.
func (s *Session) Store() *store.Store {
	return s.st
}

// Catalog returns the signal catalog.
func (s *Session) Catalog() *catalog.Catalog {
	return s.cat
}

// State returns the sampler's lifecycle state.
func (s *Session) State() sampler.State {
	return s.smp.State()
}

// Metrics returns the sampler's live counters.
func (s *Session) Metrics() *sampler.Metrics {
	return s.smp.Metrics()
}

// Err returns the error that faulted the sampler, or nil.
func (s *Session) Err() error {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()

	return s.fault
}

// PopulateFromSampler fills an empty catalog with the sampler's available
// signals. For RTT acquisition the signal layout is only known once the
// handshake completes, so call this after the sampler reaches the sampling
// state. IDs assigned by an empty catalog match the sampler's signal IDs.
func (s *Session) PopulateFromSampler() []catalog.SignalID {
	infos := s.smp.AvailableSignals()

	ids := make([]catalog.SignalID, 0, len(infos))
	for _, info := range infos {
		ids = append(ids, s.cat.Add(info.Name, catalog.Source{Kind: catalog.RTTSource, FieldIndex: int(info.ID)}))
	}

	return ids
}

// ApplySelection pushes the catalog's enabled set to the sampler. Call it
// after changing signal enablement.
func (s *Session) ApplySelection() {
	enabled := s.cat.Enabled()

	ids := make([]uint32, 0, len(enabled))
	for _, sig := range enabled {
		ids = append(ids, uint32(sig.ID))
	}

	s.smp.SetActiveSignals(ids)
}

// Points returns a scaled copy of the stored series of one signal: the raw
// points with the signal's current multiplier applied. Changing the
// multiplier later rescales past and future points alike, since raw values
// are stored unscaled.
func (s *Session) Points(id catalog.SignalID) ([]store.Point, error) {
	sig, ok := s.cat.Snapshot(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", catalog.ErrUnknownSignal, id)
	}

	series := s.st.Series(uint32(id))
	if series == nil {
		return nil, nil
	}

	points, err := series.SnapshotRange(0, series.Len())
	if err != nil {
		return nil, err
	}

	m := sig.Multiplier
	if m != 1 {
		for i := range points {
			points[i].Value *= m
		}
	}

	return points, nil
}

// EnableSignal toggles a signal and pushes the new selection.
func (s *Session) EnableSignal(id catalog.SignalID, enabled bool) error {
	if err := s.cat.SetEnabled(id, enabled); err != nil {
		return err
	}
	s.ApplySelection()

	return nil
}

// SetMultiplier changes a signal's presentation scaling. Stored raw values
// are unaffected; only read-side views observe the new multiplier.
func (s *Session) SetMultiplier(id catalog.SignalID, multiplier float64) error {
	return s.cat.SetMultiplier(id, multiplier)
}

// Pause suspends acquisition without dropping the target connection.
func (s *Session) Pause() {
	s.smp.Pause()
}

// Resume continues acquisition after Pause.
func (s *Session) Resume() {
	s.smp.Resume()
}

// Close stops the sampler and waits for the drain loop to finish. The store
// remains readable. Close is idempotent.
func (s *Session) Close() {
	s.stopOnce.Do(func() {
		s.smp.Stop()
		<-s.done
	})
}

// drainSamples moves samples from the worker into the store. It exits when
// the sampler closes its stream.
func (s *Session) drainSamples() {
	defer close(s.done)

	for sample := range s.smp.Samples() {
		s.st.Append(sample)
	}

	s.log.Debug("sample stream closed", "stored", s.st.Len())
}

// drainNotifications records faults and forwards everything to the optional
// callback.
func (s *Session) drainNotifications() {
	for n := range s.smp.Notifications() {
		if n.Kind == sampler.ErrorNotification && n.Err != nil {
			s.faultMu.Lock()
			if s.fault == nil {
				s.fault = n.Err
			}
			s.faultMu.Unlock()
		}

		if s.noti != nil {
			s.noti(n)
		}
	}
}
