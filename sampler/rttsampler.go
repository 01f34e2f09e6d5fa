package sampler

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/probescope/probescope/frame"
	"github.com/probescope/probescope/internal/pool"
	"github.com/probescope/probescope/logger"
	"github.com/probescope/probescope/openocd"
	"github.com/probescope/probescope/store"
)

// Default RTT acquisition parameters.
const (
	// DefaultSearchFrom is the RAM address the control block search starts at.
	DefaultSearchFrom = 0x2000_0000
	// DefaultSearchBytes is the length of the control block search window.
	DefaultSearchBytes = 128 * 1024
	// DefaultBlockID is the identifier string of the RTT control block.
	DefaultBlockID = "SEGGER RTT"
	// DefaultDataPort is the TCP port the RTT server is asked to listen on.
	DefaultDataPort = 19021
	// DefaultPollingIntervalMs is the on-probe RTT polling interval.
	DefaultPollingIntervalMs = 1
	// DefaultAdapterSpeedKHz is the debug adapter clock requested at startup.
	DefaultAdapterSpeedKHz = 1000

	pollTimeout  = 20 * time.Millisecond
	drainIdle    = 100 * time.Millisecond
	pollBufBytes = 64 * 1024
)

// RTTConfig configures an RTTSampler.
type RTTConfig struct {
	// Conn is the OpenOCD control-channel configuration.
	Conn *openocd.ConnConfig

	// SearchFrom and SearchBytes define the control block search window.
	// Zero values select the defaults.
	SearchFrom  uint64
	SearchBytes uint32

	// BlockID is the control block identifier. Empty selects DefaultBlockID.
	BlockID string

	// DataPort is the TCP port for the RTT server. Zero selects
	// DefaultDataPort.
	DataPort uint16

	// PollingIntervalMs is the on-probe polling interval. Zero selects
	// DefaultPollingIntervalMs.
	PollingIntervalMs uint32

	// AdapterSpeedKHz is the requested adapter clock. Zero selects
	// DefaultAdapterSpeedKHz.
	AdapterSpeedKHz int

	// QueueSize overrides the sample channel capacity. Zero selects
	// DefaultSampleQueueSize.
	QueueSize int

	Logger logger.Logger
}

func (cfg *RTTConfig) validate() error {
	if cfg.Conn == nil {
		return errors.New("sampler: openocd connection config is nil")
	}
	if cfg.SearchFrom == 0 {
		cfg.SearchFrom = DefaultSearchFrom
	}
	if cfg.SearchBytes == 0 {
		cfg.SearchBytes = DefaultSearchBytes
	}
	if cfg.BlockID == "" {
		cfg.BlockID = DefaultBlockID
	}
	if cfg.DataPort == 0 {
		cfg.DataPort = DefaultDataPort
	}
	if cfg.PollingIntervalMs == 0 {
		cfg.PollingIntervalMs = DefaultPollingIntervalMs
	}
	if cfg.AdapterSpeedKHz == 0 {
		cfg.AdapterSpeedKHz = DefaultAdapterSpeedKHz
	}

	return nil
}

// RTTSampler acquires frames streamed by the target through an RTT up
// channel, decoded according to the channel name descriptor.
type RTTSampler struct {
	base

	cfg *RTTConfig

	// descMu guards desc: the worker writes it during the handshake while
	// callers may already be polling AvailableSignals.
	descMu sync.RWMutex
	desc   frame.Descriptor

	// lastDevice/deviceBase extend the wrapping 32-bit device timestamp to
	// a monotonic 64-bit one.
	lastDevice uint32
	deviceBase uint64
}

var _ Sampler = (*RTTSampler)(nil)

// NewRTTSampler creates an RTT sampler. Call Start to begin acquisition; the
// channel layout is only known after the handshake, so AvailableSignals
// returns nothing until the sampler reaches the sampling state.
func NewRTTSampler(cfg *RTTConfig) (*RTTSampler, error) {
	if cfg == nil {
		return nil, errors.New("sampler: rtt config is nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &RTTSampler{
		base: newBase(cfg.Logger, cfg.QueueSize),
		cfg:  cfg,
	}, nil
}

// AvailableSignals lists one signal per frame field. The list is empty
// before the handshake has discovered the channel descriptor.
func (s *RTTSampler) AvailableSignals() []SignalInfo {
	s.descMu.RLock()
	desc := s.desc
	s.descMu.RUnlock()

	out := make([]SignalInfo, 0, len(desc.Fields))
	for i, f := range desc.Fields {
		out = append(out, SignalInfo{
			ID:   uint32(i),
			Name: fmt.Sprintf("field %d (%s%d)", i, f.Kind, f.Size),
		})
	}

	return out
}

// Start connects and launches the acquisition worker.
func (s *RTTSampler) Start() error {
	if s.State() != IdleState {
		return ErrAlreadyStarted
	}

	go s.run()

	return nil
}

func (s *RTTSampler) run() {
	defer s.finish()

	s.transition(ConnectingState)

	client, err := openocd.Connect(s.cfg.Conn)
	if err != nil {
		s.fault(fmt.Errorf("sampler: connect control channel: %w", err))
		return
	}
	defer client.Close()

	stream, err := s.handshake(client)
	if err != nil {
		s.fault(err)
		return
	}
	defer stream.Close()

	if err := s.synchronize(client, stream); err != nil {
		s.fault(err)
		return
	}

	s.descMu.RLock()
	numFields, stride := s.desc.NumFields(), s.desc.Stride()
	s.descMu.RUnlock()

	s.transition(SamplingState)
	s.notifyInfo(fmt.Sprintf("rtt sampling started, %d fields, stride %d bytes",
		numFields, stride))

	s.sampleLoop(client, stream)
}

// handshake brings up RTT on the probe and attaches the data stream.
func (s *RTTSampler) handshake(client *openocd.Client) (*openocd.DataStream, error) {
	// A previous session may have left RTT running.
	if err := client.RTTStop(); err != nil && !errors.Is(err, openocd.ErrTimeout) {
		return nil, fmt.Errorf("sampler: rtt stop: %w", err)
	}

	if err := client.RTTSetup(s.cfg.SearchFrom, s.cfg.SearchBytes, s.cfg.BlockID); err != nil {
		return nil, fmt.Errorf("sampler: rtt setup: %w", err)
	}

	cbAddr, err := client.RTTStart()
	if err != nil {
		return nil, fmt.Errorf("sampler: rtt start: %w", err)
	}
	s.logger.Info("rtt control block found", "address", fmt.Sprintf("0x%08x", cbAddr))

	if actual, err := client.SetAdapterSpeed(s.cfg.AdapterSpeedKHz); err != nil {
		s.logger.Warn("adapter speed not set", "requested", s.cfg.AdapterSpeedKHz, "error", err)
	} else if actual != s.cfg.AdapterSpeedKHz {
		s.logger.Info("adapter speed adjusted by probe", "requested", s.cfg.AdapterSpeedKHz, "actual", actual)
	}

	if err := client.SetRTTPollingInterval(s.cfg.PollingIntervalMs); err != nil {
		return nil, fmt.Errorf("sampler: rtt polling interval: %w", err)
	}

	channels, err := client.RTTChannels()
	if err != nil {
		return nil, fmt.Errorf("sampler: rtt channels: %w", err)
	}

	ch, err := openocd.FindScopeChannel(channels)
	if err != nil {
		return nil, fmt.Errorf("sampler: %w", err)
	}

	desc, err := frame.ParseChannelName(ch.Name)
	if err != nil {
		return nil, fmt.Errorf("sampler: channel %q: %w", ch.Name, err)
	}
	s.descMu.Lock()
	s.desc = desc
	s.descMu.Unlock()

	if err := client.RTTServerStart(s.cfg.DataPort, ch.ID); err != nil {
		return nil, fmt.Errorf("sampler: rtt server start: %w", err)
	}

	stream, err := openocd.DialDataStream(s.cfg.Conn.Host(), s.cfg.DataPort, openocd.DefaultConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("sampler: dial data stream: %w", err)
	}

	return stream, nil
}

// synchronize discards any stale buffer content so decoding starts on a
// frame boundary: with the target halted the probe drains the up buffer,
// after which the stream goes idle and everything read so far is stale.
func (s *RTTSampler) synchronize(client *openocd.Client, stream *openocd.DataStream) error {
	if err := client.Halt(); err != nil {
		// Some targets are already halted, or the halt notice races the
		// reply deadline. Stale data is still drained below.
		if !errors.Is(err, openocd.ErrTimeout) {
			return fmt.Errorf("sampler: halt: %w", err)
		}
		s.logger.Debug("halt reply timed out, continuing with drain")
	}

	n, err := stream.Drain(drainIdle)
	if err != nil {
		return fmt.Errorf("sampler: drain stale data: %w", err)
	}
	s.logger.Debug("stale stream data discarded", "bytes", n)

	if err := client.Resume(); err != nil {
		return fmt.Errorf("sampler: resume: %w", err)
	}

	s.metrics.incResyncCount()

	return nil
}

func (s *RTTSampler) sampleLoop(client *openocd.Client, stream *openocd.DataStream) {
	s.descMu.RLock()
	desc := s.desc
	s.descMu.RUnlock()

	decoder, err := frame.NewDecoder(desc)
	if err != nil {
		s.fault(fmt.Errorf("sampler: %w", err))
		return
	}

	start := time.Now()
	buf := make([]byte, pollBufBytes)
	paused := false

	var active []uint32

	rateWindow := time.Now()
	rateCount := uint64(0)

	for {
		select {
		case cmd := <-s.commands:
			switch cmd.kind {
			case cmdStop:
				s.shutdown(client)
				return
			case cmdPause:
				if !paused {
					paused = true
					s.transition(PausedState)
				}
			case cmdResume:
				if paused {
					paused = false
					s.transition(SamplingState)
				}
			case cmdSetActive:
				active = cmd.signals
			}
			continue
		default:
		}

		chunk, err := stream.Poll(buf, pollTimeout)
		if err != nil {
			if errors.Is(err, openocd.ErrConnClosed) {
				s.fault(fmt.Errorf("sampler: data stream: %w", err))
				return
			}
			s.metrics.incProtocolErrCount()
			s.logger.Warn("data stream read error", "error", err)
			continue
		}
		if chunk == nil {
			continue
		}

		// Paused keeps the decoder fed so the frame boundary carry-over
		// stays intact across the pause; decoded frames are dropped at
		// emission below instead of at the stream.
		frames, err := decoder.Write(chunk)
		if err != nil {
			s.metrics.incDecodeErrCount()
			s.logger.Warn("frame decode error", "error", err)
			decoder.Reset()
			continue
		}

		if paused {
			continue
		}

		for _, fr := range frames {
			s.emitFrame(fr, active, start)
		}
		rateCount += uint64(len(frames))

		if elapsed := time.Since(rateWindow); elapsed >= time.Second {
			rate := float64(rateCount) / elapsed.Seconds()
			s.notifyInfo(fmt.Sprintf("%.0f samples/s", rate))
			rateWindow = time.Now()
			rateCount = 0
		}
	}
}

// emitFrame converts one decoded frame into a sample, filtered to the active
// field set.
func (s *RTTSampler) emitFrame(fr frame.Frame, active []uint32, start time.Time) {
	var timestamp uint64
	if fr.HasTimestamp {
		timestamp = s.extendTimestamp(fr.Timestamp)
	} else {
		timestamp = uint64(time.Since(start).Microseconds())
	}

	values := make([]store.SignalValue, 0, len(active))
	for _, id := range active {
		if int(id) >= len(fr.Values) {
			continue
		}
		values = append(values, store.SignalValue{ID: id, Value: fr.Values[id]})
	}
	if len(values) == 0 {
		return
	}

	s.emit(store.Sample{Timestamp: timestamp, Values: values})
}

// extendTimestamp widens the wrapping 32-bit device timestamp to 64 bits.
// Frames arrive in order, so a smaller raw value than the previous one means
// the counter wrapped exactly once since then.
func (s *RTTSampler) extendTimestamp(raw uint32) uint64 {
	if raw < s.lastDevice {
		s.deviceBase += 1 << 32
	}
	s.lastDevice = raw

	return s.deviceBase + uint64(raw)
}

// shutdown tears down the probe-side RTT server before going idle.
func (s *RTTSampler) shutdown(client *openocd.Client) {
	s.transition(StoppingState)

	if err := client.RTTServerStop(s.cfg.DataPort); err != nil {
		s.logger.Warn("rtt server stop failed", "error", err)
	}
	if err := client.RTTStop(); err != nil {
		s.logger.Warn("rtt stop failed", "error", err)
	}

	s.transition(IdleState)
}

// sleepTick is a pooled-timer sleep used by samplers that pace themselves.
func sleepTick(d time.Duration) {
	timer := pool.GetTimer(d)
	<-timer.C
	pool.PutTimer(timer)
}
