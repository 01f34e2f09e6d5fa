// Package config loads and validates probescope configuration files.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/probescope/probescope/catalog"
	"github.com/probescope/probescope/frame"
	"github.com/probescope/probescope/gdbremote"
	"github.com/probescope/probescope/logger"
	"github.com/probescope/probescope/openocd"
	"github.com/probescope/probescope/sampler"
)

// Acquisition modes.
const (
	ModeRTT    = "rtt"
	ModeMemory = "memory"
	ModeFake   = "fake"
)

// Config is the top-level configuration document.
type Config struct {
	// Mode selects the acquisition source: "rtt", "memory" or "fake".
	Mode string `yaml:"mode"`

	OpenOCD OpenOCDConfig `yaml:"openocd"`
	GDB     GDBConfig     `yaml:"gdb"`
	RTT     RTTConfig     `yaml:"rtt"`
	Memory  MemoryConfig  `yaml:"memory"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// OpenOCDConfig is the telnet control-channel endpoint.
type OpenOCDConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReplyTimeout   time.Duration `yaml:"reply_timeout"`
}

// GDBConfig is the GDB remote endpoint.
type GDBConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	RetryLimit     int           `yaml:"retry_limit"`
	NoAckMode      *bool         `yaml:"no_ack_mode"`
}

// RTTConfig holds the RTT acquisition parameters.
type RTTConfig struct {
	SearchFrom        uint64 `yaml:"search_from"`
	SearchBytes       uint32 `yaml:"search_bytes"`
	BlockID           string `yaml:"block_id"`
	DataPort          uint16 `yaml:"data_port"`
	PollingIntervalMs uint32 `yaml:"polling_interval_ms"`
	AdapterSpeedKHz   int    `yaml:"adapter_speed_khz"`
}

// MemoryConfig holds the memory acquisition parameters.
type MemoryConfig struct {
	// Rate is the target sampling frequency in Hz.
	Rate float64 `yaml:"rate"`

	// FaultBudget bounds consecutive transient protocol errors.
	FaultBudget int `yaml:"fault_budget"`

	Signals []MemorySignal `yaml:"signals"`
}

// MemorySignal defines one memory-source signal.
type MemorySignal struct {
	Name    string `yaml:"name"`
	Address uint64 `yaml:"address"`
	// Width is the read size in bytes: 1, 2 or 4.
	Width int `yaml:"width"`
	// Encoding is one of bool, float, signed, unsigned.
	Encoding string `yaml:"encoding"`
	// Multiplier scales decoded values. Zero means 1.
	Multiplier float64 `yaml:"multiplier"`
}

// Default returns a configuration with all defaults filled in.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()

	return cfg
}

// Load reads and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	return Parse(data)
}

// Parse parses and validates a YAML configuration document.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.UnmarshalWithOptions(data, cfg, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeRTT
	}
	if c.OpenOCD.Host == "" {
		c.OpenOCD.Host = "localhost"
	}
	if c.OpenOCD.Port == 0 {
		c.OpenOCD.Port = 4444
	}
	if c.GDB.Host == "" {
		c.GDB.Host = "localhost"
	}
	if c.GDB.Port == 0 {
		c.GDB.Port = 3333
	}
	if c.Memory.Rate == 0 {
		c.Memory.Rate = 100
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks the configuration for inconsistencies not caught by the
// YAML decoder.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeRTT, ModeMemory, ModeFake:
	default:
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	}

	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return err
	}

	if c.Mode == ModeMemory {
		if len(c.Memory.Signals) == 0 {
			return errors.New("config: memory mode requires at least one signal")
		}
		if c.Memory.Rate <= 0 {
			return fmt.Errorf("config: invalid sample rate %g", c.Memory.Rate)
		}
		for _, sig := range c.Memory.Signals {
			if sig.Name == "" {
				return errors.New("config: memory signal without a name")
			}
			enc, err := parseEncoding(sig.Encoding)
			if err != nil {
				return fmt.Errorf("config: signal %q: %w", sig.Name, err)
			}
			switch sig.Width {
			case 1, 2, 4:
			default:
				return fmt.Errorf("config: signal %q: invalid width %d", sig.Name, sig.Width)
			}
			if enc == frame.Float && sig.Width != 4 {
				return fmt.Errorf("config: signal %q: float signals must be 4 bytes wide", sig.Name)
			}
			if enc == frame.Bool && sig.Width != 1 {
				return fmt.Errorf("config: signal %q: bool signals must be 1 byte wide", sig.Name)
			}
		}
	}

	return nil
}

// Level returns the configured log level.
func (c *Config) Level() logger.Level {
	lvl, _ := parseLogLevel(c.LogLevel)
	return lvl
}

func parseLogLevel(s string) (logger.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return logger.DebugLevel, nil
	case "info", "":
		return logger.InfoLevel, nil
	case "warn", "warning":
		return logger.WarnLevel, nil
	case "error":
		return logger.ErrorLevel, nil
	default:
		return logger.InfoLevel, fmt.Errorf("config: unknown log level %q", s)
	}
}

func parseEncoding(s string) (frame.FieldKind, error) {
	switch strings.ToLower(s) {
	case "bool", "b":
		return frame.Bool, nil
	case "float", "f", "":
		return frame.Float, nil
	case "signed", "i":
		return frame.Signed, nil
	case "unsigned", "u":
		return frame.Unsigned, nil
	default:
		return frame.Float, fmt.Errorf("unknown encoding %q", s)
	}
}

// MemorySignals converts the memory signal definitions into catalog signals
// with sequential IDs.
func (c *Config) MemorySignals() []catalog.Signal {
	out := make([]catalog.Signal, 0, len(c.Memory.Signals))
	for i, sig := range c.Memory.Signals {
		enc, _ := parseEncoding(sig.Encoding)
		mult := sig.Multiplier
		if mult == 0 {
			mult = 1
		}

		out = append(out, catalog.Signal{
			ID:   catalog.SignalID(i),
			Name: sig.Name,
			Source: catalog.Source{
				Kind:     catalog.MemorySource,
				Address:  sig.Address,
				Width:    sig.Width,
				Encoding: enc,
			},
			Enabled:    true,
			Multiplier: mult,
		})
	}

	return out
}

// SamplerRTTConfig builds the RTT sampler configuration. Transport options
// are assembled from the OpenOCD section.
func (c *Config) SamplerRTTConfig(l logger.Logger) (*sampler.RTTConfig, error) {
	var opts []openocd.ConnOption
	if c.OpenOCD.ConnectTimeout > 0 {
		opts = append(opts, openocd.WithConnectTimeout(c.OpenOCD.ConnectTimeout))
	}
	if c.OpenOCD.ReplyTimeout > 0 {
		opts = append(opts, openocd.WithReplyTimeout(c.OpenOCD.ReplyTimeout))
	}
	if l != nil {
		opts = append(opts, openocd.WithLogger(l))
	}

	conn, err := openocd.NewConnConfig(c.OpenOCD.Host, c.OpenOCD.Port, opts...)
	if err != nil {
		return nil, err
	}

	return &sampler.RTTConfig{
		Conn:              conn,
		SearchFrom:        c.RTT.SearchFrom,
		SearchBytes:       c.RTT.SearchBytes,
		BlockID:           c.RTT.BlockID,
		DataPort:          c.RTT.DataPort,
		PollingIntervalMs: c.RTT.PollingIntervalMs,
		AdapterSpeedKHz:   c.RTT.AdapterSpeedKHz,
		Logger:            l,
	}, nil
}

// SamplerMemConfig builds the memory sampler configuration. Transport
// options are assembled from the GDB section.
func (c *Config) SamplerMemConfig(l logger.Logger) (*sampler.MemConfig, error) {
	var opts []gdbremote.ConnOption
	if c.GDB.ConnectTimeout > 0 {
		opts = append(opts, gdbremote.WithConnectTimeout(c.GDB.ConnectTimeout))
	}
	if c.GDB.ReadTimeout > 0 {
		opts = append(opts, gdbremote.WithReadTimeout(c.GDB.ReadTimeout))
	}
	if c.GDB.RetryLimit > 0 {
		opts = append(opts, gdbremote.WithRetryLimit(c.GDB.RetryLimit))
	}
	if c.GDB.NoAckMode != nil {
		opts = append(opts, gdbremote.WithNoAckMode(*c.GDB.NoAckMode))
	}
	if l != nil {
		opts = append(opts, gdbremote.WithLogger(l))
	}

	conn, err := gdbremote.NewConnConfig(c.GDB.Host, c.GDB.Port, opts...)
	if err != nil {
		return nil, err
	}

	return &sampler.MemConfig{
		Conn:        conn,
		Rate:        c.Memory.Rate,
		Signals:     c.MemorySignals(),
		FaultBudget: c.Memory.FaultBudget,
		Logger:      l,
	}, nil
}
