package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/probescope/probescope/catalog"
	"github.com/probescope/probescope/frame"
	"github.com/probescope/probescope/logger"
)

const sampleYAML = `
mode: memory
openocd:
  host: bench-probe
  port: 4445
  reply_timeout: 3s
gdb:
  host: bench-probe
  port: 3334
  retry_limit: 5
memory:
  rate: 250
  fault_budget: 10
  signals:
    - name: motor_current
      address: 0x20000010
      width: 4
      encoding: float
      multiplier: 0.001
    - name: error_flags
      address: 0x20000020
      width: 1
      encoding: unsigned
log_level: debug
`

func TestParse(t *testing.T) {
	require := require.New(t)

	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(err)

	require.Equal(ModeMemory, cfg.Mode)
	require.Equal("bench-probe", cfg.OpenOCD.Host)
	require.Equal(4445, cfg.OpenOCD.Port)
	require.Equal(3*time.Second, cfg.OpenOCD.ReplyTimeout)
	require.Equal(5, cfg.GDB.RetryLimit)
	require.Equal(250.0, cfg.Memory.Rate)
	require.Equal(10, cfg.Memory.FaultBudget)
	require.Len(cfg.Memory.Signals, 2)
	require.Equal(uint64(0x2000_0010), cfg.Memory.Signals[0].Address)
	require.Equal(logger.DebugLevel, cfg.Level())
}

func TestParseDefaults(t *testing.T) {
	require := require.New(t)

	cfg, err := Parse([]byte("mode: fake\n"))
	require.NoError(err)

	require.Equal("localhost", cfg.OpenOCD.Host)
	require.Equal(4444, cfg.OpenOCD.Port)
	require.Equal("localhost", cfg.GDB.Host)
	require.Equal(3333, cfg.GDB.Port)
	require.Equal(100.0, cfg.Memory.Rate)
	require.Equal(logger.InfoLevel, cfg.Level())
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	require := require.New(t)

	_, err := Parse([]byte("mode: rtt\nsample_rate: 100\n"))
	require.Error(err)
}

func TestValidate(t *testing.T) {
	require := require.New(t)

	t.Run("UnknownMode", func(t *testing.T) {
		_, err := Parse([]byte("mode: jtag\n"))
		require.ErrorContains(err, "unknown mode")
	})

	t.Run("UnknownLogLevel", func(t *testing.T) {
		_, err := Parse([]byte("mode: fake\nlog_level: chatty\n"))
		require.ErrorContains(err, "unknown log level")
	})

	t.Run("MemoryWithoutSignals", func(t *testing.T) {
		_, err := Parse([]byte("mode: memory\n"))
		require.ErrorContains(err, "at least one signal")
	})

	t.Run("BadSignalWidth", func(t *testing.T) {
		doc := `
mode: memory
memory:
  signals:
    - name: x
      address: 0x1000
      width: 3
      encoding: float
`
		_, err := Parse([]byte(doc))
		require.ErrorContains(err, "invalid width")
	})

	t.Run("BadEncoding", func(t *testing.T) {
		doc := `
mode: memory
memory:
  signals:
    - name: x
      address: 0x1000
      width: 4
      encoding: double
`
		_, err := Parse([]byte(doc))
		require.ErrorContains(err, "unknown encoding")
	})
}

func TestLoad(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "probescope.yaml")
	require.NoError(os.WriteFile(path, []byte(sampleYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(err)
	require.Equal(ModeMemory, cfg.Mode)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(err)
}

func TestMemorySignals(t *testing.T) {
	require := require.New(t)

	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(err)

	signals := cfg.MemorySignals()
	require.Len(signals, 2)

	require.Equal(catalog.SignalID(0), signals[0].ID)
	require.Equal("motor_current", signals[0].Name)
	require.Equal(catalog.MemorySource, signals[0].Source.Kind)
	require.Equal(frame.Float, signals[0].Source.Encoding)
	require.Equal(0.001, signals[0].Multiplier)
	require.True(signals[0].Enabled)

	// Unstated multiplier defaults to 1.
	require.Equal(1.0, signals[1].Multiplier)
	require.Equal(frame.Unsigned, signals[1].Source.Encoding)
	require.Equal(1, signals[1].Source.Width)
}

func TestSamplerConfigs(t *testing.T) {
	require := require.New(t)

	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(err)

	memCfg, err := cfg.SamplerMemConfig(nil)
	require.NoError(err)
	require.Equal(250.0, memCfg.Rate)
	require.Equal(10, memCfg.FaultBudget)
	require.Len(memCfg.Signals, 2)

	rttCfg, err := cfg.SamplerRTTConfig(nil)
	require.NoError(err)
	require.Equal("bench-probe", rttCfg.Conn.Host())
}
