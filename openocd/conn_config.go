package openocd

import (
	"errors"
	"fmt"
	"time"

	"github.com/probescope/probescope/logger"
)

// Default configuration values.
const (
	DefaultConnectTimeout = 3 * time.Second
	DefaultReplyTimeout   = 2 * time.Second
)

// ConnConfig holds the configuration of a control-channel connection.
type ConnConfig struct {
	host string
	port int

	connectTimeout time.Duration

	// replyTimeout is the per-operation deadline for a command and its reply
	// lines.
	replyTimeout time.Duration

	dialect Dialect
	logger  logger.Logger
}

// ConnOption configures a ConnConfig.
type ConnOption interface {
	apply(cfg *ConnConfig) error
}

type connOptFunc func(cfg *ConnConfig) error

func (f connOptFunc) apply(cfg *ConnConfig) error {
	return f(cfg)
}

// NewConnConfig creates a connection configuration for the given endpoint,
// applying opts in order.
func NewConnConfig(host string, port int, opts ...ConnOption) (*ConnConfig, error) {
	if host == "" {
		return nil, errors.New("openocd: host must not be empty")
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("openocd: invalid port %d", port)
	}

	cfg := &ConnConfig{
		host:           host,
		port:           port,
		connectTimeout: DefaultConnectTimeout,
		replyTimeout:   DefaultReplyTimeout,
		dialect:        DefaultDialect(),
		logger:         logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Host returns the configured OpenOCD host. RTT server data streams listen
// on the same host as the control channel.
func (cfg *ConnConfig) Host() string {
	return cfg.host
}

// WithConnectTimeout sets the TCP dial timeout.
func WithConnectTimeout(d time.Duration) ConnOption {
	return connOptFunc(func(cfg *ConnConfig) error {
		if d <= 0 {
			return errors.New("openocd: connect timeout must be positive")
		}
		cfg.connectTimeout = d

		return nil
	})
}

// WithReplyTimeout sets the per-operation reply deadline.
func WithReplyTimeout(d time.Duration) ConnOption {
	return connOptFunc(func(cfg *ConnConfig) error {
		if d <= 0 {
			return errors.New("openocd: reply timeout must be positive")
		}
		cfg.replyTimeout = d

		return nil
	})
}

// WithDialect sets the reply grammar dialect.
func WithDialect(d Dialect) ConnOption {
	return connOptFunc(func(cfg *ConnConfig) error {
		if d == nil {
			return errors.New("openocd: dialect must not be nil")
		}
		cfg.dialect = d

		return nil
	})
}

// WithLogger sets the logger used by the connection.
func WithLogger(l logger.Logger) ConnOption {
	return connOptFunc(func(cfg *ConnConfig) error {
		if l == nil {
			return errors.New("openocd: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
