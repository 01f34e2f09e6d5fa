package gdbremote

import (
	"errors"
	"fmt"
	"time"

	"github.com/probescope/probescope/logger"
)

// Default configuration values.
const (
	DefaultConnectTimeout = 3 * time.Second
	DefaultReadTimeout    = 2 * time.Second
	DefaultRetryLimit     = 3

	MaxRetryLimit = 31
)

// ConnConfig holds the configuration of a GDB remote connection.
type ConnConfig struct {
	host string
	port int

	connectTimeout time.Duration
	readTimeout    time.Duration

	// retryLimit bounds retransmission attempts in both directions.
	retryLimit int

	// noAckMode requests the QStartNoAckMode handshake after connecting.
	noAckMode bool

	logger logger.Logger
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
		return nil, errors.New("gdbremote: host must not be empty")
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("gdbremote: invalid port %d", port)
	}

	cfg := &ConnConfig{
		host:           host,
		port:           port,
		connectTimeout: DefaultConnectTimeout,
		readTimeout:    DefaultReadTimeout,
		retryLimit:     DefaultRetryLimit,
		noAckMode:      true,
		logger:         logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// WithConnectTimeout sets the TCP dial timeout.
func WithConnectTimeout(d time.Duration) ConnOption {
	return connOptFunc(func(cfg *ConnConfig) error {
		if d <= 0 {
			return errors.New("gdbremote: connect timeout must be positive")
		}
		cfg.connectTimeout = d

		return nil
	})
}

// WithReadTimeout sets the per-response read timeout.
func WithReadTimeout(d time.Duration) ConnOption {
	return connOptFunc(func(cfg *ConnConfig) error {
		if d <= 0 {
			return errors.New("gdbremote: read timeout must be positive")
		}
		cfg.readTimeout = d

		return nil
	})
}

// WithRetryLimit sets the retransmission budget.
func WithRetryLimit(n int) ConnOption {
	return connOptFunc(func(cfg *ConnConfig) error {
		if n < 0 || n > MaxRetryLimit {
			return fmt.Errorf("gdbremote: retry limit must be in range [0, %d]", MaxRetryLimit)
		}
		cfg.retryLimit = n

		return nil
	})
}

// WithNoAckMode controls whether the client negotiates QStartNoAckMode after
// connecting. Disabling it keeps per-packet '+'/'-' acknowledgements active.
func WithNoAckMode(enabled bool) ConnOption {
	return connOptFunc(func(cfg *ConnConfig) error {
		cfg.noAckMode = enabled

		return nil
	})
}

// WithLogger sets the logger used by the connection.
func WithLogger(l logger.Logger) ConnOption {
	return connOptFunc(func(cfg *ConnConfig) error {
		if l == nil {
			return errors.New("gdbremote: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
