package openocd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/probescope/probescope/logger"
)

// readChunkSize is the transport read granularity.
const readChunkSize = 1024

// Telnet protocol bytes (RFC 854). OpenOCD's telnet server negotiates options
// on connect and pads output with NUL printer no-ops; both are stripped from
// the line buffer.
const (
	telnetIAC  = 0xFF
	telnetSB   = 0xFA
	telnetSE   = 0xF0
	telnetWill = 0xFB
	telnetDont = 0xFE
)

// Client is a control-channel protocol client.
//
// A Client issues commands strictly serially and is not goroutine-safe; it is
// owned by the sampler that performs the RTT handshake.
type Client struct {
	cfg     *ConnConfig
	conn    net.Conn
	dialect Dialect
	logger  logger.Logger

	timeout time.Duration

	// buf accumulates filtered reply bytes until a prompt or a complete line
	// can be consumed from its front.
	buf []byte

	// Telnet filter state carried across reads.
	inIAC bool
	inSub bool
	skip  int
}

// Connect dials the configured control-channel endpoint.
//
// The server's banner and option negotiation are tolerated: they sit in the
// buffer until the first waitPrompt discards them.
func Connect(cfg *ConnConfig) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("openocd: connection config is nil")
	}

	addr := net.JoinHostPort(cfg.host, strconv.Itoa(cfg.port))

	conn, err := net.DialTimeout("tcp", addr, cfg.connectTimeout)
	if err != nil {
		return nil, fmt.Errorf("openocd: dial %s: %w", addr, err)
	}

	return &Client{
		cfg:     cfg,
		conn:    conn,
		dialect: cfg.dialect,
		logger:  cfg.logger,
		timeout: cfg.replyTimeout,
	}, nil
}

// Close tears down the control channel.
func (c *Client) Close() error {
	return c.conn.Close()
}

// SetReplyTimeout changes the per-operation reply deadline.
func (c *Client) SetReplyTimeout(d time.Duration) {
	c.timeout = d
}

// --- Low-level I/O helpers ---

// fill reads more bytes from the transport, strips telnet control sequences
// and NUL padding, and appends the rest to the line buffer.
func (c *Client) fill(deadline time.Time) error {
	if time.Now().After(deadline) {
		return ErrTimeout
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return err
	}

	chunk := make([]byte, readChunkSize)

	n, err := c.conn.Read(chunk)
	if n > 0 {
		c.buf = append(c.buf, c.filterTelnet(chunk[:n])...)
		return nil
	}

	switch {
	case errors.Is(err, os.ErrDeadlineExceeded):
		return ErrTimeout
	case errors.Is(err, io.EOF):
		return ErrConnClosed
	default:
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return ErrTimeout
		}
		return fmt.Errorf("openocd: read: %w", err)
	}
}

// filterTelnet removes IAC command sequences, subnegotiations and NUL bytes.
// Filter state persists across calls since sequences can span reads.
func (c *Client) filterTelnet(in []byte) []byte {
	out := make([]byte, 0, len(in))

	for _, b := range in {
		switch {
		case c.skip > 0:
			c.skip--
		case c.inSub:
			if b == telnetSE {
				c.inSub = false
			}
		case c.inIAC:
			c.inIAC = false
			switch {
			case b == telnetIAC:
				out = append(out, b) // escaped literal 0xFF
			case b == telnetSB:
				c.inSub = true
			case b >= telnetWill && b <= telnetDont:
				c.skip = 1 // option byte follows
			}
		case b == telnetIAC:
			c.inIAC = true
		case b == 0x00:
			// NUL is a printer no-op, RFC 854 p.10.
		default:
			out = append(out, b)
		}
	}

	return out
}

// waitPrompt discards buffered bytes until the server prompt is seen.
func (c *Client) waitPrompt(deadline time.Time) error {
	prompt := c.dialect.Prompt()

	for {
		if bytes.HasSuffix(c.buf, prompt) {
			c.buf = c.buf[:0]
			return nil
		}

		if err := c.fill(deadline); err != nil {
			return err
		}
	}
}

// readLine returns the next CRLF-terminated line with the terminator removed.
//
// Lines starting with two backspaces are debug output interleaved with the
// prompt redraw and are skipped.
func (c *Client) readLine(deadline time.Time) (string, error) {
	for {
		if i := bytes.Index(c.buf, []byte("\r\n")); i >= 0 {
			line := string(c.buf[:i])
			c.buf = c.buf[i+2:]

			if strings.HasPrefix(line, "\b\b") {
				c.logger.Debug("openocd: skipping prompt-redraw line")
				continue
			}

			return line, nil
		}

		if err := c.fill(deadline); err != nil {
			return "", err
		}
	}
}

// waitLineWith reads lines until one matches pred, discarding (but
// remembering) the rest.
//
// On deadline expiry, a discarded line is reported as ErrUnexpectedResponse
// so the caller can distinguish a malformed reply from a silent probe; with
// no line at all the result is ErrTimeout.
func (c *Client) waitLineWith(deadline time.Time, pred func(string) bool) (string, error) {
	var lastDiscarded string
	discarded := false

	for {
		line, err := c.readLine(deadline)
		if err != nil {
			if errors.Is(err, ErrTimeout) && discarded {
				return "", fmt.Errorf("%w: %q", ErrUnexpectedResponse, lastDiscarded)
			}
			return "", err
		}

		if pred(line) {
			return line, nil
		}

		c.logger.Debug("openocd: discarding reply line", "line", line)
		lastDiscarded = line
		discarded = true
	}
}

// writeCommand sends a command line and consumes its echo.
func (c *Client) writeCommand(command string, deadline time.Time) error {
	if _, err := c.conn.Write([]byte(command + "\r\n")); err != nil {
		return fmt.Errorf("openocd: write command: %w", err)
	}

	_, err := c.waitLineWith(deadline, func(line string) bool {
		return strings.HasSuffix(line, command)
	})
	if err != nil {
		return fmt.Errorf("openocd: command %q echo: %w", command, err)
	}

	return nil
}

// command runs the prompt-wait / write / echo-match sequence shared by all
// operations.
func (c *Client) command(cmd string) (time.Time, error) {
	deadline := time.Now().Add(c.timeout)

	if err := c.waitPrompt(deadline); err != nil {
		return deadline, err
	}

	return deadline, c.writeCommand(cmd, deadline)
}

// --- RTT and target operations ---

// RTTSetup configures the RTT control block search range and ID string.
func (c *Client) RTTSetup(searchFrom uint64, searchBytes uint32, blockID string) error {
	_, err := c.command(fmt.Sprintf("rtt setup 0x%08x %d %q", searchFrom, searchBytes, blockID))

	return err
}

// RTTStart starts RTT and returns the discovered control block address.
func (c *Client) RTTStart() (uint64, error) {
	deadline, err := c.command("rtt start")
	if err != nil {
		return 0, err
	}

	if _, err := c.waitLineWith(deadline, c.dialect.IsSearchNotice); err != nil {
		return 0, fmt.Errorf("openocd: rtt start: %w", err)
	}

	var addr uint64
	line, err := c.waitLineWith(deadline, func(line string) bool {
		a, ok := c.dialect.ParseControlBlock(line)
		if ok {
			addr = a
		}
		return ok
	})
	if err != nil {
		return 0, fmt.Errorf("openocd: rtt control block: %w", err)
	}

	c.logger.Debug("openocd: rtt control block found", "address", fmt.Sprintf("0x%08x", addr), "line", line)

	return addr, nil
}

// RTTStop stops RTT, releasing any previously configured control block.
func (c *Client) RTTStop() error {
	_, err := c.command("rtt stop")

	return err
}

// RTTChannels lists the configured RTT channels.
func (c *Client) RTTChannels() ([]RTTChannel, error) {
	deadline, err := c.command("rtt channels")
	if err != nil {
		return nil, err
	}

	var lines []string
	for {
		line, err := c.readLine(deadline)
		if err != nil {
			return nil, fmt.Errorf("openocd: rtt channels: %w", err)
		}
		if line == "" {
			break // blank line ends the listing
		}
		lines = append(lines, line)
	}

	return c.dialect.ParseChannelListing(lines), nil
}

// RTTServerStart starts a raw TCP server streaming the given RTT channel.
func (c *Client) RTTServerStart(tcpPort uint16, channel uint32) error {
	deadline, err := c.command(fmt.Sprintf("rtt server start %d %d", tcpPort, channel))
	if err != nil {
		return err
	}

	if _, err := c.waitLineWith(deadline, c.dialect.IsServerListenNotice); err != nil {
		return fmt.Errorf("openocd: rtt server start: %w", err)
	}

	return nil
}

// RTTServerStop stops the RTT TCP server on the given port.
func (c *Client) RTTServerStop(tcpPort uint16) error {
	_, err := c.command(fmt.Sprintf("rtt server stop %d", tcpPort))

	return err
}

// SetRTTPollingInterval sets the probe's RTT polling interval in
// milliseconds.
func (c *Client) SetRTTPollingInterval(ms uint32) error {
	_, err := c.command(fmt.Sprintf("rtt polling_interval %d", ms))

	return err
}

// SetAdapterSpeed requests an adapter clock in kHz and returns the speed the
// adapter actually selected.
func (c *Client) SetAdapterSpeed(khz int) (int, error) {
	deadline, err := c.command(fmt.Sprintf("adapter speed %d", khz))
	if err != nil {
		return 0, err
	}

	return c.readAdapterSpeed(deadline)
}

// AdapterSpeed queries the current adapter clock in kHz.
func (c *Client) AdapterSpeed() (int, error) {
	deadline, err := c.command("adapter speed")
	if err != nil {
		return 0, err
	}

	return c.readAdapterSpeed(deadline)
}

func (c *Client) readAdapterSpeed(deadline time.Time) (int, error) {
	var khz int
	_, err := c.waitLineWith(deadline, func(line string) bool {
		v, ok := c.dialect.ParseAdapterSpeed(line)
		if ok {
			khz = v
		}
		return ok
	})
	if err != nil {
		return 0, fmt.Errorf("openocd: adapter speed: %w", err)
	}

	// The speed reply is followed by a blank separator line.
	if _, err := c.waitLineWith(deadline, func(line string) bool { return line == "" }); err != nil {
		return 0, fmt.Errorf("openocd: adapter speed trailer: %w", err)
	}

	return khz, nil
}

// Halt stops target execution and waits for the halt notice.
func (c *Client) Halt() error {
	deadline, err := c.command("halt")
	if err != nil {
		return err
	}

	if _, err := c.waitLineWith(deadline, c.dialect.IsHaltNotice); err != nil {
		return fmt.Errorf("openocd: halt: %w", err)
	}

	return nil
}

// Resume restarts target execution.
func (c *Client) Resume() error {
	_, err := c.command("resume")

	return err
}

// FindScopeChannel picks the first up-direction channel whose name suggests a
// scope stream.
func FindScopeChannel(channels []RTTChannel) (RTTChannel, error) {
	for _, ch := range channels {
		if ch.Direction == Up && strings.Contains(strings.ToLower(ch.Name), "scope") {
			return ch, nil
		}
	}

	return RTTChannel{}, ErrNoScopeChannel
}
