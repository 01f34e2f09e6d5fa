package gdbremote

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"
)

// readChunkSize is the transport read granularity.
const readChunkSize = 512

// Client is a GDB remote serial protocol client.
//
// A Client issues requests strictly serially and is not goroutine-safe; it is
// owned by the sampler worker.
type Client struct {
	cfg  *ConnConfig
	conn net.Conn

	// buf accumulates raw bytes read from the transport until a complete
	// acknowledgement or packet can be consumed from its front.
	buf []byte

	// ackMode is true until QStartNoAckMode has been negotiated.
	ackMode bool

	metrics ConnectionMetrics
}

// Connect dials the configured endpoint and performs the initial handshake:
// it consumes the server's greeting ACK and, when configured, negotiates
// QStartNoAckMode.
func Connect(cfg *ConnConfig) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("gdbremote: connection config is nil")
	}

	addr := net.JoinHostPort(cfg.host, strconv.Itoa(cfg.port))

	conn, err := net.DialTimeout("tcp", addr, cfg.connectTimeout)
	if err != nil {
		return nil, fmt.Errorf("gdbremote: dial %s: %w", addr, err)
	}

	c := &Client{
		cfg:     cfg,
		conn:    conn,
		ackMode: true,
	}

	if err := c.handshake(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return c, nil
}

// Close tears down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Metrics returns the connection metrics.
func (c *Client) Metrics() *ConnectionMetrics {
	return &c.metrics
}

func (c *Client) handshake() error {
	deadline := time.Now().Add(c.cfg.readTimeout)

	// OpenOCD greets a new gdb connection with an ACK.
	if err := c.recvAck(deadline); err != nil {
		return fmt.Errorf("gdbremote: missing greeting ACK: %w", err)
	}

	if !c.cfg.noAckMode {
		return nil
	}

	if err := c.sendPacket("QStartNoAckMode"); err != nil {
		return err
	}

	reply, err := c.recvPacket(time.Now().Add(c.cfg.readTimeout))
	if err != nil {
		return fmt.Errorf("gdbremote: QStartNoAckMode: %w", err)
	}
	if !bytes.Equal(reply, []byte("OK")) {
		return fmt.Errorf("%w: QStartNoAckMode reply %q", ErrUnexpectedResponse, reply)
	}

	c.ackMode = false
	c.cfg.logger.Debug("gdbremote: no-ack mode negotiated")

	return nil
}

// Continue resumes target execution with the 'c' verb.
// No reply is expected while the target runs.
func (c *Client) Continue() error {
	wire := BuildPacket("c")
	if _, err := c.conn.Write(wire); err != nil {
		return fmt.Errorf("gdbremote: send continue: %w", err)
	}
	c.metrics.incPacketSendCount()

	if c.ackMode {
		if err := c.recvAck(time.Now().Add(c.cfg.readTimeout)); err != nil {
			return fmt.Errorf("gdbremote: continue not acknowledged: %w", err)
		}
	}

	return nil
}

// ReadRequest names one memory range to read.
type ReadRequest struct {
	Address uint64
	Size    int
}

// ReadMemory reads size bytes at addr with the 'm' verb and returns the raw
// memory bytes in target order.
func (c *Client) ReadMemory(addr uint64, size int) ([]byte, error) {
	if err := c.sendPacket(fmt.Sprintf("m%x,%x", addr, size)); err != nil {
		return nil, err
	}

	return c.readMemoryReply(addr, size)
}

// ReadBatch issues one read per request, pipelining all requests before
// collecting the replies when no-ack mode is active, and returns a map from
// address to raw memory bytes.
//
// Pipelining matters for the sampling cadence: each round trip has a fixed
// probe latency, so N sequential reads cost N round trips while a pipelined
// batch costs roughly one.
func (c *Client) ReadBatch(reqs []ReadRequest) (map[uint64][]byte, error) {
	out := make(map[uint64][]byte, len(reqs))

	if c.ackMode {
		// Per-packet acknowledgements force serial operation.
		for _, req := range reqs {
			data, err := c.ReadMemory(req.Address, req.Size)
			if err != nil {
				return nil, err
			}
			out[req.Address] = data
		}

		return out, nil
	}

	var wire []byte
	for _, req := range reqs {
		wire = append(wire, BuildPacket(fmt.Sprintf("m%x,%x", req.Address, req.Size))...)
	}
	if _, err := c.conn.Write(wire); err != nil {
		return nil, fmt.Errorf("gdbremote: send read batch: %w", err)
	}

	for _, req := range reqs {
		c.metrics.incPacketSendCount()

		data, err := c.readMemoryReply(req.Address, req.Size)
		if err != nil {
			return nil, err
		}
		out[req.Address] = data
	}

	return out, nil
}

// readMemoryReply collects and decodes the reply to one 'm' request,
// skipping the empty 'O' console packets OpenOCD emits while the target runs.
func (c *Client) readMemoryReply(addr uint64, size int) ([]byte, error) {
	deadline := time.Now().Add(c.cfg.readTimeout)

	for {
		payload, err := c.recvPacket(deadline)
		if err != nil {
			return nil, err
		}

		// Keep-alive console packet during target execution.
		if bytes.Equal(payload, []byte("O")) {
			continue
		}

		if len(payload) >= 1 && payload[0] == 'E' {
			return nil, fmt.Errorf("%w: read 0x%x: %s", ErrTargetError, addr, payload)
		}

		data, err := hex.DecodeString(string(payload))
		if err != nil || len(data) != size {
			return nil, fmt.Errorf("%w: read 0x%x reply %q", ErrUnexpectedResponse, addr, payload)
		}

		return data, nil
	}
}

// sendPacket frames and transmits payload, waiting for the '+'
// acknowledgement in ack mode and retransmitting on '-' or timeout up to the
// retry budget.
func (c *Client) sendPacket(payload string) error {
	wire := BuildPacket(payload)

	for retry := 0; retry <= c.cfg.retryLimit; retry++ {
		if retry > 0 {
			c.metrics.incSendRetryCount()
			c.cfg.logger.Debug("gdbremote: send retry", "retry", retry, "maxRetry", c.cfg.retryLimit)
		}

		if _, err := c.conn.Write(wire); err != nil {
			return fmt.Errorf("gdbremote: send packet: %w", err)
		}

		if !c.ackMode {
			c.metrics.incPacketSendCount()
			return nil
		}

		err := c.recvAck(time.Now().Add(c.cfg.readTimeout))
		switch {
		case err == nil:
			c.metrics.incPacketSendCount()
			return nil
		case errors.Is(err, errNak) || errors.Is(err, ErrTimeout):
			continue
		default:
			return err
		}
	}

	return ErrRetryExhausted
}

// errNak is an internal signal that the remote rejected our packet.
var errNak = errors.New("gdbremote: remote sent NAK")

// recvAck consumes one acknowledgement byte from the stream.
func (c *Client) recvAck(deadline time.Time) error {
	for {
		if len(c.buf) > 0 {
			switch c.buf[0] {
			case ACK:
				c.buf = c.buf[1:]
				return nil
			case NAK:
				c.buf = c.buf[1:]
				return errNak
			default:
				return fmt.Errorf("%w: want ACK, head byte 0x%02x", ErrUnexpectedResponse, c.buf[0])
			}
		}

		if err := c.fill(deadline); err != nil {
			return err
		}
	}
}

// recvPacket consumes the next complete packet from the stream.
//
// Stray acknowledgement bytes are skipped. A corrupt packet is NAK'd, its
// bytes discarded, and the retransmission awaited, bounded by the retry
// budget. In ack mode valid packets are ACK'd before being returned.
func (c *Client) recvPacket(deadline time.Time) ([]byte, error) {
	naks := 0

	for {
		// Skip stale '+'/'-' left over from pipelined exchanges.
		for len(c.buf) > 0 && (c.buf[0] == ACK || c.buf[0] == NAK) {
			c.buf = c.buf[1:]
		}

		if len(c.buf) > 0 && c.buf[0] != packetStart {
			// Resynchronize: drop bytes until a start marker.
			i := bytes.IndexByte(c.buf, packetStart)
			if i < 0 {
				c.cfg.logger.Warn("gdbremote: dropping garbage bytes", "count", len(c.buf))
				c.buf = c.buf[:0]
			} else {
				c.cfg.logger.Warn("gdbremote: dropping garbage bytes", "count", i)
				c.buf = c.buf[i:]
			}
		}

		payload, consumed, err := scanPacket(c.buf)
		if err != nil {
			// Corrupt packet: drop it, NAK, await retransmission.
			c.buf = c.buf[consumed:]
			c.metrics.incNakSentCount()

			if _, werr := c.conn.Write([]byte{NAK}); werr != nil {
				return nil, fmt.Errorf("gdbremote: send NAK: %w", werr)
			}

			naks++
			if naks > c.cfg.retryLimit {
				return nil, fmt.Errorf("%w: %d corrupt packets", ErrRetryExhausted, naks)
			}

			c.cfg.logger.Debug("gdbremote: corrupt packet NAK'd", "naks", naks, "error", err)

			continue
		}

		if payload != nil {
			c.buf = c.buf[consumed:]
			c.metrics.incPacketRecvCount()

			if c.ackMode {
				if _, err := c.conn.Write([]byte{ACK}); err != nil {
					return nil, fmt.Errorf("gdbremote: send ACK: %w", err)
				}
			}

			return payload, nil
		}

		if err := c.fill(deadline); err != nil {
			return nil, err
		}
	}
}

// fill reads more bytes from the transport into the buffer, respecting
// deadline.
func (c *Client) fill(deadline time.Time) error {
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return err
	}

	chunk := make([]byte, readChunkSize)

	n, err := c.conn.Read(chunk)
	if n > 0 {
		c.buf = append(c.buf, chunk[:n]...)
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
		return fmt.Errorf("gdbremote: read: %w", err)
	}
}
