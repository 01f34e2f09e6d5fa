package openocd

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"
)

// DataStream is a raw TCP connection to an RTT server started with
// RTTServerStart. Unlike the control channel it carries unframed binary
// buffer data.
type DataStream struct {
	conn net.Conn
}

// DialDataStream connects to an RTT server endpoint.
func DialDataStream(host string, port uint16, timeout time.Duration) (*DataStream, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(int(port)))

	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("openocd: dial rtt stream %s: %w", addr, err)
	}

	return &DataStream{conn: conn}, nil
}

// Close tears down the stream.
func (s *DataStream) Close() error {
	return s.conn.Close()
}

// Poll reads whatever bytes are available within timeout.
//
// A nil slice with a nil error means the buffer had no new data before the
// timeout; that is the normal idle case, distinct from ErrConnClosed which
// means the server went away.
func (s *DataStream) Poll(buf []byte, timeout time.Duration) ([]byte, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}

	n, err := s.conn.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}

	switch {
	case errors.Is(err, os.ErrDeadlineExceeded):
		return nil, nil
	case errors.Is(err, io.EOF):
		return nil, ErrConnClosed
	default:
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return nil, nil
		}
		return nil, fmt.Errorf("openocd: rtt stream read: %w", err)
	}
}

// Drain reads and discards bytes until the stream is silent for idle,
// returning the number of bytes thrown away. Used to empty stale ring-buffer
// contents while the target is halted, so sampling starts frame-aligned.
func (s *DataStream) Drain(idle time.Duration) (int, error) {
	buf := make([]byte, 4096)
	total := 0

	for {
		data, err := s.Poll(buf, idle)
		if err != nil {
			return total, err
		}
		if data == nil {
			return total, nil
		}
		total += len(data)
	}
}
