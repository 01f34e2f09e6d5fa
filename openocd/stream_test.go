package openocd

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// startStream returns a connected DataStream and the server side of its
// connection.
func startStream(t *testing.T) (*DataStream, net.Conn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		accepted <- conn
	}()

	addr := ln.Addr().(*net.TCPAddr)
	stream, err := DialDataStream("127.0.0.1", uint16(addr.Port), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = stream.Close() })

	server := <-accepted
	t.Cleanup(func() { _ = server.Close() })

	return stream, server
}

func TestDataStreamPoll(t *testing.T) {
	require := require.New(t)

	stream, server := startStream(t)

	_, err := server.Write([]byte{1, 2, 3, 4})
	require.NoError(err)

	buf := make([]byte, 16)
	data, err := stream.Poll(buf, time.Second)
	require.NoError(err)
	require.Equal([]byte{1, 2, 3, 4}, data)
}

func TestDataStreamPollIdle(t *testing.T) {
	require := require.New(t)

	stream, _ := startStream(t)

	// No data before the timeout is the normal idle case, not an error.
	buf := make([]byte, 16)
	data, err := stream.Poll(buf, 50*time.Millisecond)
	require.NoError(err)
	require.Nil(data)
}

func TestDataStreamPollClosed(t *testing.T) {
	require := require.New(t)

	stream, server := startStream(t)
	require.NoError(server.Close())

	buf := make([]byte, 16)
	_, err := stream.Poll(buf, time.Second)
	require.ErrorIs(err, ErrConnClosed)
}

func TestDataStreamDrain(t *testing.T) {
	require := require.New(t)

	stream, server := startStream(t)

	_, err := server.Write(make([]byte, 1000))
	require.NoError(err)
	_, err = server.Write(make([]byte, 500))
	require.NoError(err)

	// Give the writes time to land in the receive buffer.
	time.Sleep(50 * time.Millisecond)

	n, err := stream.Drain(100 * time.Millisecond)
	require.NoError(err)
	require.Equal(1500, n)

	// A drained stream polls idle.
	buf := make([]byte, 16)
	data, err := stream.Poll(buf, 50*time.Millisecond)
	require.NoError(err)
	require.Nil(data)
}
