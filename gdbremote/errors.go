package gdbremote

import "errors"

var (
	// ErrConnClosed indicates that the remote end closed the connection.
	ErrConnClosed = errors.New("gdbremote: connection closed")

	// ErrTimeout indicates that no response arrived within the read timeout.
	ErrTimeout = errors.New("gdbremote: response timeout")

	// ErrChecksumMismatch indicates a received packet whose checksum does not
	// match its payload. The client NAKs such packets and awaits
	// retransmission.
	ErrChecksumMismatch = errors.New("gdbremote: packet checksum mismatch")

	// ErrRetryExhausted indicates that the retransmission budget was spent
	// without receiving a valid packet or acknowledgement.
	ErrRetryExhausted = errors.New("gdbremote: retry budget exhausted")

	// ErrUnexpectedResponse indicates a reply that does not fit the issued
	// request.
	ErrUnexpectedResponse = errors.New("gdbremote: unexpected response")

	// ErrTargetError indicates an "E xx" error reply from the stub.
	ErrTargetError = errors.New("gdbremote: target reported error")
)
