package openocd

import "errors"

var (
	// ErrTimeout indicates that no reply (or no matching reply line) arrived
	// within the operation deadline. Timeouts signal probe or connection lag
	// and are retryable.
	ErrTimeout = errors.New("openocd: reply timeout")

	// ErrUnexpectedResponse indicates a reply line that was received but could
	// not be matched to the issued command.
	ErrUnexpectedResponse = errors.New("openocd: unexpected response")

	// ErrConnClosed indicates that the control channel was closed by the
	// remote end.
	ErrConnClosed = errors.New("openocd: connection closed")

	// ErrNoScopeChannel indicates that no RTT up-channel suitable for scope
	// streaming was found.
	ErrNoScopeChannel = errors.New("openocd: no suitable RTT scope channel")
)
