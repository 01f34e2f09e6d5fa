package gdbremote

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// Protocol framing bytes.
const (
	packetStart = '$'
	packetEnd   = '#'

	// ACK confirms correct reception of a packet.
	ACK = '+'
	// NAK rejects a packet and requests retransmission.
	NAK = '-'
)

// checksumSize is the number of trailing hex checksum digits after '#'.
const checksumSize = 2

// Checksum computes the mod-256 additive checksum over payload.
func Checksum(payload []byte) byte {
	var sum byte
	for _, b := range payload {
		sum += b
	}

	return sum
}

// BuildPacket frames payload as $payload#cs.
func BuildPacket(payload string) []byte {
	buf := make([]byte, 0, len(payload)+4)
	buf = append(buf, packetStart)
	buf = append(buf, payload...)
	buf = append(buf, packetEnd)

	return fmt.Appendf(buf, "%02x", Checksum([]byte(payload)))
}

// scanPacket looks for one complete packet at the start of buf.
//
// Returns the payload and the total number of bytes consumed. A nil payload
// with zero consumed means the packet is still incomplete. ErrChecksumMismatch
// is returned with consumed > 0 so the caller can drop the corrupt packet and
// request retransmission.
func scanPacket(buf []byte) (payload []byte, consumed int, err error) {
	if len(buf) == 0 || buf[0] != packetStart {
		return nil, 0, nil
	}

	end := bytes.IndexByte(buf, packetEnd)
	if end < 0 || len(buf) < end+1+checksumSize {
		return nil, 0, nil // incomplete
	}

	contents := buf[1:end]
	total := end + 1 + checksumSize

	var wire [1]byte
	if _, err := hex.Decode(wire[:], buf[end+1:end+1+checksumSize]); err != nil {
		return nil, total, fmt.Errorf("%w: bad checksum digits %q", ErrChecksumMismatch, buf[end+1:total])
	}

	if sum := Checksum(contents); sum != wire[0] {
		return nil, total, fmt.Errorf("%w: wire=0x%02x, computed=0x%02x", ErrChecksumMismatch, wire[0], sum)
	}

	payload = make([]byte, len(contents))
	copy(payload, contents)

	return payload, total, nil
}
