package openocd

import (
	"strconv"
	"strings"
)

// Dialect isolates the version-sensitive parts of the control-channel reply
// grammar so an alternate OpenOCD (or compatible server) dialect can be
// substituted without touching the samplers or the decoder.
//
// All line arguments are single reply lines with the trailing CRLF removed.
type Dialect interface {
	// Prompt returns the byte sequence the server emits when ready for a
	// command.
	Prompt() []byte

	// IsSearchNotice reports whether line announces the RTT control block
	// search has started.
	IsSearchNotice(line string) bool

	// ParseControlBlock extracts the RTT control block address from a reply
	// line, reporting whether the line is the control-block-found notice.
	ParseControlBlock(line string) (addr uint64, ok bool)

	// ParseAdapterSpeed extracts the adapter speed in kHz from a reply line.
	ParseAdapterSpeed(line string) (khz int, ok bool)

	// IsHaltNotice reports whether line announces that the target halted.
	IsHaltNotice(line string) bool

	// IsServerListenNotice reports whether line announces the RTT TCP server
	// is listening.
	IsServerListenNotice(line string) bool

	// ParseChannelListing parses the reply lines of "rtt channels".
	ParseChannelListing(lines []string) []RTTChannel
}

// V012Dialect implements the reply grammar of OpenOCD 0.12.
type V012Dialect struct{}

// DefaultDialect returns the dialect for OpenOCD 0.12.
func DefaultDialect() Dialect {
	return V012Dialect{}
}

func (V012Dialect) Prompt() []byte {
	return []byte("> ")
}

func (V012Dialect) IsSearchNotice(line string) bool {
	return strings.HasPrefix(line, "rtt: Searching for control block")
}

func (V012Dialect) ParseControlBlock(line string) (uint64, bool) {
	const prefix = "rtt: Control block found at "
	if !strings.HasPrefix(line, prefix) {
		return 0, false
	}

	rest := line[len(prefix):]
	idx := strings.LastIndex(rest, "0x")
	if idx < 0 {
		return 0, false
	}

	addr, err := strconv.ParseUint(rest[idx+2:], 16, 64)
	if err != nil {
		return 0, false
	}

	return addr, true
}

func (V012Dialect) ParseAdapterSpeed(line string) (int, bool) {
	const prefix = "adapter speed: "
	if !strings.HasPrefix(line, prefix) {
		return 0, false
	}

	// "adapter speed: 4000 kHz"
	rest := line[len(prefix):]
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return 0, false
	}

	khz, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, false
	}

	return khz, true
}

func (V012Dialect) IsHaltNotice(line string) bool {
	return strings.Contains(line, "halted due to debug-request")
}

func (V012Dialect) IsServerListenNotice(line string) bool {
	return strings.HasPrefix(line, "Listening on port")
}

// ParseChannelListing parses a listing like:
//
//	Channels: up=3, down=3
//	Up-channels:
//	0: Terminal 1024 0
//	2: JScope_T4F4F4F4F4 4096 0
//	Down-channels:
//	0: Terminal 16 0
func (V012Dialect) ParseChannelListing(lines []string) []RTTChannel {
	var channels []RTTChannel

	direction := Up
	seenHeading := false

	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "Up-channels:"):
			direction = Up
			seenHeading = true
		case strings.HasPrefix(line, "Down-channels:"):
			direction = Down
			seenHeading = true
		default:
			if !seenHeading {
				continue // banner noise before the listing proper
			}

			ch, ok := parseChannelLine(line)
			if !ok {
				continue
			}
			ch.Direction = direction
			channels = append(channels, ch)
		}
	}

	return channels
}

// parseChannelLine parses "2: JScope_T4F4F4F4F4 4096 0".
func parseChannelLine(line string) (RTTChannel, bool) {
	id, desc, ok := strings.Cut(line, ": ")
	if !ok {
		return RTTChannel{}, false
	}

	chID, err := strconv.ParseUint(strings.TrimSpace(id), 10, 32)
	if err != nil {
		return RTTChannel{}, false
	}

	fields := strings.Fields(desc)
	if len(fields) < 3 {
		return RTTChannel{}, false
	}

	size, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return RTTChannel{}, false
	}

	flags, err := strconv.ParseUint(fields[2], 10, 32)
	if err != nil {
		return RTTChannel{}, false
	}

	return RTTChannel{
		ID:         uint32(chID),
		Name:       fields[0],
		BufferSize: uint32(size),
		Flags:      uint32(flags),
	}, true
}
