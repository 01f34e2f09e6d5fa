package openocd

// RTTChannelDirection distinguishes target-to-host (up) from host-to-target
// (down) RTT channels.
type RTTChannelDirection uint8

const (
	// Up channels carry data from the target to the host.
	Up RTTChannelDirection = iota
	// Down channels carry data from the host to the target.
	Down
)

// String returns the listing heading name for the direction.
func (d RTTChannelDirection) String() string {
	if d == Up {
		return "up"
	}
	return "down"
}

// RTTChannel is one channel as reported by the "rtt channels" command.
type RTTChannel struct {
	ID         uint32
	Name       string
	BufferSize uint32
	Flags      uint32
	Direction  RTTChannelDirection
}
