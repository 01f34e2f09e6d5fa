package gdbremote

import "sync/atomic"

// ConnectionMetrics contains atomic metrics for a GDB remote connection.
// Counters can be used as the value of a prometheus CounterFunc.
type ConnectionMetrics struct {
	// PacketSendCount indicates the number of packets sent (and, in ack mode, ACK'd).
	PacketSendCount atomic.Uint64
	// PacketRecvCount indicates the number of valid packets received.
	PacketRecvCount atomic.Uint64
	// SendRetryCount indicates the total number of send retransmissions.
	SendRetryCount atomic.Uint64
	// NakSentCount indicates the number of NAKs sent for corrupt inbound packets.
	NakSentCount atomic.Uint64
}

func (m *ConnectionMetrics) incPacketSendCount() {
	m.PacketSendCount.Add(1)
}

func (m *ConnectionMetrics) incPacketRecvCount() {
	m.PacketRecvCount.Add(1)
}

func (m *ConnectionMetrics) incSendRetryCount() {
	m.SendRetryCount.Add(1)
}

func (m *ConnectionMetrics) incNakSentCount() {
	m.NakSentCount.Add(1)
}
