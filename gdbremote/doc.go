// Package gdbremote implements the client side of the GDB remote serial
// protocol over TCP, as served by OpenOCD's gdb server, reduced to the
// surface the acquisition engine needs: connecting, the no-ack-mode
// handshake, resuming the target and issuing batched memory reads.
//
// Packets are framed as $payload#cs where cs is the two-digit hex mod-256
// additive checksum of the payload. In ack mode every packet is confirmed
// with '+' or rejected with '-'; a '-' requests retransmission. The client
// applies a bounded retry budget on both directions before giving up.
package gdbremote
