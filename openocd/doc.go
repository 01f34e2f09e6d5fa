// Package openocd implements a client for the OpenOCD telnet control channel,
// reduced to the command surface the acquisition engine needs: RTT setup and
// control, adapter speed, and target halt/resume.
//
// The control channel is textual and stateful. Commands are written as CRLF
// terminated lines after the "> " prompt; the server echoes the command and
// then emits zero or more reply lines. Replies carry no request IDs, so a
// strict write-then-match discipline with a per-operation deadline is used.
// Banner text and unrecognized lines are discarded rather than treated as
// fatal, since the exact reply grammar varies between OpenOCD versions; the
// version-sensitive parts are isolated behind the Dialect interface.
package openocd
