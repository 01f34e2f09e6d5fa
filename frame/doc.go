// Package frame parses the RTT scope channel naming convention into a buffer
// descriptor and decodes the raw byte stream of such a channel into typed
// sample frames.
//
// A channel name like "JScope_T4F4F4" declares the per-sample wire layout of
// the channel: an optional leading 32-bit microsecond timestamp ("T4")
// followed by one letter+digit pair per field, where the letter selects the
// encoding (b=bool, f=float, i=signed, u=unsigned) and the digit the width in
// bytes (1, 2 or 4). All fields are little-endian.
//
// The Decoder accepts raw bytes in arbitrarily sized chunks, as delivered by
// the transport, and splits them into complete frames. A trailing partial
// frame is retained and prepended to the next chunk, so frames are never
// assumed to arrive aligned to transport read boundaries.
package frame
