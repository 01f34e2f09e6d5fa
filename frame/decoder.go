package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrStrideMismatch indicates an attempt to decode a byte slice whose length
// is not the descriptor stride.
var ErrStrideMismatch = errors.New("frame: byte length does not match descriptor stride")

// Frame is one decoded multi-field sample.
type Frame struct {
	// Timestamp is the device-provided u32 microsecond counter.
	// Only meaningful when the descriptor declares a timestamp field.
	Timestamp uint32
	// HasTimestamp mirrors the descriptor's timestamp flag.
	HasTimestamp bool
	// Values holds one numeric value per data field, in field order.
	Values []float64
}

// decodeField decodes one field from exactly field.Size bytes.
func decodeField(f Field, b []byte) float64 {
	switch f.Kind {
	case Bool:
		if b[0] != 0 {
			return 1.0
		}
		return 0.0
	case Float:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case Signed:
		switch f.Size {
		case 1:
			return float64(int8(b[0]))
		case 2:
			return float64(int16(binary.LittleEndian.Uint16(b)))
		default:
			return float64(int32(binary.LittleEndian.Uint32(b)))
		}
	case Unsigned:
		switch f.Size {
		case 1:
			return float64(b[0])
		case 2:
			return float64(binary.LittleEndian.Uint16(b))
		default:
			return float64(binary.LittleEndian.Uint32(b))
		}
	default:
		return math.NaN()
	}
}

// DecodeValue decodes a single scalar field from exactly f.Size bytes of
// little-endian (target order) memory. Used by the memory-sampling path,
// where each signal is one standalone field.
func DecodeValue(f Field, b []byte) (float64, error) {
	if len(b) != f.Size {
		return 0, fmt.Errorf("%w: got %d bytes, field width is %d", ErrStrideMismatch, len(b), f.Size)
	}

	return decodeField(f, b), nil
}

// DecodeFrame decodes exactly one frame from b, which must be exactly
// desc.Stride() bytes long.
func DecodeFrame(desc Descriptor, b []byte) (Frame, error) {
	if len(b) != desc.Stride() {
		return Frame{}, fmt.Errorf("%w: got %d bytes, stride is %d", ErrStrideMismatch, len(b), desc.Stride())
	}

	fr := Frame{
		HasTimestamp: desc.HasTimestamp,
		Values:       make([]float64, 0, len(desc.Fields)),
	}

	if desc.HasTimestamp {
		fr.Timestamp = binary.LittleEndian.Uint32(b[:4])
		b = b[4:]
	}

	for _, f := range desc.Fields {
		fr.Values = append(fr.Values, decodeField(f, b[:f.Size]))
		b = b[f.Size:]
	}

	return fr, nil
}

// Decoder splits an incoming byte stream into frames according to a
// Descriptor.
//
// A Decoder is not goroutine-safe; it is owned by the sampler worker that
// reads the transport.
type Decoder struct {
	desc   Descriptor
	stride int
	carry  []byte
}

// NewDecoder creates a Decoder for the given descriptor.
// The descriptor must have at least one field; ParseChannelName guarantees this.
func NewDecoder(desc Descriptor) (*Decoder, error) {
	if desc.NumFields() == 0 || desc.Stride() == 0 {
		return nil, ErrEmptyDescriptor
	}

	return &Decoder{desc: desc, stride: desc.Stride()}, nil
}

// Descriptor returns the descriptor this decoder was built from.
func (d *Decoder) Descriptor() Descriptor {
	return d.desc
}

// Pending returns the number of buffered bytes belonging to an incomplete
// trailing frame.
func (d *Decoder) Pending() int {
	return len(d.carry)
}

// Reset discards any buffered partial frame, e.g. after a stream
// resynchronization.
func (d *Decoder) Reset() {
	d.carry = d.carry[:0]
}

// Write appends chunk to the internal buffer and decodes as many complete
// frames as are available. The trailing remainder, if any, is retained and
// prepended to the next chunk.
//
// Decoding the concatenation of chunks yields the same frame sequence as
// decoding the chunks one by one.
func (d *Decoder) Write(chunk []byte) ([]Frame, error) {
	d.carry = append(d.carry, chunk...)

	n := len(d.carry) / d.stride
	if n == 0 {
		return nil, nil
	}

	frames := make([]Frame, 0, n)
	for i := 0; i < n; i++ {
		fr, err := DecodeFrame(d.desc, d.carry[i*d.stride:(i+1)*d.stride])
		if err != nil {
			// DecodeFrame only fails on a stride mismatch, which the slicing
			// above rules out, but keep the error path rather than panic.
			return frames, err
		}
		frames = append(frames, fr)
	}

	remainder := len(d.carry) - n*d.stride
	copy(d.carry, d.carry[n*d.stride:])
	d.carry = d.carry[:remainder]

	return frames, nil
}
