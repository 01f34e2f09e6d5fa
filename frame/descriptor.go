package frame

import (
	"errors"
	"fmt"
	"strings"

	"github.com/probescope/probescope/logger"
)

var (
	// ErrBadChannelName indicates that a channel name does not conform to the
	// scope channel naming convention.
	ErrBadChannelName = errors.New("frame: malformed scope channel name")

	// ErrEmptyDescriptor indicates a descriptor with no data fields.
	// A channel that carries no fields has a zero stride and cannot be decoded.
	ErrEmptyDescriptor = errors.New("frame: descriptor has no fields")
)

// FieldKind is the numeric encoding of a single frame field.
type FieldKind uint8

const (
	// Bool is a single byte interpreted as 0.0 or 1.0.
	Bool FieldKind = iota
	// Float is an IEEE 754 float32.
	Float
	// Signed is a little-endian two's-complement integer.
	Signed
	// Unsigned is a little-endian unsigned integer.
	Unsigned
)

// String returns the lowercase convention letter for the kind.
func (k FieldKind) String() string {
	switch k {
	case Bool:
		return "bool"
	case Float:
		return "float"
	case Signed:
		return "signed"
	case Unsigned:
		return "unsigned"
	default:
		return "unknown"
	}
}

// Field describes one data field within a frame.
type Field struct {
	Kind FieldKind
	Size int // width in bytes: 1, 2 or 4
}

// Descriptor describes the per-sample wire layout of a scope channel.
type Descriptor struct {
	// HasTimestamp reports whether each frame starts with a u32 microsecond
	// timestamp field ("T4" marker in the channel name).
	HasTimestamp bool
	Fields       []Field
}

// Stride returns the exact byte length of one frame.
func (d Descriptor) Stride() int {
	stride := 0
	if d.HasTimestamp {
		stride += 4
	}
	for _, f := range d.Fields {
		stride += f.Size
	}
	return stride
}

// NumFields returns the number of data fields, excluding the timestamp.
func (d Descriptor) NumFields() int {
	return len(d.Fields)
}

// parseField parses one two-character letter+digit pair.
func parseField(pair string) (Field, error) {
	if len(pair) != 2 {
		return Field{}, fmt.Errorf("%w: field pair %q", ErrBadChannelName, pair)
	}

	var size int
	switch pair[1] {
	case '1':
		size = 1
	case '2':
		size = 2
	case '4':
		size = 4
	default:
		return Field{}, fmt.Errorf("%w: unsupported field width %q", ErrBadChannelName, pair)
	}

	switch pair[0] {
	case 'b':
		if size != 1 {
			return Field{}, fmt.Errorf("%w: bool field must be 1 byte, got %q", ErrBadChannelName, pair)
		}
		return Field{Kind: Bool, Size: size}, nil
	case 'f':
		if size != 4 {
			return Field{}, fmt.Errorf("%w: float field must be 4 bytes, got %q", ErrBadChannelName, pair)
		}
		return Field{Kind: Float, Size: size}, nil
	case 'i':
		return Field{Kind: Signed, Size: size}, nil
	case 'u':
		return Field{Kind: Unsigned, Size: size}, nil
	default:
		return Field{}, fmt.Errorf("%w: unsupported field type %q", ErrBadChannelName, pair)
	}
}

// ParseChannelName parses a scope channel name such as "JScope_T4F4F4" into a
// Descriptor.
//
// The format string is the last underscore-separated token of the name,
// matched case-insensitively. An optional leading "t4" marks the presence of a
// u32 microsecond timestamp, followed by one letter+digit pair per field.
//
// A single leftover character at the end of the format string is tolerated
// and logged; a descriptor without any data field is rejected.
func ParseChannelName(name string) (Descriptor, error) {
	idx := strings.LastIndexByte(name, '_')
	if idx < 0 || idx == len(name)-1 {
		return Descriptor{}, fmt.Errorf("%w: %q has no format suffix", ErrBadChannelName, name)
	}

	format := strings.ToLower(name[idx+1:])

	desc := Descriptor{}
	if rest, ok := strings.CutPrefix(format, "t4"); ok {
		desc.HasTimestamp = true
		format = rest
	}

	for len(format) >= 2 {
		field, err := parseField(format[:2])
		if err != nil {
			return Descriptor{}, err
		}
		desc.Fields = append(desc.Fields, field)
		format = format[2:]
	}

	if len(format) > 0 {
		logger.Warn("leftover character in scope channel format", "channel", name, "leftover", format)
	}

	if len(desc.Fields) == 0 {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrEmptyDescriptor, name)
	}

	return desc, nil
}
