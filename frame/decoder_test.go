package frame

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildFrame encodes a timestamp and two float32 values into the 12-byte
// T4F4F4 wire layout.
func buildFrame(ts uint32, a, b float32) []byte {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf[0:], ts)
	binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(a))
	binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(b))

	return buf
}

func TestDecodeValue(t *testing.T) {
	require := require.New(t)

	t.Run("Float", func(t *testing.T) {
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, math.Float32bits(3.25))
		v, err := DecodeValue(Field{Kind: Float, Size: 4}, b)
		require.NoError(err)
		require.InDelta(3.25, v, 1e-9)
	})

	t.Run("SignedNegative", func(t *testing.T) {
		v, err := DecodeValue(Field{Kind: Signed, Size: 2}, []byte{0xfe, 0xff})
		require.NoError(err)
		require.Equal(-2.0, v)

		v, err = DecodeValue(Field{Kind: Signed, Size: 1}, []byte{0x80})
		require.NoError(err)
		require.Equal(-128.0, v)
	})

	t.Run("Unsigned", func(t *testing.T) {
		v, err := DecodeValue(Field{Kind: Unsigned, Size: 4}, []byte{0xff, 0xff, 0xff, 0xff})
		require.NoError(err)
		require.Equal(float64(math.MaxUint32), v)
	})

	t.Run("Bool", func(t *testing.T) {
		v, err := DecodeValue(Field{Kind: Bool, Size: 1}, []byte{0x02})
		require.NoError(err)
		require.Equal(1.0, v)

		v, err = DecodeValue(Field{Kind: Bool, Size: 1}, []byte{0x00})
		require.NoError(err)
		require.Equal(0.0, v)
	})

	t.Run("WidthMismatch", func(t *testing.T) {
		_, err := DecodeValue(Field{Kind: Float, Size: 4}, []byte{1, 2})
		require.ErrorIs(err, ErrStrideMismatch)
	})
}

func TestDecodeFrame(t *testing.T) {
	require := require.New(t)

	desc, err := ParseChannelName("JScope_T4F4F4")
	require.NoError(err)

	t.Run("Complete", func(t *testing.T) {
		fr, err := DecodeFrame(desc, buildFrame(1234, 1.5, -2.5))
		require.NoError(err)
		require.True(fr.HasTimestamp)
		require.Equal(uint32(1234), fr.Timestamp)
		require.InDelta(1.5, fr.Values[0], 1e-9)
		require.InDelta(-2.5, fr.Values[1], 1e-9)
	})

	t.Run("StrideMismatch", func(t *testing.T) {
		_, err := DecodeFrame(desc, make([]byte, 13))
		require.ErrorIs(err, ErrStrideMismatch)
	})
}

func TestDecoderWrite(t *testing.T) {
	require := require.New(t)

	desc, err := ParseChannelName("JScope_T4F4F4")
	require.NoError(err)

	t.Run("WholeFrames", func(t *testing.T) {
		d, err := NewDecoder(desc)
		require.NoError(err)

		stream := append(buildFrame(1, 1.0, 2.0), buildFrame(2, 3.0, 4.0)...)
		frames, err := d.Write(stream)
		require.NoError(err)
		require.Len(frames, 2)
		require.Equal(uint32(1), frames[0].Timestamp)
		require.Equal(uint32(2), frames[1].Timestamp)
		require.Zero(d.Pending())
	})

	t.Run("PartialTrailingFrame", func(t *testing.T) {
		d, err := NewDecoder(desc)
		require.NoError(err)

		stream := append(buildFrame(1, 1.0, 2.0), buildFrame(2, 3.0, 4.0)[:5]...)
		frames, err := d.Write(stream)
		require.NoError(err)
		require.Len(frames, 1)
		require.Equal(5, d.Pending())

		// The rest of the second frame completes it.
		frames, err = d.Write(buildFrame(2, 3.0, 4.0)[5:])
		require.NoError(err)
		require.Len(frames, 1)
		require.Equal(uint32(2), frames[0].Timestamp)
		require.Zero(d.Pending())
	})

	t.Run("ChunkBoundaryIndependence", func(t *testing.T) {
		var stream []byte
		for i := 0; i < 16; i++ {
			stream = append(stream, buildFrame(uint32(i), float32(i), -float32(i))...)
		}

		// Reference: one big write.
		whole, err := NewDecoder(desc)
		require.NoError(err)
		want, err := whole.Write(stream)
		require.NoError(err)
		require.Len(want, 16)

		// Byte-by-byte, then in awkward 5-byte chunks, must yield the same
		// frame sequence.
		for _, chunkSize := range []int{1, 5, 7, 12, 31} {
			d, err := NewDecoder(desc)
			require.NoError(err)

			var got []Frame
			for start := 0; start < len(stream); start += chunkSize {
				end := min(start+chunkSize, len(stream))
				frames, err := d.Write(stream[start:end])
				require.NoError(err)
				got = append(got, frames...)
			}
			require.Equal(want, got, "chunk size %d", chunkSize)
		}
	})

	t.Run("Reset", func(t *testing.T) {
		d, err := NewDecoder(desc)
		require.NoError(err)

		_, err = d.Write([]byte{1, 2, 3})
		require.NoError(err)
		require.Equal(3, d.Pending())

		d.Reset()
		require.Zero(d.Pending())

		frames, err := d.Write(buildFrame(9, 1.0, 1.0))
		require.NoError(err)
		require.Len(frames, 1)
		require.Equal(uint32(9), frames[0].Timestamp)
	})

	t.Run("EmptyDescriptor", func(t *testing.T) {
		_, err := NewDecoder(Descriptor{})
		require.ErrorIs(err, ErrEmptyDescriptor)
	})
}
