package frame

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseChannelName(t *testing.T) {
	require := require.New(t)

	t.Run("TimestampAndFloats", func(t *testing.T) {
		desc, err := ParseChannelName("JScope_T4F4F4")
		require.NoError(err)
		require.True(desc.HasTimestamp)
		require.Equal([]Field{{Kind: Float, Size: 4}, {Kind: Float, Size: 4}}, desc.Fields)
		require.Equal(12, desc.Stride())
		require.Equal(2, desc.NumFields())
	})

	t.Run("NoTimestamp", func(t *testing.T) {
		desc, err := ParseChannelName("JScope_F4I2U1")
		require.NoError(err)
		require.False(desc.HasTimestamp)
		require.Equal([]Field{
			{Kind: Float, Size: 4},
			{Kind: Signed, Size: 2},
			{Kind: Unsigned, Size: 1},
		}, desc.Fields)
		require.Equal(7, desc.Stride())
	})

	t.Run("CaseInsensitive", func(t *testing.T) {
		upper, err := ParseChannelName("scope_T4U4")
		require.NoError(err)
		lower, err := ParseChannelName("scope_t4u4")
		require.NoError(err)
		require.Equal(upper, lower)
	})

	t.Run("LastTokenWins", func(t *testing.T) {
		// Only the final underscore-separated token is the format string.
		desc, err := ParseChannelName("my_scope_channel_F4")
		require.NoError(err)
		require.Equal(1, desc.NumFields())
		require.False(desc.HasTimestamp)
	})

	t.Run("BoolField", func(t *testing.T) {
		desc, err := ParseChannelName("JScope_B1")
		require.NoError(err)
		require.Equal([]Field{{Kind: Bool, Size: 1}}, desc.Fields)
	})

	t.Run("LeftoverCharTolerated", func(t *testing.T) {
		// A single dangling character after the pairs is logged, not fatal.
		desc, err := ParseChannelName("JScope_T4F4X")
		require.NoError(err)
		require.Equal(1, desc.NumFields())
	})

	t.Run("Errors", func(t *testing.T) {
		cases := map[string]error{
			"noformat":      ErrBadChannelName, // no underscore
			"JScope_":       ErrBadChannelName, // empty suffix
			"JScope_T4":     ErrEmptyDescriptor,
			"JScope_Z4":     ErrBadChannelName, // unknown type letter
			"JScope_F3":     ErrBadChannelName, // unsupported width
			"JScope_B4":     ErrBadChannelName, // bool wider than 1 byte
			"JScope_F4F1":   ErrBadChannelName, // float narrower than 4 bytes
			"JScope_T4I8I8": ErrBadChannelName,
		}
		for name, want := range cases {
			_, err := ParseChannelName(name)
			require.ErrorIs(err, want, "channel %q", name)
		}
	})
}
