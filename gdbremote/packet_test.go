package gdbremote

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChecksum(t *testing.T) {
	require := require.New(t)

	require.Equal(byte(0x9a), Checksum([]byte("OK")))
	require.Equal(byte(0), Checksum(nil))

	// Mod-256 wraparound.
	require.Equal(byte(0x00), Checksum([]byte{0x80, 0x80}))
}

func TestBuildPacket(t *testing.T) {
	require := require.New(t)

	require.Equal([]byte("$OK#9a"), BuildPacket("OK"))
	require.Equal([]byte("$#00"), BuildPacket(""))

	wire := BuildPacket("m20000000,4")
	payload, consumed, err := scanPacket(wire)
	require.NoError(err)
	require.Equal(len(wire), consumed)
	require.Equal([]byte("m20000000,4"), payload)
}

func TestScanPacket(t *testing.T) {
	require := require.New(t)

	t.Run("Incomplete", func(t *testing.T) {
		for _, buf := range [][]byte{nil, []byte("$"), []byte("$OK"), []byte("$OK#"), []byte("$OK#9")} {
			payload, consumed, err := scanPacket(buf)
			require.NoError(err)
			require.Nil(payload)
			require.Zero(consumed)
		}
	})

	t.Run("NotAtStart", func(t *testing.T) {
		payload, consumed, err := scanPacket([]byte("+$OK#9a"))
		require.NoError(err)
		require.Nil(payload)
		require.Zero(consumed)
	})

	t.Run("Complete", func(t *testing.T) {
		payload, consumed, err := scanPacket([]byte("$OK#9atrailing"))
		require.NoError(err)
		require.Equal([]byte("OK"), payload)
		require.Equal(6, consumed)
	})

	t.Run("ChecksumMismatch", func(t *testing.T) {
		payload, consumed, err := scanPacket([]byte("$OK#00"))
		require.ErrorIs(err, ErrChecksumMismatch)
		require.Nil(payload)
		require.Equal(6, consumed)
	})

	t.Run("BadChecksumDigits", func(t *testing.T) {
		_, consumed, err := scanPacket([]byte("$OK#zz"))
		require.ErrorIs(err, ErrChecksumMismatch)
		require.Equal(6, consumed)
	})

	t.Run("PayloadIsCopied", func(t *testing.T) {
		buf := []byte("$OK#9a")
		payload, _, err := scanPacket(buf)
		require.NoError(err)

		buf[1] = 'X'
		require.Equal([]byte("OK"), payload)
	})
}
