package session

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/probescope/probescope/catalog"
	"github.com/probescope/probescope/frame"
	"github.com/probescope/probescope/gdbremote"
	"github.com/probescope/probescope/sampler"
)

func startFakeSession(t *testing.T) *Session {
	t.Helper()

	sess, err := New(&Config{
		Sampler: sampler.NewFakeSampler(500, nil),
	})
	require.NoError(t, err)
	t.Cleanup(sess.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sess.smp.WaitState(ctx, sampler.SamplingState))

	return sess
}

func TestSessionRequiresSampler(t *testing.T) {
	require := require.New(t)

	_, err := New(nil)
	require.Error(err)

	_, err = New(&Config{})
	require.Error(err)
}

func TestSessionAcquisition(t *testing.T) {
	require := require.New(t)

	sess := startFakeSession(t)

	ids := sess.PopulateFromSampler()
	require.Len(ids, 3)
	require.Equal(3, sess.Catalog().Len())

	require.NoError(sess.EnableSignal(ids[0], true))

	// Samples flow into the store.
	require.Eventually(func() bool {
		return sess.Store().Len() > 10
	}, 5*time.Second, 10*time.Millisecond)

	require.Equal(sampler.SamplingState, sess.State())
	require.NoError(sess.Err())
	require.Greater(sess.Metrics().SampleCount.Load(), uint64(0))

	sess.Close()
	require.Equal(sampler.IdleState, sess.State())

	// The store outlives the session.
	stored := sess.Store().Len()
	require.Greater(stored, 0)
	latest, ok := sess.Store().Latest()
	require.True(ok)
	require.Len(latest.Values, 1)
}

func TestSessionEnableDisable(t *testing.T) {
	require := require.New(t)

	sess := startFakeSession(t)
	ids := sess.PopulateFromSampler()

	require.NoError(sess.EnableSignal(ids[0], true))
	require.NoError(sess.EnableSignal(ids[1], true))

	require.Eventually(func() bool {
		latest, ok := sess.Store().Latest()
		return ok && len(latest.Values) == 2
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(sess.EnableSignal(ids[1], false))

	require.Eventually(func() bool {
		latest, ok := sess.Store().Latest()
		return ok && len(latest.Values) == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.ErrorIs(sess.EnableSignal(catalog.SignalID(99), true), catalog.ErrUnknownSignal)
}

func TestSessionMultiplierIsPresentationOnly(t *testing.T) {
	require := require.New(t)

	sess := startFakeSession(t)
	ids := sess.PopulateFromSampler()
	require.NoError(sess.EnableSignal(ids[0], true))

	require.Eventually(func() bool {
		return sess.Store().Len() > 5
	}, 5*time.Second, 10*time.Millisecond)

	sess.Close()

	raw, err := sess.Points(ids[0])
	require.NoError(err)
	require.NotEmpty(raw)

	require.NoError(sess.SetMultiplier(ids[0], 1000))

	scaled, err := sess.Points(ids[0])
	require.NoError(err)
	require.Len(scaled, len(raw))
	for i := range raw {
		require.InDelta(raw[i].Value*1000, scaled[i].Value, 1e-9)
	}

	// A zero multiplier is applied as-is, not treated as 1.
	require.NoError(sess.SetMultiplier(ids[0], 0))
	zeroed, err := sess.Points(ids[0])
	require.NoError(err)
	require.Len(zeroed, len(raw))
	for i := range zeroed {
		require.Zero(zeroed[i].Value)
	}

	// Stored raw values are untouched: rescaling is reversible.
	require.NoError(sess.SetMultiplier(ids[0], 1))
	again, err := sess.Points(ids[0])
	require.NoError(err)
	require.Equal(raw, again)

	_, err = sess.Points(catalog.SignalID(99))
	require.ErrorIs(err, catalog.ErrUnknownSignal)
}

func TestSessionNotificationCallback(t *testing.T) {
	require := require.New(t)

	var count atomic.Int32
	sess, err := New(&Config{
		Sampler:        sampler.NewFakeSampler(100, nil),
		OnNotification: func(n sampler.Notification) { count.Add(1) },
	})
	require.NoError(err)

	require.Eventually(func() bool {
		return count.Load() > 0
	}, 5*time.Second, 10*time.Millisecond)

	sess.Close()
}

func TestSessionSurfacesFault(t *testing.T) {
	require := require.New(t)

	// A listener that is immediately closed leaves a port nothing accepts
	// on, so connecting faults the sampler.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(ln.Close())

	conn, err := gdbremote.NewConnConfig("127.0.0.1", port,
		gdbremote.WithConnectTimeout(200*time.Millisecond),
		gdbremote.WithReadTimeout(200*time.Millisecond))
	require.NoError(err)

	smp, err := sampler.NewMemSampler(&sampler.MemConfig{
		Conn: conn,
		Rate: 100,
		Signals: []catalog.Signal{{
			ID:   0,
			Name: "x",
			Source: catalog.Source{
				Kind:     catalog.MemorySource,
				Address:  0x1000,
				Width:    4,
				Encoding: frame.Float,
			},
		}},
	})
	require.NoError(err)

	sess, err := New(&Config{Sampler: smp})
	require.NoError(err)
	defer sess.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(smp.WaitState(ctx, sampler.FaultedState))

	require.Eventually(func() bool {
		return sess.Err() != nil
	}, 5*time.Second, 10*time.Millisecond)
}
