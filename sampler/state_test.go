package sampler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStateTransitions(t *testing.T) {
	require := require.New(t)

	t.Run("InitialState", func(t *testing.T) {
		m := NewStateMgr(nil)
		require.Equal(IdleState, m.State())
	})

	t.Run("FullLifecycle", func(t *testing.T) {
		changes := 0
		m := NewStateMgr(nil)
		m.AddHandler(func(prev, cur State) { changes++ })

		require.NoError(m.To(ConnectingState))
		require.NoError(m.To(SamplingState))
		require.NoError(m.To(PausedState))
		require.NoError(m.To(SamplingState))
		require.NoError(m.To(StoppingState))
		require.NoError(m.To(IdleState))
		require.Equal(6, changes)
	})

	t.Run("NoOpSelfTransition", func(t *testing.T) {
		changes := 0
		m := NewStateMgr(nil)
		m.AddHandler(func(prev, cur State) { changes++ })

		require.NoError(m.To(ConnectingState))
		require.NoError(m.To(ConnectingState))
		require.Equal(1, changes)
	})

	t.Run("InvalidTransitions", func(t *testing.T) {
		m := NewStateMgr(nil)

		// Cannot sample without connecting first.
		require.ErrorIs(m.To(SamplingState), ErrInvalidTransition)
		require.ErrorIs(m.To(PausedState), ErrInvalidTransition)
		require.Equal(IdleState, m.State())
	})

	t.Run("FaultedIsTerminal", func(t *testing.T) {
		m := NewStateMgr(nil)
		require.NoError(m.To(ConnectingState))
		require.NoError(m.To(FaultedState))
		require.True(m.State().IsTerminal())

		require.ErrorIs(m.To(IdleState), ErrInvalidTransition)
		require.ErrorIs(m.To(SamplingState), ErrInvalidTransition)
	})
}

func TestStateString(t *testing.T) {
	require := require.New(t)

	require.Equal("idle", IdleState.String())
	require.Equal("sampling", SamplingState.String())
	require.Equal("faulted", FaultedState.String())
	require.Equal("unknown", State(99).String())
}

func TestWaitState(t *testing.T) {
	require := require.New(t)

	t.Run("AlreadyThere", func(t *testing.T) {
		m := NewStateMgr(nil)
		require.NoError(m.WaitState(context.Background(), IdleState))
	})

	t.Run("WaitsForTransition", func(t *testing.T) {
		m := NewStateMgr(nil)

		go func() {
			time.Sleep(20 * time.Millisecond)
			_ = m.To(ConnectingState)
			_ = m.To(SamplingState)
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(m.WaitState(ctx, SamplingState))
		require.Equal(SamplingState, m.State())
	})

	t.Run("ContextExpiry", func(t *testing.T) {
		m := NewStateMgr(nil)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		require.ErrorIs(m.WaitState(ctx, SamplingState), context.DeadlineExceeded)
	})
}
