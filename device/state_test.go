package device

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMachineTransitions(t *testing.T) {
	require := require.New(t)

	t.Run("initial state", func(t *testing.T) {
		m := NewMachine(nil)
		require.Equal(StateUninitialized, m.State())
	})

	t.Run("happy path", func(t *testing.T) {
		transitions := 0
		m := NewMachine(nil, func(prev State, next State) { transitions++ })

		require.NoError(m.Fire(EventDiscover))
		require.Equal(StateDiscovering, m.State())
		require.Equal(1, transitions)

		require.NoError(m.Fire(EventInitializationDone))
		require.Equal(StateReady, m.State())
		require.True(m.State().IsReady())
		require.Equal(2, transitions)
	})

	t.Run("failure path allows retry", func(t *testing.T) {
		m := NewMachine(nil)

		require.NoError(m.Fire(EventDiscover))
		require.NoError(m.Fire(EventInitializationFail))
		require.Equal(StateFailed, m.State())

		// failed is terminal until an explicit retry via discover.
		require.NoError(m.Fire(EventDiscover))
		require.Equal(StateDiscovering, m.State())
	})

	t.Run("invalid transitions fail closed", func(t *testing.T) {
		notified := 0
		m := NewMachine(nil, func(State, State) { notified++ })

		require.ErrorIs(m.Fire(EventInitializationDone), ErrInvalidTransition)
		require.ErrorIs(m.Fire(EventInitializationFail), ErrInvalidTransition)
		require.Equal(StateUninitialized, m.State())
		require.Zero(notified, "invalid transitions must not notify")

		require.NoError(m.Fire(EventDiscover))
		require.NoError(m.Fire(EventInitializationDone))

		// discover is not legal from ready; re-discovery goes through Reset.
		require.ErrorIs(m.Fire(EventDiscover), ErrInvalidTransition)
		require.Equal(StateReady, m.State())
	})
}

func TestMachineReset(t *testing.T) {
	require := require.New(t)

	var entered []State
	m := NewMachine(nil, func(prev State, next State) { entered = append(entered, next) })

	require.NoError(m.Fire(EventDiscover))
	require.NoError(m.Fire(EventInitializationDone))

	m.Reset()
	require.Equal(StateUninitialized, m.State())
	require.Equal([]State{StateDiscovering, StateReady, StateUninitialized}, entered)

	// Reset from uninitialized is a no-op and does not notify.
	m.Reset()
	require.Len(entered, 3)
}

func TestMachinePanickingHandler(t *testing.T) {
	require := require.New(t)

	m := NewMachine(nil,
		func(State, State) { panic("notify boom") },
		func(State, State) {},
	)

	// A panicking handler must not roll back or block the transition.
	require.NoError(m.Fire(EventDiscover))
	require.Equal(StateDiscovering, m.State())
}

func TestStateAndEventStrings(t *testing.T) {
	require := require.New(t)

	require.Equal("uninitialized", StateUninitialized.String())
	require.Equal("discovering", StateDiscovering.String())
	require.Equal("ready", StateReady.String())
	require.Equal("failed", StateFailed.String())
	require.Equal("discover", EventDiscover.String())
	require.Equal("initializationDone", EventInitializationDone.String())
	require.Equal("initializationFail", EventInitializationFail.String())
}
