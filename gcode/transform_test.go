package gcode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyOffset(t *testing.T) {
	require := require.New(t)

	t.Run("move gains offsets on present axes", func(t *testing.T) {
		cmd, err := Parse("G1 X10 Y5")
		require.NoError(err)

		shifted := ApplyOffset(cmd, Offset{X: 2, Y: -1})
		require.Equal("G1 X12 Y4\n", shifted.Render())

		// Source command is untouched.
		require.Equal("G1 X10 Y5\n", cmd.Render())
	})

	t.Run("absent axes untouched", func(t *testing.T) {
		cmd, err := Parse("G0 X1")
		require.NoError(err)

		shifted := ApplyOffset(cmd, Offset{X: 1, Y: 100, Z: 100})
		require.Equal("G0 X2\n", shifted.Render())
	})

	t.Run("non-move unchanged", func(t *testing.T) {
		cmd, err := Parse("G28")
		require.NoError(err)

		same := ApplyOffset(cmd, Offset{X: 2, Y: -1, Z: 3})
		require.Equal("G28\n", same.Render())
	})

	t.Run("zero offset is identity", func(t *testing.T) {
		cmd := New("G1", Field{'X', 10}).Rendered()
		same := ApplyOffset(cmd, Offset{})
		require.Equal(cmd.Raw, same.Raw)
	})

	t.Run("non-axis fields preserved", func(t *testing.T) {
		cmd, err := Parse("G1 X10 F1200 E0.5")
		require.NoError(err)

		shifted := ApplyOffset(cmd, Offset{X: 0.5})
		require.Equal("G1 X10.5 F1200 E0.5\n", shifted.Render())
	})
}

func TestRoundMove(t *testing.T) {
	require := require.New(t)

	require.Equal("G1 X1.2346 Y2\n", RoundMove("G1 X1.23456789 Y2.00001\n", 4))
	require.Equal("G1 X1.2345\n", RoundMove("G1 X1.23449", 4))

	// Non-move and unparseable lines pass through untouched.
	require.Equal("M105\n", RoundMove("M105\n", 4))
	require.Equal("M117 hello\n", RoundMove("M117 hello\n", 4))
}
