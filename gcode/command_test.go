package gcode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	require := require.New(t)

	t.Run("structured move", func(t *testing.T) {
		cmd, err := Parse("G1 X10 Y5")
		require.NoError(err)
		require.Equal("G1", cmd.Name)
		require.Equal([]Field{{'X', 10}, {'Y', 5}}, cmd.Fields)
		require.True(cmd.IsMove())
	})

	t.Run("no fields", func(t *testing.T) {
		cmd, err := Parse("G28")
		require.NoError(err)
		require.Equal("G28", cmd.Name)
		require.Empty(cmd.Fields)
		require.False(cmd.IsMove())
	})

	t.Run("float values", func(t *testing.T) {
		cmd, err := Parse("G0 Z0.3 F4500")
		require.NoError(err)
		require.Equal([]Field{{'Z', 0.3}, {'F', 4500}}, cmd.Fields)
	})

	t.Run("empty line", func(t *testing.T) {
		_, err := Parse("  ")
		require.ErrorIs(err, ErrEmptyCommand)
	})

	t.Run("malformed field", func(t *testing.T) {
		_, err := Parse("G1 X")
		require.ErrorIs(err, ErrMalformedField)

		_, err = Parse("G1 10X")
		require.ErrorIs(err, ErrMalformedField)
	})
}

func TestRender(t *testing.T) {
	require := require.New(t)

	cmd := New("G1", Field{'X', 12}, Field{'Y', 4})
	require.False(cmd.IsRendered())
	require.Equal("G1 X12 Y4\n", cmd.Render())

	rendered := cmd.Rendered()
	require.True(rendered.IsRendered())
	require.Equal("G1 X12 Y4\n", rendered.Raw)

	// Fractions render without trailing zeros.
	cmd = New("G0", Field{'Z', 0.3})
	require.Equal("G0 Z0.3\n", cmd.Render())

	// Raw commands render verbatim.
	raw := Rawline("M117 hello world")
	require.Equal("M117 hello world\n", raw.Render())
}

func TestResend(t *testing.T) {
	require := require.New(t)

	cmd := New("G1", Field{'X', 10}).Rendered()

	first := cmd.Resend()
	require.Equal(1, first.Attempt)
	require.Equal(0, cmd.Attempt, "Resend must not mutate the original")

	framed := "N1 G1 X10"
	require.Equal(framed+"*"+checksumString(framed)+"\n", first.Raw)

	second := first.Resend()
	require.Equal(2, second.Attempt)
	require.Contains(second.Raw, "N2 G1 X10*")
}

func TestChecksum(t *testing.T) {
	require := require.New(t)

	// XOR of all bytes; a doubled line cancels itself out.
	require.Equal(uint8(0), Checksum("abab"))
	require.NotEqual(uint8(0), Checksum("N1 G1 X10"))
}

func checksumString(line string) string {
	sum := Checksum(line)
	digits := []byte{}
	if sum == 0 {
		return "0"
	}
	for sum > 0 {
		digits = append([]byte{byte('0' + sum%10)}, digits...)
		sum /= 10
	}

	return string(digits)
}
