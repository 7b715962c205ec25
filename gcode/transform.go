package gcode

import (
	"math"
	"strings"
)

// Offset is a per-axis spatial offset applied to move commands.
type Offset struct {
	X float64
	Y float64
	Z float64
}

// IsZero returns true when no axis carries an offset.
func (o Offset) IsZero() bool {
	return o.X == 0 && o.Y == 0 && o.Z == 0
}

// ApplyOffset adds the per-axis offset to any X/Y/Z field present on a move
// command (G0/G1). Absent axes stay untouched and non-move commands are
// returned unmodified. The transform is pure: the input command is not mutated
// and the returned command is unrendered.
func ApplyOffset(c Command, off Offset) Command {
	if !c.IsMove() || off.IsZero() {
		return c
	}

	fields := make([]Field, len(c.Fields))
	copy(fields, c.Fields)

	for i := range fields {
		switch fields[i].Letter {
		case 'X', 'x':
			fields[i].Value += off.X
		case 'Y', 'y':
			fields[i].Value += off.Y
		case 'Z', 'z':
			fields[i].Value += off.Z
		}
	}

	c.Fields = fields
	c.Raw = "" // force a re-render with the shifted coordinates

	return c
}

// RoundMove rounds every floating coordinate of a rendered move line to the
// given number of decimal places, returning the line unchanged when it is not
// a parseable move command.
func RoundMove(line string, decimals int) string {
	cmd, err := Parse(strings.TrimRight(line, "\r\n"))
	if err != nil || !cmd.IsMove() {
		return line
	}

	scale := math.Pow10(decimals)
	for i := range cmd.Fields {
		cmd.Fields[i].Value = math.Round(cmd.Fields[i].Value*scale) / scale
	}

	return cmd.Render()
}
