package gcode

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// LineEnding terminates every rendered command line.
const LineEnding = "\n"

var (
	// ErrEmptyCommand indicates that an empty line was parsed as a command.
	ErrEmptyCommand = errors.New("gcode: empty command")

	// ErrMalformedField indicates that a command field is not a letter followed by a number.
	ErrMalformedField = errors.New("gcode: malformed command field")
)

// Field is a single letter/value argument of a structured command, e.g. X10.5.
type Field struct {
	Letter byte
	Value  float64
}

// Command is a logical device instruction.
//
// A Command is immutable once rendered; the only mutation path is Resend,
// which returns a copy re-rendered with an incremented checksum attempt count.
type Command struct {
	// Name is the command word, e.g. "G1" or "M105". Empty for raw-only commands.
	Name string

	// Fields are the structured arguments in their original order.
	Fields []Field

	// Raw is the rendered wire form including the trailing line ending.
	// Empty until the command is rendered.
	Raw string

	// Attempt counts checksum resend attempts; zero for the initial send.
	Attempt int
}

// New creates a structured command from a name and its fields.
func New(name string, fields ...Field) Command {
	return Command{Name: name, Fields: fields}
}

// Rawline creates a command from an opaque pre-rendered line.
// The line ending is appended if missing.
func Rawline(line string) Command {
	if !strings.HasSuffix(line, LineEnding) {
		line += LineEnding
	}

	return Command{Raw: line}
}

// Parse parses a single structured command line such as "G1 X10 Y5".
//
// Each token after the command word must be a letter immediately followed by a
// decimal number. Lines that carry free-form payloads should be wrapped with
// Rawline instead.
func Parse(line string) (Command, error) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return Command{}, ErrEmptyCommand
	}

	cmd := Command{Name: tokens[0], Fields: make([]Field, 0, len(tokens)-1)}
	for _, tok := range tokens[1:] {
		if len(tok) < 2 {
			return Command{}, fmt.Errorf("%w: %q", ErrMalformedField, tok)
		}

		letter := tok[0]
		if (letter < 'A' || letter > 'Z') && (letter < 'a' || letter > 'z') {
			return Command{}, fmt.Errorf("%w: %q", ErrMalformedField, tok)
		}

		value, err := strconv.ParseFloat(tok[1:], 64)
		if err != nil {
			return Command{}, fmt.Errorf("%w: %q", ErrMalformedField, tok)
		}

		cmd.Fields = append(cmd.Fields, Field{Letter: letter, Value: value})
	}

	return cmd, nil
}

// IsMove returns true for the linear move commands G0 and G1.
func (c Command) IsMove() bool {
	return c.Name == "G0" || c.Name == "G1"
}

// IsRendered returns true once the command has a wire form.
func (c Command) IsRendered() bool {
	return c.Raw != ""
}

// Render returns the wire form of the command, rendering it if necessary.
func (c Command) Render() string {
	if c.Raw != "" {
		return c.Raw
	}

	return c.body() + LineEnding
}

// Rendered returns a copy of the command with its wire form materialized.
func (c Command) Rendered() Command {
	c.Raw = c.Render()

	return c
}

// Resend returns a copy of the command re-rendered for a checksum resend attempt.
//
// The attempt count is incremented and the wire form becomes the checksummed
// "N<attempt> <body>*<checksum>" framing expected by checksum-capable firmware.
func (c Command) Resend() Command {
	c.Attempt++
	framed := fmt.Sprintf("N%d %s", c.Attempt, c.bodyFromAny())
	c.Raw = fmt.Sprintf("%s*%d%s", framed, Checksum(framed), LineEnding)

	return c
}

// Checksum computes the XOR checksum of every byte in the framed line.
func Checksum(line string) uint8 {
	var sum uint8
	for i := 0; i < len(line); i++ {
		sum ^= line[i]
	}

	return sum
}

// body renders the structured form "NAME L1v1 L2v2 ...".
func (c Command) body() string {
	var sb strings.Builder
	sb.WriteString(c.Name)
	for _, f := range c.Fields {
		sb.WriteByte(' ')
		sb.WriteByte(f.Letter)
		sb.WriteString(strconv.FormatFloat(f.Value, 'f', -1, 64))
	}

	return sb.String()
}

// bodyFromAny returns the command body for checksummed framing, preferring the
// structured form and falling back to the trimmed raw line for opaque commands.
func (c Command) bodyFromAny() string {
	if c.Name != "" {
		return c.body()
	}

	return strings.TrimRight(c.Raw, "\r\n")
}

// String returns the command body without the line ending, for logging.
func (c Command) String() string {
	if c.Name != "" {
		return c.body()
	}

	return strings.TrimRight(c.Raw, "\r\n")
}
