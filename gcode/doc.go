// Package gcode provides the logical command model used by the fabdrive engine.
//
// A Command is either a structured instruction (name plus letter/value fields,
// e.g. "G1 X10 Y5") or an opaque raw line. Structured commands render to their
// wire form on demand, with an optional checksummed form used on resend attempts.
//
// The package also provides the pure command transforms applied before a command
// enters the device pipeline: per-axis offset application for move commands and
// coordinate rounding for the virtual transport.
package gcode
