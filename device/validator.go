package device

import (
	"strings"

	"github.com/openfab/fabdrive/gcode"
	"github.com/openfab/fabdrive/logger"
)

// Verdict is the classification of a raw transport reply.
type Verdict uint8

const (
	// VerdictUnrecognized means the reply is neither an acknowledgement nor a
	// retry signal; the command is not yet acknowledged.
	VerdictUnrecognized Verdict = iota
	// VerdictOk means the reply acknowledges the in-flight command.
	VerdictOk
	// VerdictRetry means the reply requested a checksum resend; the resend copy
	// has already been placed at the queue head.
	VerdictRetry
)

// String returns the string representation of the verdict.
func (v Verdict) String() string {
	switch v {
	case VerdictOk:
		return "ok"
	case VerdictRetry:
		return "retry"
	case VerdictUnrecognized:
		return "unrecognized"
	default:
		return "unknown"
	}
}

// Requeuer places a command back at the head of its queue for a resend attempt.
// Implemented by CommandQueue.
type Requeuer interface {
	Requeue(cmd gcode.Command)
}

// Validator classifies raw transport replies for one device. It owns the
// checksum-failure bookkeeping: a retry classification has already reinserted
// the resend copy at the queue head and incremented the failure window.
type Validator interface {
	// Classify interprets a raw reply for the in-flight command.
	Classify(cmd gcode.Command, reply string) Verdict

	// HoldsUnrecognized reports the unrecognized-reply policy: true means the
	// queue keeps waiting for further data for the same command (serial), false
	// means the queue logs and advances (request/response transports).
	HoldsUnrecognized() bool
}

// validatorCore holds the classification machinery shared by all validators.
// Only the retry-held-vs-counted-as-ok nuance and the ok case rules differ
// between connection types.
type validatorCore struct {
	checksum bool // device's static info declares checksum support
	window   *ChecksumWindow
	queue    Requeuer
	logger   logger.Logger
	metrics  *Metrics
}

// retryRequested reports whether the reply is a checksum resend request:
// it contains "resend" case-insensitively or starts with "rs".
func retryRequested(reply string) bool {
	if strings.Contains(strings.ToLower(reply), "resend") {
		return true
	}

	return strings.HasPrefix(reply, "rs")
}

// handleRetry performs the checksum-retry path when applicable: it reinserts a
// resend copy of the command at the queue head and increments the failure
// window. Returns true when the retry path was taken.
//
// Once the window's runaway flag is set, retry signals are no longer treated
// specially and fall through to the ok/unrecognized rules.
func (v *validatorCore) handleRetry(cmd gcode.Command, reply string) bool {
	if !v.checksum || !retryRequested(reply) || v.window.Runaway() {
		return false
	}

	v.queue.Requeue(cmd.Resend())

	if v.window.Increment() {
		v.metrics.incRunawayTrips()
	}
	v.metrics.incChecksumRetries()

	v.logger.Debug("checksum resend requested",
		"cmd", cmd.String(), "attempt", cmd.Attempt+1, "window", v.window.Count())

	return true
}

// normalizeLineBreaks folds CRLF and bare CR line endings into LF.
func normalizeLineBreaks(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")

	return strings.ReplaceAll(s, "\r", "\n")
}

// lastLine returns the final line of a normalized reply. When skipEmpty is set,
// trailing empty lines are skipped.
func lastLine(reply string, skipEmpty bool) string {
	lines := strings.Split(strings.TrimRight(reply, "\n"), "\n")

	if skipEmpty {
		for i := len(lines) - 1; i >= 0; i-- {
			if strings.TrimSpace(lines[i]) != "" {
				return lines[i]
			}
		}

		return ""
	}

	return lines[len(lines)-1]
}

// SerialValidator classifies replies for the serial transport.
//
// The acknowledgement check is case-sensitive on "ok" and considers the last
// non-empty line. A retry classification is reported as VerdictRetry: the queue
// must not advance past the in-flight command until the resend copy dispatches.
// Unrecognized replies hold the queue, which keeps waiting for further
// callback-delivered data.
type SerialValidator struct {
	validatorCore
}

var _ Validator = (*SerialValidator)(nil)

// NewSerialValidator creates the validator used for serial devices.
func NewSerialValidator(checksum bool, window *ChecksumWindow, queue Requeuer, l logger.Logger, m *Metrics) *SerialValidator {
	if l == nil {
		l = logger.GetLogger()
	}

	return &SerialValidator{validatorCore{checksum: checksum, window: window, queue: queue, logger: l, metrics: m}}
}

func (v *SerialValidator) Classify(cmd gcode.Command, reply string) Verdict {
	reply = normalizeLineBreaks(reply)

	if v.handleRetry(cmd, reply) {
		return VerdictRetry
	}

	if strings.Contains(lastLine(reply, true), "ok") {
		return VerdictOk
	}

	return VerdictUnrecognized
}

func (v *SerialValidator) HoldsUnrecognized() bool { return true }

// DefaultValidator classifies replies for request/response transports
// (virtual, telnet, remote).
//
// It shares the serial algorithm shape with two documented differences: the
// acknowledgement check on the last line is case-insensitive, and a checksum
// retry is still reported as accepted. The resend copy is already at the queue
// head, so advancing dispatches it next.
type DefaultValidator struct {
	validatorCore
}

var _ Validator = (*DefaultValidator)(nil)

// NewDefaultValidator creates the validator used for non-serial devices.
func NewDefaultValidator(checksum bool, window *ChecksumWindow, queue Requeuer, l logger.Logger, m *Metrics) *DefaultValidator {
	if l == nil {
		l = logger.GetLogger()
	}

	return &DefaultValidator{validatorCore{checksum: checksum, window: window, queue: queue, logger: l, metrics: m}}
}

func (v *DefaultValidator) Classify(cmd gcode.Command, reply string) Verdict {
	reply = normalizeLineBreaks(reply)

	if v.handleRetry(cmd, reply) {
		return VerdictOk
	}

	if strings.Contains(strings.ToLower(lastLine(reply, false)), "ok") {
		return VerdictOk
	}

	return VerdictUnrecognized
}

func (v *DefaultValidator) HoldsUnrecognized() bool { return false }

// newValidator selects the validator policy for a connection type.
func newValidator(connType string, checksum bool, window *ChecksumWindow, queue Requeuer, l logger.Logger, m *Metrics) Validator {
	if connType == ConnSerial {
		return NewSerialValidator(checksum, window, queue, l, m)
	}

	return NewDefaultValidator(checksum, window, queue, l, m)
}
