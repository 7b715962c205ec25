package device

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openfab/fabdrive/gcode"
)

// recordingRequeuer captures Requeue calls made by the retry path.
type recordingRequeuer struct {
	cmds []gcode.Command
}

func (r *recordingRequeuer) Requeue(cmd gcode.Command) {
	r.cmds = append(r.cmds, cmd)
}

func TestSerialValidatorAcknowledgement(t *testing.T) {
	require := require.New(t)

	rq := &recordingRequeuer{}
	v := NewSerialValidator(false, NewChecksumWindow(nil, 0, 0), rq, nil, nil)
	cmd := gcode.New("G28").Rendered()

	require.Equal(VerdictOk, v.Classify(cmd, "ok\n"))
	require.Equal(VerdictOk, v.Classify(cmd, "echo:busy\nok\n"))
	require.Equal(VerdictOk, v.Classify(cmd, "ok\r\n"))

	// Trailing blank lines are skipped before the acknowledgement check.
	require.Equal(VerdictOk, v.Classify(cmd, "ok\n\n\n"))

	// The serial check is case sensitive.
	require.Equal(VerdictUnrecognized, v.Classify(cmd, "Ok\n"))
	require.Equal(VerdictUnrecognized, v.Classify(cmd, "OK\n"))

	require.Equal(VerdictUnrecognized, v.Classify(cmd, "T:210.0 /210.0\n"))
	require.Empty(rq.cmds)

	require.True(v.HoldsUnrecognized())
}

func TestDefaultValidatorAcknowledgement(t *testing.T) {
	require := require.New(t)

	rq := &recordingRequeuer{}
	v := NewDefaultValidator(false, NewChecksumWindow(nil, 0, 0), rq, nil, nil)
	cmd := gcode.New("G28").Rendered()

	require.Equal(VerdictOk, v.Classify(cmd, "ok\n"))

	// Case-insensitive, last line only.
	require.Equal(VerdictOk, v.Classify(cmd, "Ok\n"))
	require.Equal(VerdictOk, v.Classify(cmd, "echo:busy\nOK\n"))

	// "ok" on a non-final line does not count.
	require.Equal(VerdictUnrecognized, v.Classify(cmd, "ok\nerror\n"))

	require.Equal(VerdictUnrecognized, v.Classify(cmd, "T:210.0 /210.0\n"))
	require.Empty(rq.cmds)

	require.False(v.HoldsUnrecognized())
}

func TestValidatorRetrySignals(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		retry bool
	}{
		{"resend with line number", "Resend:12\nok\n", true},
		{"lowercase resend", "resend: 4\n", true},
		{"rs shorthand", "rs 7\n", true},
		{"rs prefix only at line start", "errs\n", false},
		{"plain ok", "ok\n", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			rq := &recordingRequeuer{}
			w := NewChecksumWindow(nil, 0, time.Hour)
			v := NewSerialValidator(true, w, rq, nil, nil)
			cmd := gcode.New("G1", gcode.Field{Letter: 'X', Value: 10}).Rendered()

			verdict := v.Classify(cmd, tt.reply)

			if tt.retry {
				require.Equal(VerdictRetry, verdict)
				require.Len(rq.cmds, 1, "exactly one resend copy per retry signal")
				require.Equal(1, rq.cmds[0].Attempt)
				require.Contains(rq.cmds[0].Raw, "N1 G1 X10*")
				require.Equal(1, w.Count(), "each retry increments the failure window once")
			} else {
				require.Empty(rq.cmds)
				require.Zero(w.Count())
			}
		})
	}
}

func TestDefaultValidatorRetryReportsOk(t *testing.T) {
	require := require.New(t)

	rq := &recordingRequeuer{}
	w := NewChecksumWindow(nil, 0, time.Hour)
	v := NewDefaultValidator(true, w, rq, nil, nil)
	cmd := gcode.New("G1", gcode.Field{Letter: 'X', Value: 10}).Rendered()

	// The resend copy is requeued, but the verdict lets the queue advance so the
	// copy at the head dispatches next.
	require.Equal(VerdictOk, v.Classify(cmd, "Resend:3\n"))
	require.Len(rq.cmds, 1)
	require.Equal(1, w.Count())
}

func TestValidatorRetryRequiresChecksumSupport(t *testing.T) {
	require := require.New(t)

	rq := &recordingRequeuer{}
	w := NewChecksumWindow(nil, 0, time.Hour)
	v := NewSerialValidator(false, w, rq, nil, nil)
	cmd := gcode.New("G28").Rendered()

	// Without declared checksum support a resend request is just an
	// unrecognized reply.
	require.Equal(VerdictUnrecognized, v.Classify(cmd, "Resend:3\n"))
	require.Empty(rq.cmds)
	require.Zero(w.Count())
}

func TestValidatorRunawayDisablesRetry(t *testing.T) {
	require := require.New(t)

	rq := &recordingRequeuer{}
	w := NewChecksumWindow(nil, 2, time.Hour)
	v := NewSerialValidator(true, w, rq, nil, nil)
	cmd := gcode.New("G28").Rendered()

	require.Equal(VerdictRetry, v.Classify(cmd, "rs\n"))
	require.Equal(VerdictRetry, v.Classify(cmd, "rs\n"))
	require.Equal(VerdictRetry, v.Classify(cmd, "rs\n"))
	require.True(w.Runaway())
	require.Len(rq.cmds, 3)

	// With the runaway flag set, retry signals fall through to the normal rules.
	require.Equal(VerdictUnrecognized, v.Classify(cmd, "rs\n"))
	require.Equal(VerdictOk, v.Classify(cmd, "Resend:9\nok\n"))
	require.Len(rq.cmds, 3, "no further resend copies after runaway")
}

func TestNewValidatorSelection(t *testing.T) {
	require := require.New(t)

	w := NewChecksumWindow(nil, 0, 0)
	rq := &recordingRequeuer{}

	require.IsType(&SerialValidator{}, newValidator(ConnSerial, true, w, rq, nil, nil))
	require.IsType(&DefaultValidator{}, newValidator(ConnTelnet, true, w, rq, nil, nil))
	require.IsType(&DefaultValidator{}, newValidator(ConnVirtual, false, w, rq, nil, nil))
	require.IsType(&DefaultValidator{}, newValidator(ConnRemote, false, w, rq, nil, nil))
}
