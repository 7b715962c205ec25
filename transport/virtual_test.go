package transport

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openfab/fabdrive/device"
	"github.com/openfab/fabdrive/notify"
)

// captureNotifier records published events.
type captureNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *captureNotifier) Publish(e notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *captureNotifier) Events() []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]notify.Event, len(n.events))
	copy(out, n.events)

	return out
}

// scriptEmulator records processed lines and replies from a script.
type scriptEmulator struct {
	mu     sync.Mutex
	lines  []string
	script func(line string) (string, error)
	closed bool
}

func (e *scriptEmulator) Process(line string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lines = append(e.lines, line)

	if e.script == nil {
		return "ok\n", nil
	}

	return e.script(line)
}

func (e *scriptEmulator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true

	return nil
}

func newVirtualForTest(t *testing.T, emu Emulator, notifier notify.Notifier, prime string) *VirtualExecutor {
	t.Helper()

	opts := []Option{WithEmulator(func() Emulator { return emu })}
	if notifier != nil {
		opts = append(opts, WithNotifier(notifier))
	}

	cfg, err := NewConfig(opts...)
	require.NoError(t, err)

	exec, err := newVirtual(context.Background(), device.ExecutorSpec{
		DeviceID: "dev-1",
		ConnType: device.ConnVirtual,
		Prime:    prime,
	}, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = exec.Close() })

	return exec
}

func TestVirtualSendRoundsMoveCoordinates(t *testing.T) {
	require := require.New(t)

	emu := &scriptEmulator{}
	exec := newVirtualForTest(t, emu, nil, "")

	reply, err := exec.Send(context.Background(), "G1 X1.000049 Y2.00005\n")
	require.NoError(err)
	require.Equal("ok\n", reply)

	// Non-move lines pass through untouched.
	_, err = exec.Send(context.Background(), "M117 hello world\n")
	require.NoError(err)

	require.Equal([]string{"G1 X1 Y2.0001\n", "M117 hello world\n"}, emu.lines)
}

func TestVirtualPublishesTraceEvents(t *testing.T) {
	require := require.New(t)

	notifier := &captureNotifier{}
	exec := newVirtualForTest(t, &scriptEmulator{}, notifier, "")

	_, err := exec.Send(context.Background(), "G28\n")
	require.NoError(err)

	events := notifier.Events()
	require.Len(events, 1)
	require.Equal("dev-1", events[0].ID)
	require.Equal(notify.EventTrace, events[0].Event)
	require.Equal(Trace{Sent: "G28\n", Received: "ok\n"}, events[0].Data)
}

func TestVirtualEmulatorFailure(t *testing.T) {
	require := require.New(t)

	boom := errors.New("thermal runaway")
	emu := &scriptEmulator{script: func(string) (string, error) { return "", boom }}
	exec := newVirtualForTest(t, emu, nil, "")

	var reported error
	exec.SetErrorHandler(func(err error) { reported = err })

	_, err := exec.Send(context.Background(), "G28\n")
	require.ErrorIs(err, boom)
	require.ErrorIs(reported, boom)
}

func TestVirtualPrimeAndClose(t *testing.T) {
	require := require.New(t)

	emu := &scriptEmulator{}
	exec := newVirtualForTest(t, emu, nil, "M110 N0\n")

	require.Equal([]string{"M110 N0\n"}, emu.lines)

	require.NoError(exec.Close())
	require.True(emu.closed)

	_, err := exec.Send(context.Background(), "G28\n")
	require.ErrorIs(err, ErrClosed)
}

func TestLoopbackEmulator(t *testing.T) {
	require := require.New(t)

	emu := &LoopbackEmulator{}
	reply, err := emu.Process("G28\n")
	require.NoError(err)
	require.Equal("ok\n", reply)
	require.NoError(emu.Close())
}
