package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/openfab/fabdrive/device"
	"github.com/openfab/fabdrive/gcode"
	"github.com/openfab/fabdrive/logger"
	"github.com/openfab/fabdrive/notify"
)

// moveDecimals is the coordinate precision of lines handed to an emulator.
const moveDecimals = 4

// Emulator is an in-process device: it consumes one rendered line and returns
// the reply the firmware would produce.
type Emulator interface {
	Process(line string) (string, error)
	Close() error
}

// LoopbackEmulator acknowledges every line. It backs bench setups and tests
// that need a device without hardware.
type LoopbackEmulator struct{}

var _ Emulator = (*LoopbackEmulator)(nil)

func (*LoopbackEmulator) Process(string) (string, error) { return "ok\n", nil }

func (*LoopbackEmulator) Close() error { return nil }

// Trace is the payload of a transport trace event: one sent/received line pair.
type Trace struct {
	Sent     string `json:"sent"`
	Received string `json:"received"`
}

// VirtualExecutor drives an in-process Emulator.
//
// Move coordinates are rounded to four decimal places before the line reaches
// the emulator, and every exchange publishes a trace event for observability.
type VirtualExecutor struct {
	handlerSet

	emu      Emulator
	notifier notify.Notifier
	deviceID string
	logger   logger.Logger

	closeOnce sync.Once
	done      chan struct{}
}

var _ device.Executor = (*VirtualExecutor)(nil)

func newVirtual(_ context.Context, spec device.ExecutorSpec, cfg *Config) (*VirtualExecutor, error) {
	e := &VirtualExecutor{
		emu:      cfg.emulator(),
		notifier: cfg.notifier,
		deviceID: spec.DeviceID,
		logger:   cfg.logger.With("device", spec.DeviceID, "transport", "virtual"),
		done:     make(chan struct{}),
	}

	if spec.Prime != "" {
		if _, err := e.emu.Process(spec.Prime); err != nil {
			_ = e.emu.Close()

			return nil, fmt.Errorf("transport: prime emulator: %w", err)
		}
	}

	return e, nil
}

func (e *VirtualExecutor) Send(ctx context.Context, line string) (string, error) {
	select {
	case <-e.done:
		return "", ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	line = gcode.RoundMove(line, moveDecimals)

	reply, err := e.emu.Process(line)
	if err != nil {
		e.notifyError(err)

		return "", fmt.Errorf("transport: emulator: %w", err)
	}

	e.notifier.Publish(notify.Event{
		ID:    e.deviceID,
		Event: notify.EventTrace,
		Data:  Trace{Sent: line, Received: reply},
	})

	return reply, nil
}

// Close closes the emulator. Idempotent.
func (e *VirtualExecutor) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.done)
		err = e.emu.Close()
	})

	return err
}
