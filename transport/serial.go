package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/openfab/fabdrive/device"
	"github.com/openfab/fabdrive/logger"
)

// SerialExecutor drives a device over a character port.
//
// The serial protocol is not request/response: device output arrives whenever
// the firmware emits it. Send therefore resolves with an empty reply after the
// write, and a background read loop delivers every received line through the
// data handler. The command queue reconciles handler-delivered lines with the
// in-flight command.
type SerialExecutor struct {
	handlerSet

	port   io.ReadWriteCloser
	logger logger.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

var _ device.Executor = (*SerialExecutor)(nil)

func newSerial(_ context.Context, spec device.ExecutorSpec, cfg *Config) (*SerialExecutor, error) {
	port, err := cfg.openPort(spec)
	if err != nil {
		return nil, err
	}

	e := &SerialExecutor{
		port:   port,
		logger: cfg.logger.With("device", spec.DeviceID, "transport", "serial"),
		done:   make(chan struct{}),
	}

	if spec.Prime != "" {
		if err := e.write(spec.Prime); err != nil {
			_ = port.Close()

			return nil, fmt.Errorf("transport: prime serial port %s: %w", spec.Port, err)
		}
	}

	go e.readLoop()

	e.logger.Debug("serial port open", "port", spec.Port, "baud", spec.Baud)

	return e, nil
}

// Send writes the rendered line to the port. The reply is always empty;
// device output flows through the data handler.
func (e *SerialExecutor) Send(ctx context.Context, line string) (string, error) {
	select {
	case <-e.done:
		return "", ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	if err := e.write(line); err != nil {
		return "", fmt.Errorf("transport: serial write: %w", err)
	}

	return "", nil
}

// Close closes the port and stops the read loop. Idempotent.
func (e *SerialExecutor) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.done)
		err = e.port.Close()
	})

	return err
}

func (e *SerialExecutor) write(line string) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	_, err := io.WriteString(e.port, line)

	return err
}

// readLoop delivers every received line through the data handler until the
// port fails or the executor closes. A spontaneous port loss notifies the
// error and close handlers.
func (e *SerialExecutor) readLoop() {
	scanner := bufio.NewScanner(e.port)
	for scanner.Scan() {
		e.notifyData(scanner.Text())
	}

	select {
	case <-e.done:
		return // explicit Close
	default:
	}

	if err := scanner.Err(); err != nil {
		e.logger.Error("serial read failed", "error", err)
		e.notifyError(err)
	}

	e.logger.Warn("serial port closed by peer")
	e.notifyClose()
}
