package transport

import (
	"context"
	"fmt"

	"github.com/openfab/fabdrive/device"
	"github.com/openfab/fabdrive/logger"
)

// RemoteExecutor is a pass-through proxy over a downstream executor built by
// the configured downstream factory. Every call, including the handler
// registrations, delegates unchanged; the proxy only adds per-line debug
// logging for the proxied traffic.
type RemoteExecutor struct {
	downstream device.Executor
	logger     logger.Logger
}

var _ device.Executor = (*RemoteExecutor)(nil)

func newRemote(ctx context.Context, spec device.ExecutorSpec, cfg *Config) (*RemoteExecutor, error) {
	if cfg.downstream == nil {
		return nil, ErrNoDownstream
	}

	downstream, err := cfg.downstream(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("transport: build downstream executor: %w", err)
	}

	return &RemoteExecutor{
		downstream: downstream,
		logger:     cfg.logger.With("device", spec.DeviceID, "transport", "remote"),
	}, nil
}

func (e *RemoteExecutor) Send(ctx context.Context, line string) (string, error) {
	reply, err := e.downstream.Send(ctx, line)
	e.logger.Debug("proxied line", "line", line, "reply", reply, "error", err)

	return reply, err
}

func (e *RemoteExecutor) SetDataHandler(fn func(line string)) {
	e.downstream.SetDataHandler(fn)
}

func (e *RemoteExecutor) SetCloseHandler(fn func()) {
	e.downstream.SetCloseHandler(fn)
}

func (e *RemoteExecutor) SetErrorHandler(fn func(err error)) {
	e.downstream.SetErrorHandler(fn)
}

func (e *RemoteExecutor) Close() error {
	return e.downstream.Close()
}
