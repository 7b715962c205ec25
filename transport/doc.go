// Package transport provides the executor variants of the command pipeline.
//
// A device.Executor is one open channel to one device. Four variants exist,
// selected by the device's connection type at discovery time:
//
//   - serial: wraps a character device; replies arrive through the data handler.
//   - telnet: request/response over a line-oriented TCP client with bounded
//     fixed-backoff retry on transport failure.
//   - virtual: drives an in-process Emulator, for bench setups and tests.
//   - remote: pass-through proxy delegating to a downstream executor.
//
// NewFactory builds the device.ExecutorFactory that dispatches on the
// connection type. Configuration uses functional options validated at
// construction time.
package transport
