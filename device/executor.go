package device

import "context"

// Connection types selectable at discovery time.
const (
	ConnSerial  = "serial"
	ConnTelnet  = "telnet"
	ConnVirtual = "virtual"
	ConnRemote  = "remote"
)

// Executor is the transport contract: one open channel to one device.
//
// Exactly one Send may be outstanding per Executor at a time; this discipline is
// enforced by the CommandQueue, not the Executor itself.
//
// Reply delivery differs per variant and each implementation must document its
// behavior: request/response transports (telnet, virtual, remote) resolve Send
// with the raw reply, while the serial transport resolves Send with an empty
// reply and delivers device output through the registered data handler. The
// CommandQueue treats handler-delivered data as the result of the in-flight Send.
type Executor interface {
	// Send transmits a rendered command line.
	Send(ctx context.Context, line string) (string, error)

	// SetDataHandler registers the handler for out-of-band device output.
	// One handler per kind; the last registration wins.
	SetDataHandler(fn func(line string))

	// SetCloseHandler registers the handler invoked when the transport closes.
	// One handler per kind; the last registration wins.
	SetCloseHandler(fn func())

	// SetErrorHandler registers the handler for transport errors.
	// One handler per kind; the last registration wins.
	SetErrorHandler(fn func(err error))

	// Close releases the transport. It is idempotent.
	Close() error
}

// ExecutorSpec is the transport-facing slice of a device's identity, static info
// and settings, handed to the ExecutorFactory at discovery time.
type ExecutorSpec struct {
	// DeviceID identifies the owning device, for callback and notification routing.
	DeviceID string

	// ConnType selects the executor variant.
	ConnType string

	// Port is the endpoint or port identifier of the transport.
	Port string

	// Baud is the line speed or protocol parameter.
	Baud int

	// Prime is the open/prime command sent once at connection establishment,
	// empty for none.
	Prime string
}

// ExecutorFactory builds an Executor for a device at discovery time.
//
// An unrecognized connection type must fail with ErrUnsupportedConnectionType,
// which is fatal to discovery.
type ExecutorFactory func(ctx context.Context, spec ExecutorSpec) (Executor, error)
