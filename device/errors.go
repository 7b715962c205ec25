package device

import "errors"

var (
	// ErrInvalidTransition is returned when a lifecycle event is attempted that is
	// not legal from the device's current state.
	ErrInvalidTransition = errors.New("device: invalid lifecycle transition")

	// ErrUnsupportedConnectionType indicates that no executor can be built for the
	// device's declared connection type. Fatal to discovery.
	ErrUnsupportedConnectionType = errors.New("device: unsupported connection type")

	// ErrUnsupportedCommand indicates that a command name is not present in the
	// device's capability table.
	ErrUnsupportedCommand = errors.New("device: unsupported command")
)

var (
	// ErrDeviceNotFound indicates that no device with the given ID is registered.
	ErrDeviceNotFound = errors.New("device: device not found")

	// ErrDeviceExists indicates that a device with the given ID is already registered.
	ErrDeviceExists = errors.New("device: device already exists")

	// ErrUnknownPreset indicates that no preset template with the given name exists.
	ErrUnknownPreset = errors.New("device: unknown preset")

	// ErrNotReady indicates that an operation requires the device to be in the
	// ready state with a live queue and executor.
	ErrNotReady = errors.New("device: device is not ready")

	// ErrQueueClosed indicates that the command queue has been torn down.
	ErrQueueClosed = errors.New("device: command queue closed")
)
