// Package device implements the per-device command pipeline of fabdrive.
//
// A Device owns a lifecycle state machine, a checksum failure window, and, while
// it is ready, exactly one CommandQueue/Executor pair. The CommandQueue enforces a
// single in-flight command per device: it dispatches the head command to the
// Executor, classifies the raw reply through a per-connection-type Validator, and
// either advances, resends from the queue head, or keeps waiting.
//
// The Controller is the composition root. It owns the device registry, merges
// preset templates with caller overrides into device settings, selects the
// transport at discovery time, routes named commands through a capability table,
// and publishes a device snapshot to the notification boundary on every lifecycle
// transition and accepted settings update.
//
// # Lifecycle
//
// Devices move through uninitialized → discovering → ready, with discovery
// failures landing in failed. The transition table is explicit and fails closed:
// an event that is not legal from the current state returns ErrInvalidTransition.
// The queue and executor exist if and only if the device is ready; they are
// created on the discovering→ready transition and discarded wholesale on any
// transition out of ready.
package device
