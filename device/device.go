package device

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"

	"github.com/openfab/fabdrive/gcode"
	"github.com/openfab/fabdrive/logger"
)

// Info is the static capability description of a device. It never changes after
// creation.
type Info struct {
	// ConnType selects the executor variant at discovery time.
	ConnType string `json:"connType" yaml:"connType" mapstructure:"connType"`
	// Port is the endpoint or port identifier.
	Port string `json:"port" yaml:"port" mapstructure:"port"`
	// Baud is the line speed or protocol parameter.
	Baud int `json:"baud" yaml:"baud" mapstructure:"baud"`
	// Checksum declares whether the device firmware supports checksum resends.
	Checksum bool `json:"checksum" yaml:"checksum" mapstructure:"checksum"`
}

// Settings are the mutable per-device settings.
type Settings struct {
	Name    string         `json:"name" yaml:"name" mapstructure:"name"`
	OffsetX float64        `json:"offsetX" yaml:"offsetX" mapstructure:"offsetX"`
	OffsetY float64        `json:"offsetY" yaml:"offsetY" mapstructure:"offsetY"`
	OffsetZ float64        `json:"offsetZ" yaml:"offsetZ" mapstructure:"offsetZ"`
	Prime   string         `json:"prime" yaml:"prime" mapstructure:"prime"`
	Custom  map[string]any `json:"custom,omitempty" yaml:"custom" mapstructure:"custom"`
}

// Offset returns the spatial offset configured by the settings.
func (s Settings) Offset() gcode.Offset {
	return gcode.Offset{X: s.OffsetX, Y: s.OffsetY, Z: s.OffsetZ}
}

// MergeSettings applies an arbitrary key/value bundle onto base settings.
//
// Only keys that exist on Settings are applied; unknown keys are silently
// dropped, never rejected. Values are weakly typed, so numeric strings coerce.
func MergeSettings(base Settings, overrides map[string]any) (Settings, error) {
	merged := base

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &merged,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return base, fmt.Errorf("device: build settings decoder: %w", err)
	}

	if err := dec.Decode(overrides); err != nil {
		return base, fmt.Errorf("device: merge settings: %w", err)
	}

	return merged, nil
}

// Preset is a device template: static info plus default settings.
type Preset struct {
	Info     Info
	Settings Settings
}

// Snapshot is the externally-broadcast, caller-facing view of a device.
type Snapshot struct {
	ID       string   `json:"id"`
	State    string   `json:"state"`
	Settings Settings `json:"settings"`
	Info     Info     `json:"info"`
	Job      string   `json:"job,omitempty"`
}

// Device is one fabrication device: identity, static info, mutable settings,
// a lifecycle state machine, a checksum failure window, and, while ready,
// exactly one live CommandQueue/Executor pair.
type Device struct {
	id      string
	info    Info
	machine *Machine
	window  *ChecksumWindow
	logger  logger.Logger

	mu       sync.RWMutex
	settings Settings
	job      string
	queue    *CommandQueue
	exec     Executor
}

// NewDevice creates a Device in StateUninitialized.
// An empty id generates a fresh UUID.
func NewDevice(id string, info Info, settings Settings, l logger.Logger) *Device {
	if id == "" {
		id = uuid.NewString()
	}
	if l == nil {
		l = logger.GetLogger()
	}
	l = l.With("device", id)

	return &Device{
		id:       id,
		info:     info,
		settings: settings,
		machine:  NewMachine(l),
		window:   NewChecksumWindow(l, 0, 0),
		logger:   l,
	}
}

// ID returns the device's stable unique id.
func (d *Device) ID() string { return d.id }

// Info returns the device's static capability info.
func (d *Device) Info() Info { return d.info }

// State returns the current lifecycle state.
func (d *Device) State() State { return d.machine.State() }

// Machine returns the device's lifecycle state machine.
func (d *Device) Machine() *Machine { return d.machine }

// Window returns the device's checksum failure window. The window lives as
// long as the device, across queue/executor rebuilds.
func (d *Device) Window() *ChecksumWindow { return d.window }

// Settings returns a copy of the current settings.
func (d *Device) Settings() Settings {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.settings
}

func (d *Device) setSettings(s Settings) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.settings = s
}

// Job returns the current job reference, empty for none.
func (d *Device) Job() string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.job
}

// SetJob sets the current job reference.
func (d *Device) SetJob(job string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.job = job
}

// Queue returns the live command queue, or nil when the device is not ready.
func (d *Device) Queue() *CommandQueue {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.queue
}

// Enqueue submits a command to the device's queue.
// Returns ErrNotReady when the device has no live queue.
func (d *Device) Enqueue(cmd gcode.Command) error {
	d.mu.RLock()
	q := d.queue
	d.mu.RUnlock()

	if q == nil {
		return ErrNotReady
	}

	return q.Enqueue(cmd)
}

// ExecutorSpec builds the transport-facing spec from the device's identity,
// static info and current settings.
func (d *Device) ExecutorSpec() ExecutorSpec {
	s := d.Settings()

	return ExecutorSpec{
		DeviceID: d.id,
		ConnType: d.info.ConnType,
		Port:     d.info.Port,
		Baud:     d.info.Baud,
		Prime:    s.Prime,
	}
}

// Snapshot returns the public view of the device.
func (d *Device) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return Snapshot{
		ID:       d.id,
		State:    d.machine.State().String(),
		Settings: d.settings,
		Info:     d.info,
		Job:      d.job,
	}
}

// attach installs the queue/executor pair created during discovery.
// A device has at most one live pair at a time; the caller must detach the
// previous pair first.
func (d *Device) attach(q *CommandQueue, exec Executor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = q
	d.exec = exec
}

// detach tears down and discards the live queue/executor pair, abandoning any
// in-flight command. Safe to call when no pair is attached.
func (d *Device) detach() {
	d.mu.Lock()
	q, exec := d.queue, d.exec
	d.queue, d.exec = nil, nil
	d.mu.Unlock()

	if q != nil {
		q.Close()
	}
	if exec != nil {
		if err := exec.Close(); err != nil {
			d.logger.Warn("executor close failed", "error", err)
		}
	}
}
