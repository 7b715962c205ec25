package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/openfab/fabdrive/gcode"
	"github.com/openfab/fabdrive/logger"
	"github.com/openfab/fabdrive/notify"
	"github.com/openfab/fabdrive/store"
)

// CommandHandler executes one named command against a device.
type CommandHandler func(ctx context.Context, dev *Device, params map[string]any) error

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(l logger.Logger) ControllerOption {
	return func(c *Controller) { c.logger = l }
}

// WithNotifier sets the notification collaborator.
func WithNotifier(n notify.Notifier) ControllerOption {
	return func(c *Controller) { c.notifier = n }
}

// WithStore sets the settings persistence collaborator.
func WithStore(s store.Store) ControllerOption {
	return func(c *Controller) { c.store = s }
}

// WithMetrics sets the pipeline metrics.
func WithMetrics(m *Metrics) ControllerOption {
	return func(c *Controller) { c.metrics = m }
}

// WithPreset registers a device preset template.
func WithPreset(name string, p Preset) ControllerOption {
	return func(c *Controller) { c.presets[name] = p }
}

// WithPresets registers several device preset templates.
func WithPresets(presets map[string]Preset) ControllerOption {
	return func(c *Controller) {
		for name, p := range presets {
			c.presets[name] = p
		}
	}
}

// Controller is the composition root of the command pipeline.
//
// It owns the device registry, builds devices from preset templates, drives
// discovery (transport selection, validator selection, queue construction),
// routes named commands through the capability table, and applies settings
// updates with persistence and notification.
type Controller struct {
	devices  *xsync.MapOf[string, *Device]
	presets  map[string]Preset
	factory  ExecutorFactory
	notifier notify.Notifier
	store    store.Store
	logger   logger.Logger
	metrics  *Metrics

	cmdMu    sync.RWMutex
	commands map[string]CommandHandler
}

// NewController creates a Controller using the given executor factory.
func NewController(factory ExecutorFactory, opts ...ControllerOption) *Controller {
	c := &Controller{
		devices:  xsync.NewMapOf[string, *Device](),
		presets:  make(map[string]Preset),
		factory:  factory,
		notifier: notify.Nop{},
		logger:   logger.GetLogger(),
		commands: make(map[string]CommandHandler),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.registerBuiltinCommands()

	return c
}

// CreateDevice builds and registers a device from a preset template, merging
// caller overrides into the preset's settings. Overrides win; unknown override
// keys are dropped, never rejected.
func (c *Controller) CreateDevice(preset string, overrides map[string]any) (*Device, error) {
	tpl, ok := c.presets[preset]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPreset, preset)
	}

	settings, err := MergeSettings(tpl.Settings, overrides)
	if err != nil {
		return nil, err
	}

	dev := NewDevice("", tpl.Info, settings, c.logger)
	if _, loaded := c.devices.LoadOrStore(dev.ID(), dev); loaded {
		return nil, fmt.Errorf("%w: %s", ErrDeviceExists, dev.ID())
	}

	// Every state entry broadcasts the device's public snapshot.
	dev.machine.AddHandler(func(prev State, next State) {
		c.publish(dev)
	})

	c.logger.Info("device created", "device", dev.ID(), "preset", preset, "connType", tpl.Info.ConnType)

	return dev, nil
}

// Device returns a registered device by id.
func (c *Controller) Device(id string) (*Device, error) {
	dev, ok := c.devices.Load(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}

	return dev, nil
}

// Devices returns all registered devices.
func (c *Controller) Devices() []*Device {
	devs := make([]*Device, 0, c.devices.Size())
	c.devices.Range(func(_ string, dev *Device) bool {
		devs = append(devs, dev)

		return true
	})

	return devs
}

// Discover runs the device's discovery sequence: enter discovering, build the
// executor for the device's connection type, wire the validator and queue, and
// enter ready. Any failure enters failed.
//
// The executor selection happens exactly once per discovery; an unrecognized
// connection type fails discovery fatally with ErrUnsupportedConnectionType.
func (c *Controller) Discover(ctx context.Context, id string) error {
	dev, err := c.Device(id)
	if err != nil {
		return err
	}

	if err := dev.machine.Fire(EventDiscover); err != nil {
		c.metrics.incInvalidTransitions()

		return err
	}

	exec, err := c.factory(ctx, dev.ExecutorSpec())
	if err != nil {
		c.failDiscovery(dev)

		return fmt.Errorf("device: discovery of %s: %w", dev.ID(), err)
	}

	transform := func(cmd gcode.Command) gcode.Command {
		return gcode.ApplyOffset(cmd, dev.Settings().Offset())
	}

	q := NewCommandQueue(ctx, exec, transform, dev.logger, c.metrics)
	q.SetValidator(newValidator(dev.info.ConnType, dev.info.Checksum, dev.window, q, dev.logger, c.metrics))

	exec.SetCloseHandler(func() {
		dev.logger.Warn("transport closed")
	})
	exec.SetErrorHandler(func(err error) {
		dev.logger.Error("transport error", "error", err)
	})

	dev.attach(q, exec)

	if err := dev.machine.Fire(EventInitializationDone); err != nil {
		// Cannot happen while discovery owns the machine, but fail closed.
		dev.detach()
		c.failDiscovery(dev)

		return err
	}

	c.logger.Info("device ready", "device", dev.ID(), "connType", dev.info.ConnType)

	return nil
}

// failDiscovery drives a device to StateFailed, tolerating races with teardown.
func (c *Controller) failDiscovery(dev *Device) {
	if err := dev.machine.Fire(EventInitializationFail); err != nil {
		c.metrics.incInvalidTransitions()
		dev.logger.Error("discovery failure could not enter failed state", "error", err)
	}
}

// Reset discards the device's queue and executor wholesale and returns it to
// the uninitialized state, ready for re-discovery. In-flight commands are
// abandoned; already-scheduled decay and backoff timers fire harmlessly.
//
// The checksum window keeps its counts: its sticky runaway flag clears only via
// the explicit resetRunaway command.
func (c *Controller) Reset(id string) error {
	dev, err := c.Device(id)
	if err != nil {
		return err
	}

	dev.detach()
	dev.machine.Reset()

	c.logger.Info("device reset", "device", dev.ID())

	return nil
}

// RegisterCommand adds a named command to the capability table.
// One handler per name; the last registration wins.
func (c *Controller) RegisterCommand(name string, handler CommandHandler) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()
	c.commands[name] = handler
}

// ProcessCommand looks up a named command handler from the capability table and
// invokes it against the device.
//
// The call returns once the command enters the pipeline; completion is observed
// through the notification boundary, not the return value. A missing handler
// fails with ErrUnsupportedCommand; handler failures are wrapped.
func (c *Controller) ProcessCommand(ctx context.Context, id string, name string, params map[string]any) error {
	dev, err := c.Device(id)
	if err != nil {
		return err
	}

	c.cmdMu.RLock()
	handler, ok := c.commands[name]
	c.cmdMu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedCommand, name)
	}

	if err := handler(ctx, dev, params); err != nil {
		return fmt.Errorf("device: execute command %q: %w", name, err)
	}

	return nil
}

// UpdateSettings applies an arbitrary key/value bundle to the device's
// settings. Only keys that already exist on the settings are applied; unknown
// keys are silently ignored. The update is persisted through the store when one
// is configured (a device absent from the store is not an error) and the
// accepted update publishes a fresh snapshot.
func (c *Controller) UpdateSettings(ctx context.Context, id string, updates map[string]any) (Settings, error) {
	dev, err := c.Device(id)
	if err != nil {
		return Settings{}, err
	}

	merged, err := MergeSettings(dev.Settings(), updates)
	if err != nil {
		return Settings{}, err
	}

	dev.setSettings(merged)

	if err := c.persistSettings(ctx, dev.ID(), merged); err != nil {
		return Settings{}, err
	}

	c.publish(dev)

	return merged, nil
}

// PersistedSettings reads a device's persisted settings fields back from the
// store, deserializing the custom field to its object form.
func (c *Controller) PersistedSettings(ctx context.Context, id string) (map[string]any, error) {
	if c.store == nil {
		return nil, store.ErrNotFound
	}

	fields, err := c.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if raw, ok := fields["custom"].(string); ok && raw != "" {
		var custom map[string]any
		if err := json.Unmarshal([]byte(raw), &custom); err == nil {
			fields["custom"] = custom
		}
	}

	return fields, nil
}

// persistSettings writes settings through the store collaborator. The custom
// field, when present, is serialized to its string form for persistence.
func (c *Controller) persistSettings(ctx context.Context, id string, s Settings) error {
	if c.store == nil {
		return nil
	}

	fields := map[string]any{
		"name":    s.Name,
		"offsetX": s.OffsetX,
		"offsetY": s.OffsetY,
		"offsetZ": s.OffsetZ,
		"prime":   s.Prime,
	}

	if s.Custom != nil {
		raw, err := json.Marshal(s.Custom)
		if err != nil {
			return fmt.Errorf("device: serialize custom settings: %w", err)
		}
		fields["custom"] = string(raw)
	}

	err := c.store.Update(ctx, id, fields)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.logger.Debug("device not in store, settings applied in memory only", "device", id)

			return nil
		}

		return fmt.Errorf("device: persist settings: %w", err)
	}

	return nil
}

// publish broadcasts the device's public snapshot. Fire-and-forget.
func (c *Controller) publish(dev *Device) {
	c.notifier.Publish(notify.Event{
		ID:    dev.ID(),
		Event: notify.EventUpdate,
		Data:  dev.Snapshot(),
	})
}
