package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/openfab/fabdrive/device"
	"github.com/openfab/fabdrive/logger"
	"github.com/openfab/fabdrive/notify"
)

// Package-level transport errors.
var (
	// ErrClosed indicates that the executor was closed.
	ErrClosed = errors.New("transport: executor closed")

	// ErrNoDownstream indicates that a remote executor was requested without a
	// downstream factory configured.
	ErrNoDownstream = errors.New("transport: remote executor requires a downstream factory")

	// ErrConfigNil indicates that an option was applied to a nil configuration.
	ErrConfigNil = errors.New("transport: config is nil")
)

const (
	// DefaultBackoff is the fixed delay between telnet send retries.
	DefaultBackoff = 1000 * time.Millisecond

	// DefaultRetryLimit is the maximum number of telnet send retries.
	DefaultRetryLimit = 30
)

// PortOpener opens the character device of a serial executor.
type PortOpener func(spec device.ExecutorSpec) (io.ReadWriteCloser, error)

// ClientDialer builds the request/response client of a telnet executor.
type ClientDialer func(spec device.ExecutorSpec) (Client, error)

// Config holds the configuration shared by all executor variants.
type Config struct {
	logger   logger.Logger
	notifier notify.Notifier

	openPort   PortOpener
	dialClient ClientDialer
	emulator   func() Emulator
	downstream device.ExecutorFactory

	backoff    time.Duration
	retryLimit int
}

// NewConfig creates a transport configuration with defaults applied, then
// customized by the given options.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		logger:     logger.GetLogger(),
		notifier:   notify.Nop{},
		openPort:   defaultPortOpener,
		dialClient: defaultClientDialer,
		emulator:   func() Emulator { return &LoopbackEmulator{} },
		backoff:    DefaultBackoff,
		retryLimit: DefaultRetryLimit,
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// NewFactory builds the executor factory dispatching on the connection type of
// each spec. An unrecognized connection type fails with
// device.ErrUnsupportedConnectionType.
func NewFactory(opts ...Option) (device.ExecutorFactory, error) {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, spec device.ExecutorSpec) (device.Executor, error) {
		switch spec.ConnType {
		case device.ConnSerial:
			return newSerial(ctx, spec, cfg)
		case device.ConnTelnet:
			return newTelnet(ctx, spec, cfg)
		case device.ConnVirtual:
			return newVirtual(ctx, spec, cfg)
		case device.ConnRemote:
			return newRemote(ctx, spec, cfg)
		default:
			return nil, fmt.Errorf("%w: %q", device.ErrUnsupportedConnectionType, spec.ConnType)
		}
	}, nil
}

// defaultPortOpener opens the port path as a plain character device. Line speed
// setup is the host's job; byte-level serial parameters are out of scope.
func defaultPortOpener(spec device.ExecutorSpec) (io.ReadWriteCloser, error) {
	f, err := os.OpenFile(spec.Port, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("transport: open serial port %s: %w", spec.Port, err)
	}

	return f, nil
}

// defaultClientDialer builds a lazily-dialing TCP line client for the spec's
// host:port endpoint.
func defaultClientDialer(spec device.ExecutorSpec) (Client, error) {
	return newTCPClient(spec.Port), nil
}

// Option represents a functional option for configuring transports.
type Option interface {
	apply(*Config) error
}

type optFunc struct {
	name      string
	applyFunc func(*Config) error
}

func (o *optFunc) apply(cfg *Config) error { return o.applyFunc(cfg) }

func newOptFunc(name string, f func(*Config) error) *optFunc {
	return &optFunc{name: name, applyFunc: f}
}

// WithLogger sets the logger used by all executors built from this
// configuration.
func WithLogger(l logger.Logger) Option {
	return newOptFunc("WithLogger", func(cfg *Config) error {
		if cfg == nil {
			return ErrConfigNil
		}
		if l == nil {
			return errors.New("transport: logger is nil")
		}

		cfg.logger = l

		return nil
	})
}

// WithNotifier sets the notifier that receives transport trace events.
func WithNotifier(n notify.Notifier) Option {
	return newOptFunc("WithNotifier", func(cfg *Config) error {
		if cfg == nil {
			return ErrConfigNil
		}
		if n == nil {
			return errors.New("transport: notifier is nil")
		}

		cfg.notifier = n

		return nil
	})
}

// WithPortOpener sets the opener used by serial executors.
//
// The default opener treats the port as a plain character device file.
func WithPortOpener(open PortOpener) Option {
	return newOptFunc("WithPortOpener", func(cfg *Config) error {
		if cfg == nil {
			return ErrConfigNil
		}
		if open == nil {
			return errors.New("transport: port opener is nil")
		}

		cfg.openPort = open

		return nil
	})
}

// WithClientDialer sets the dialer used by telnet executors.
//
// The default dialer builds a lazily-connecting TCP line client.
func WithClientDialer(dial ClientDialer) Option {
	return newOptFunc("WithClientDialer", func(cfg *Config) error {
		if cfg == nil {
			return ErrConfigNil
		}
		if dial == nil {
			return errors.New("transport: client dialer is nil")
		}

		cfg.dialClient = dial

		return nil
	})
}

// WithEmulator sets the emulator constructor used by virtual executors.
// Each virtual executor gets its own Emulator instance.
//
// The default constructor builds a LoopbackEmulator.
func WithEmulator(build func() Emulator) Option {
	return newOptFunc("WithEmulator", func(cfg *Config) error {
		if cfg == nil {
			return ErrConfigNil
		}
		if build == nil {
			return errors.New("transport: emulator constructor is nil")
		}

		cfg.emulator = build

		return nil
	})
}

// WithDownstream sets the factory that remote executors delegate to.
func WithDownstream(factory device.ExecutorFactory) Option {
	return newOptFunc("WithDownstream", func(cfg *Config) error {
		if cfg == nil {
			return ErrConfigNil
		}
		if factory == nil {
			return errors.New("transport: downstream factory is nil")
		}

		cfg.downstream = factory

		return nil
	})
}

// WithBackoff sets the fixed delay between telnet send retries.
//
// Defaults to 1 second.
func WithBackoff(d time.Duration) Option {
	return newOptFunc("WithBackoff", func(cfg *Config) error {
		if cfg == nil {
			return ErrConfigNil
		}
		if d <= 0 {
			return errors.New("transport: backoff must be positive")
		}

		cfg.backoff = d

		return nil
	})
}

// WithRetryLimit sets the maximum number of telnet send retries. Zero disables
// retrying.
//
// Defaults to 30.
func WithRetryLimit(limit int) Option {
	return newOptFunc("WithRetryLimit", func(cfg *Config) error {
		if cfg == nil {
			return ErrConfigNil
		}
		if limit < 0 {
			return errors.New("transport: retry limit must not be negative")
		}

		cfg.retryLimit = limit

		return nil
	})
}
