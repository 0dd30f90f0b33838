package worker

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-gpib/gpib"
	"github.com/arloliu/go-gpib/logger"
)

const (
	// DefaultWorkingTimeout is the device timeout held for the whole of a command.
	DefaultWorkingTimeout = gpib.T30s

	// HousekeepingTimeout is the device timeout used while cleaning up after a command.
	HousekeepingTimeout = gpib.T1s

	// DefaultAck is written after a successful command: menu off and a beep.
	DefaultAck = "MENUOFF;EMIB;"

	// DefaultAckTimeout bounds the write of the acknowledgment.
	DefaultAckTimeout = 5 * time.Second

	// DefaultExpectedModel must appear in the model field of the device identity.
	DefaultExpectedModel = "8753"

	// PrecautionaryClearAge is how long the device must have been in local control
	// before a precautionary clear is sent.
	PrecautionaryClearAge = 2 * time.Second
)

type config struct {
	workingTimeout     gpib.TimeoutSetting
	identifier         Identifier
	expectedModel      string
	precautionaryClear bool
	ack                string
	ackTimeout         time.Duration
	sink               Sink
	logger             logger.Logger
}

func defaultConfig() *config {
	return &config{
		workingTimeout: DefaultWorkingTimeout,
		identifier:     QueryIdentity(DefaultIdentityQuery, DefaultIdentifyTimeout),
		expectedModel:  DefaultExpectedModel,
		ack:            DefaultAck,
		ackTimeout:     DefaultAckTimeout,
		sink:           nopSink{},
		logger:         logger.GetLogger(),
	}
}

// DispatcherOption is a functional option for configuring a Dispatcher.
type DispatcherOption interface {
	apply(*config) error
}

type optFunc struct {
	name      string
	applyFunc func(*config) error
}

func (o *optFunc) apply(cfg *config) error {
	if err := o.applyFunc(cfg); err != nil {
		return fmt.Errorf("worker: %s: %w", o.name, err)
	}

	return nil
}

func newOptFunc(name string, f func(*config) error) *optFunc {
	return &optFunc{name: name, applyFunc: f}
}

// WithWorkingTimeout sets the device timeout held while a command runs.
// Defaults to DefaultWorkingTimeout.
func WithWorkingTimeout(t gpib.TimeoutSetting) DispatcherOption {
	return newOptFunc("WithWorkingTimeout", func(cfg *config) error {
		if !t.Valid() {
			return fmt.Errorf("%w: invalid timeout %v", gpib.ErrConfig, t)
		}
		cfg.workingTimeout = t

		return nil
	})
}

// WithIdentifier sets how the device identity is obtained on the first command.
// A nil identifier disables identification.
func WithIdentifier(fn Identifier) DispatcherOption {
	return newOptFunc("WithIdentifier", func(cfg *config) error {
		cfg.identifier = fn
		return nil
	})
}

// WithExpectedModel sets the text the identity model must contain.
// An empty model accepts any device.
func WithExpectedModel(model string) DispatcherOption {
	return newOptFunc("WithExpectedModel", func(cfg *config) error {
		cfg.expectedModel = model
		return nil
	})
}

// WithPrecautionaryClear sends a device clear before a command when the device
// has been in local control for more than PrecautionaryClearAge.
func WithPrecautionaryClear(enabled bool) DispatcherOption {
	return newOptFunc("WithPrecautionaryClear", func(cfg *config) error {
		cfg.precautionaryClear = enabled
		return nil
	})
}

// WithAck sets the default acknowledgment written after a successful command.
// An empty command disables it.
func WithAck(cmd string, timeout time.Duration) DispatcherOption {
	return newOptFunc("WithAck", func(cfg *config) error {
		if timeout <= 0 && cmd != "" {
			return errors.New("ack timeout must be positive")
		}
		cfg.ack = cmd
		cfg.ackTimeout = timeout

		return nil
	})
}

// WithSink sets the receiver of notifications and completion events.
func WithSink(s Sink) DispatcherOption {
	return newOptFunc("WithSink", func(cfg *config) error {
		if s == nil {
			return errors.New("sink must not be nil")
		}
		cfg.sink = s

		return nil
	})
}

// WithLogger sets the logger of the dispatcher.
func WithLogger(l logger.Logger) DispatcherOption {
	return newOptFunc("WithLogger", func(cfg *config) error {
		if l == nil {
			return errors.New("logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
