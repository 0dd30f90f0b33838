package gpib

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-gpib/logger"
)

const (
	// DefaultDeviceName is the symbolic device name resolved when explicit
	// addressing is not used.
	DefaultDeviceName = "hp8753"

	// DefaultOpenTimeout is the device timeout set when a descriptor is opened by address.
	DefaultOpenTimeout = T3s

	// DefaultLocalSettleDelay is the pause after returning the device to local control.
	DefaultLocalSettleDelay = 50 * time.Millisecond

	// DefaultClearSettleDelay is the pause after a device clear.
	DefaultClearSettleDelay = 250 * time.Millisecond
)

// Addressing is the flat form of the device addressing settings, as it is read
// from configuration files or the environment.
type Addressing struct {
	// UseExplicitAddressing selects ControllerIndex/PrimaryAddress instead of DeviceName.
	UseExplicitAddressing bool
	ControllerIndex       int
	PrimaryAddress        int
	DeviceName            string
}

// DeviceConfig describes how to locate and handle the instrument.
type DeviceConfig struct {
	useExplicitAddressing bool
	controllerIndex       int
	primaryAddress        int
	secondaryAddress      int
	deviceName            string

	openTimeout      TimeoutSetting
	localSettleDelay time.Duration
	clearSettleDelay time.Duration

	logger logger.Logger
}

// NewDeviceConfig creates a device configuration. Without options the device is
// resolved by DefaultDeviceName.
func NewDeviceConfig(opts ...DeviceOption) (*DeviceConfig, error) {
	cfg := &DeviceConfig{
		deviceName:       DefaultDeviceName,
		secondaryAddress: NoSecondaryAddress,
		openTimeout:      DefaultOpenTimeout,
		localSettleDelay: DefaultLocalSettleDelay,
		clearSettleDelay: DefaultClearSettleDelay,
		logger:           logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the addressing parameters. Errors wrap ErrConfig.
func (cfg *DeviceConfig) Validate() error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfig)
	}
	if cfg.useExplicitAddressing {
		if cfg.controllerIndex < 0 || cfg.controllerIndex > MaxBoardIndex {
			return fmt.Errorf("%w: controller index %d out of range [0, %d]", ErrConfig, cfg.controllerIndex, MaxBoardIndex)
		}
		if cfg.primaryAddress < 0 || cfg.primaryAddress > MaxPrimaryAddress {
			return fmt.Errorf("%w: primary address %d out of range [0, %d]", ErrConfig, cfg.primaryAddress, MaxPrimaryAddress)
		}

		return nil
	}
	if cfg.deviceName == "" {
		return fmt.Errorf("%w: device name is empty", ErrConfig)
	}

	return nil
}

// --- Getters ---

// UseExplicitAddressing reports whether the device is opened by board index and address.
func (cfg *DeviceConfig) UseExplicitAddressing() bool { return cfg.useExplicitAddressing }

// ControllerIndex returns the board index used with explicit addressing.
func (cfg *DeviceConfig) ControllerIndex() int { return cfg.controllerIndex }

// PrimaryAddress returns the device primary address used with explicit addressing.
func (cfg *DeviceConfig) PrimaryAddress() int { return cfg.primaryAddress }

// SecondaryAddress returns the device secondary address, NoSecondaryAddress if unused.
func (cfg *DeviceConfig) SecondaryAddress() int { return cfg.secondaryAddress }

// DeviceName returns the symbolic device name.
func (cfg *DeviceConfig) DeviceName() string { return cfg.deviceName }

// OpenTimeout returns the timeout given to a device opened by address.
func (cfg *DeviceConfig) OpenTimeout() TimeoutSetting { return cfg.openTimeout }

// LocalSettleDelay returns the pause after go-to-local.
func (cfg *DeviceConfig) LocalSettleDelay() time.Duration { return cfg.localSettleDelay }

// ClearSettleDelay returns the pause after a device clear.
func (cfg *DeviceConfig) ClearSettleDelay() time.Duration { return cfg.clearSettleDelay }

// GetLogger returns the configured logger.
func (cfg *DeviceConfig) GetLogger() logger.Logger { return cfg.logger }

// Addressing returns the flat addressing settings.
func (cfg *DeviceConfig) Addressing() Addressing {
	return Addressing{
		UseExplicitAddressing: cfg.useExplicitAddressing,
		ControllerIndex:       cfg.controllerIndex,
		PrimaryAddress:        cfg.primaryAddress,
		DeviceName:            cfg.deviceName,
	}
}

// --- DeviceOption ---

// DeviceOption is a functional option for configuring a DeviceConfig.
type DeviceOption interface {
	apply(*DeviceConfig) error
}

type deviceOptFunc func(*DeviceConfig) error

func (f deviceOptFunc) apply(cfg *DeviceConfig) error { return f(cfg) }

// WithExplicitAddress opens the device by controller (board) index and primary address.
func WithExplicitAddress(controllerIndex, primaryAddress int) DeviceOption {
	return deviceOptFunc(func(cfg *DeviceConfig) error {
		cfg.useExplicitAddressing = true
		cfg.controllerIndex = controllerIndex
		cfg.primaryAddress = primaryAddress

		return nil
	})
}

// WithSecondaryAddress sets the device secondary address, in [0x60, 0x7e] or NoSecondaryAddress.
func WithSecondaryAddress(sad int) DeviceOption {
	return deviceOptFunc(func(cfg *DeviceConfig) error {
		if sad != NoSecondaryAddress && (sad < MinSecondaryAddress || sad > MaxSecondaryAddress) {
			return fmt.Errorf("%w: secondary address %#x out of range [%#x, %#x]",
				ErrConfig, sad, MinSecondaryAddress, MaxSecondaryAddress)
		}
		cfg.secondaryAddress = sad

		return nil
	})
}

// WithDeviceName resolves the device by its symbolic name. This is the default mode.
func WithDeviceName(name string) DeviceOption {
	return deviceOptFunc(func(cfg *DeviceConfig) error {
		if name == "" {
			return fmt.Errorf("%w: device name is empty", ErrConfig)
		}
		cfg.useExplicitAddressing = false
		cfg.deviceName = name

		return nil
	})
}

// WithAddressing applies flat addressing settings. The device name is kept when
// a.DeviceName is empty.
func WithAddressing(a Addressing) DeviceOption {
	return deviceOptFunc(func(cfg *DeviceConfig) error {
		cfg.useExplicitAddressing = a.UseExplicitAddressing
		cfg.controllerIndex = a.ControllerIndex
		cfg.primaryAddress = a.PrimaryAddress
		if a.DeviceName != "" {
			cfg.deviceName = a.DeviceName
		}

		return nil
	})
}

// WithOpenTimeout sets the timeout of a device opened by address.
func WithOpenTimeout(t TimeoutSetting) DeviceOption {
	return deviceOptFunc(func(cfg *DeviceConfig) error {
		if !t.Valid() {
			return fmt.Errorf("%w: invalid open timeout %v", ErrConfig, t)
		}
		cfg.openTimeout = t

		return nil
	})
}

// WithLocalSettleDelay sets the pause after go-to-local.
func WithLocalSettleDelay(d time.Duration) DeviceOption {
	return deviceOptFunc(func(cfg *DeviceConfig) error {
		if d < 0 {
			return errors.New("gpib: local settle delay must not be negative")
		}
		cfg.localSettleDelay = d

		return nil
	})
}

// WithClearSettleDelay sets the pause after a device clear.
func WithClearSettleDelay(d time.Duration) DeviceOption {
	return deviceOptFunc(func(cfg *DeviceConfig) error {
		if d < 0 {
			return errors.New("gpib: clear settle delay must not be negative")
		}
		cfg.clearSettleDelay = d

		return nil
	})
}

// WithLogger sets the logger of the session.
func WithLogger(l logger.Logger) DeviceOption {
	return deviceOptFunc(func(cfg *DeviceConfig) error {
		if l == nil {
			return errors.New("gpib: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
