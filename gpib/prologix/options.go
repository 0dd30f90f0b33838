package prologix

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-gpib/gpib"
	"github.com/arloliu/go-gpib/logger"
)

const (
	// DefaultBaudRate is ignored by the USB controller but required by the serial layer.
	DefaultBaudRate = 115200

	// DefaultReadPoll is the serial read timeout; it bounds how late a stop is noticed.
	DefaultReadPoll = 10 * time.Millisecond

	// DefaultIdleGap ends a read when no byte arrived for this long after data.
	DefaultIdleGap = 50 * time.Millisecond

	// DefaultDeviceTimeout is the timeout of a device opened by name.
	DefaultDeviceTimeout = gpib.T3s

	writeChunk = 64
)

type config struct {
	baudRate int
	readPoll time.Duration
	idleGap  time.Duration
	aliases  map[string]address
	logger   logger.Logger
}

type address struct {
	pad int
	sad int
}

func defaultConfig() *config {
	return &config{
		baudRate: DefaultBaudRate,
		readPoll: DefaultReadPoll,
		idleGap:  DefaultIdleGap,
		aliases:  make(map[string]address),
		logger:   logger.GetLogger(),
	}
}

// Option is a functional option for configuring a Bus.
type Option interface {
	apply(*config) error
}

type optFunc func(*config) error

func (f optFunc) apply(cfg *config) error { return f(cfg) }

// WithDeviceAlias makes Find(name) open the device at primary address pad.
func WithDeviceAlias(name string, pad int) Option {
	return WithDeviceAliasSAD(name, pad, gpib.NoSecondaryAddress)
}

// WithDeviceAliasSAD is WithDeviceAlias with a secondary address.
func WithDeviceAliasSAD(name string, pad, sad int) Option {
	return optFunc(func(cfg *config) error {
		if name == "" {
			return errors.New("prologix: alias name is empty")
		}
		if pad < 0 || pad > gpib.MaxPrimaryAddress {
			return fmt.Errorf("%w: primary address %d out of range", gpib.ErrConfig, pad)
		}
		if sad != gpib.NoSecondaryAddress && (sad < gpib.MinSecondaryAddress || sad > gpib.MaxSecondaryAddress) {
			return fmt.Errorf("%w: secondary address %#x out of range", gpib.ErrConfig, sad)
		}
		cfg.aliases[name] = address{pad: pad, sad: sad}

		return nil
	})
}

// WithBaudRate sets the serial baud rate.
func WithBaudRate(baud int) Option {
	return optFunc(func(cfg *config) error {
		if baud <= 0 {
			return errors.New("prologix: baud rate must be positive")
		}
		cfg.baudRate = baud

		return nil
	})
}

// WithReadPoll sets the serial read timeout.
func WithReadPoll(d time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if d <= 0 {
			return errors.New("prologix: read poll must be positive")
		}
		cfg.readPoll = d

		return nil
	})
}

// WithIdleGap sets how long the line must stay quiet after data to end a read.
func WithIdleGap(d time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if d <= 0 {
			return errors.New("prologix: idle gap must be positive")
		}
		cfg.idleGap = d

		return nil
	})
}

// WithLogger sets the logger of the bus.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *config) error {
		if l == nil {
			return errors.New("prologix: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
