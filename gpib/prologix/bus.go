package prologix

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-gpib/gpib"
	"github.com/arloliu/go-gpib/internal/task"
	"github.com/arloliu/go-gpib/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"go.bug.st/serial"
)

// Port is the serial line to the controller. serial.Port satisfies it.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

var _ Port = (serial.Port)(nil)

// ErrClosed is returned by Find and Dev after Close.
var ErrClosed = errors.New("prologix: bus closed")

type device struct {
	name string
	addr address

	mu      sync.Mutex
	timeout gpib.TimeoutSetting
	eot     bool
	xfer    *transfer
}

func (dev *device) getTimeout() gpib.TimeoutSetting {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	return dev.timeout
}

func (dev *device) pending() *transfer {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	return dev.xfer
}

// Bus is a gpib.Bus over a Prologix GPIB-USB controller. It drives board 0 only.
type Bus struct {
	cfg    *config
	port   Port
	logger logger.Logger

	// line serializes every exchange on the serial port
	line      sync.Mutex
	addressed address
	eoi       bool

	devices      *xsync.MapOf[gpib.Handle, *device]
	nextHandle   atomic.Int32
	boardTimeout atomic.Int32

	taskMgr *task.Manager
	closed  atomic.Bool
}

var _ gpib.Bus = (*Bus)(nil)

// Open opens the serial port portName and initializes the controller on it.
func Open(portName string, opts ...Option) (*Bus, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: cfg.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("prologix: open %s: %w", portName, err)
	}

	b, err := newBus(port, cfg)
	if err != nil {
		_ = port.Close()
		return nil, err
	}

	return b, nil
}

// New initializes the controller on an already open port.
func New(port Port, opts ...Option) (*Bus, error) {
	if port == nil {
		return nil, errors.New("prologix: port is nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return newBus(port, cfg)
}

func newBus(port Port, cfg *config) (*Bus, error) {
	b := &Bus{
		cfg:       cfg,
		port:      port,
		logger:    cfg.logger,
		addressed: address{pad: -1},
		eoi:       gpib.AssertEOI,
		devices:   xsync.NewMapOf[gpib.Handle, *device](),
		taskMgr:   task.NewManager(context.Background(), cfg.logger),
	}
	b.nextHandle.Store(int32(gpib.FirstDeviceHandle))
	b.boardTimeout.Store(int32(gpib.T3s))

	if err := port.SetReadTimeout(cfg.readPoll); err != nil {
		return nil, fmt.Errorf("prologix: set read timeout: %w", err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		return nil, fmt.Errorf("prologix: reset input: %w", err)
	}

	b.line.Lock()
	defer b.line.Unlock()

	// controller mode, no read-after-write, EOI on last byte, no terminator added
	for _, cmd := range []string{"++mode 1", "++auto 0", "++eoi 1", "++eos 3"} {
		if err := b.command(cmd); err != nil {
			return nil, err
		}
	}
	b.logger.Info("prologix: controller initialized")

	return b, nil
}

// Close stops pending transfers and closes the serial port.
func (b *Bus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}

	b.taskMgr.Stop()
	b.taskMgr.Wait()

	return b.port.Close()
}

func (b *Bus) lookup(h gpib.Handle) (*device, bool) {
	return b.devices.Load(h)
}

func (b *Bus) open(name string, addr address, tmo gpib.TimeoutSetting, eot bool) (gpib.Handle, error) {
	if b.closed.Load() {
		return gpib.InvalidHandle, ErrClosed
	}

	h := gpib.Handle(b.nextHandle.Add(1) - 1)
	b.devices.Store(h, &device{name: name, addr: addr, timeout: tmo, eot: eot})
	b.logger.Debug("prologix: device opened", "handle", h, "name", name, "pad", addr.pad)

	return h, nil
}

func (b *Bus) Find(name string) (gpib.Handle, error) {
	addr, ok := b.cfg.aliases[name]
	if !ok {
		return gpib.InvalidHandle, fmt.Errorf("prologix: no device alias %q", name)
	}

	return b.open(name, addr, DefaultDeviceTimeout, gpib.AssertEOI)
}

func (b *Bus) Dev(board, pad, sad int, tmo gpib.TimeoutSetting, eot bool, _ int) (gpib.Handle, error) {
	if board != 0 {
		return gpib.InvalidHandle, fmt.Errorf("prologix: board %d: %w", board, errNoBoard)
	}
	if pad < 0 || pad > gpib.MaxPrimaryAddress {
		return gpib.InvalidHandle, fmt.Errorf("prologix: primary address %d out of range", pad)
	}

	return b.open("", address{pad: pad, sad: sad}, tmo, eot)
}

var errNoBoard = errors.New("only board 0 exists")

func (b *Bus) Offline(h gpib.Handle) gpib.Status {
	dev, ok := b.devices.LoadAndDelete(h)
	if !ok {
		return gpib.Failure(gpib.EDVR)
	}
	if xfer := dev.pending(); xfer != nil {
		xfer.cancel()
		<-xfer.done
	}
	b.logger.Debug("prologix: device released", "handle", h)

	return gpib.Status{}
}

func (b *Bus) SetEOT(h gpib.Handle, assert bool) gpib.Status {
	dev, ok := b.lookup(h)
	if !ok {
		return gpib.Failure(gpib.EDVR)
	}
	dev.mu.Lock()
	dev.eot = assert
	dev.mu.Unlock()

	return gpib.Status{}
}

func (b *Bus) AskTimeout(h gpib.Handle) (gpib.TimeoutSetting, gpib.Status) {
	if h == gpib.BoardHandle(0) {
		return gpib.TimeoutSetting(b.boardTimeout.Load()), gpib.Status{}
	}
	dev, ok := b.lookup(h)
	if !ok {
		return gpib.TNONE, gpib.Failure(gpib.EDVR)
	}

	return dev.getTimeout(), gpib.Status{}
}

func (b *Bus) SetTimeout(h gpib.Handle, t gpib.TimeoutSetting) gpib.Status {
	if !t.Valid() {
		return gpib.Failure(gpib.EARG)
	}
	if h == gpib.BoardHandle(0) {
		b.boardTimeout.Store(int32(t))
		return gpib.Status{}
	}
	dev, ok := b.lookup(h)
	if !ok {
		return gpib.Failure(gpib.EDVR)
	}
	dev.mu.Lock()
	dev.timeout = t
	dev.mu.Unlock()

	return gpib.Status{}
}

func (b *Bus) AskPAD(h gpib.Handle) (int, gpib.Status) {
	dev, ok := b.lookup(h)
	if !ok {
		return 0, gpib.Failure(gpib.EDVR)
	}

	return dev.addr.pad, gpib.Status{}
}

func (b *Bus) AskBoard(h gpib.Handle) (int, gpib.Status) {
	if _, ok := b.lookup(h); !ok {
		return 0, gpib.Failure(gpib.EDVR)
	}

	return 0, gpib.Status{}
}
