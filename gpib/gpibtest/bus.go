// Package gpibtest provides a scripted, in-memory gpib.Bus for tests.
//
// The bus keeps one timeout per handle, records every call, and lets a test script
// the results of Wait, queue data for reads and respond to writes:
//
//	bus := gpibtest.NewBus()
//	bus.AddDevice("hp8753", 0, 16)
//	bus.Respond(func(cmd []byte) []byte { ... })
//	bus.ScriptWaits(gpibtest.SliceTimeout, gpibtest.SliceTimeout, gpibtest.Done)
package gpibtest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/arloliu/go-gpib/gpib"
)

// Canned Wait results.
var (
	// SliceTimeout is a poll slice that expired without completion.
	SliceTimeout = gpib.Status{TimedOut: true}
	// Done is a completed transfer.
	Done = gpib.Status{Completed: true}
	// EndOfData is a read terminated by EOI.
	EndOfData = gpib.Status{EndOfData: true}
	// DriverError is a bus error reported while waiting.
	DriverError = gpib.Failure(gpib.EBUS)
)

// DefaultBoardTimeout is the timeout of a board handle that was never changed.
const DefaultBoardTimeout = gpib.T3s

type device struct {
	name  string
	board int
	pad   int
}

type transfer struct {
	write   bool
	count   int
	stopped bool
}

// Bus is a scripted gpib.Bus. It is safe for concurrent use.
type Bus struct {
	mu sync.Mutex

	devices    map[string]device
	responding map[int]bool
	open       map[gpib.Handle]device
	timeouts   map[gpib.Handle]gpib.TimeoutSetting
	nextHandle gpib.Handle

	waits       []gpib.Status
	defaultWait gpib.Status
	onWait      func(n int)
	startErrs   int
	findErr     error

	reads     [][]byte
	responder func(cmd []byte) []byte
	writes    [][]byte

	pending map[gpib.Handle]*transfer
	calls   map[string]int
	trace   []string
}

var _ gpib.Bus = (*Bus)(nil)

// NewBus creates an empty bus. Wait completes immediately unless scripted.
func NewBus() *Bus {
	return &Bus{
		devices:     make(map[string]device),
		responding:  make(map[int]bool),
		open:        make(map[gpib.Handle]device),
		timeouts:    make(map[gpib.Handle]gpib.TimeoutSetting),
		nextHandle:  gpib.FirstDeviceHandle,
		defaultWait: Done,
		pending:     make(map[gpib.Handle]*transfer),
		calls:       make(map[string]int),
	}
}

// --- scripting ---

// AddDevice registers a responding device reachable by name or by board/pad.
func (b *Bus) AddDevice(name string, board, pad int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.devices[name] = device{name: name, board: board, pad: pad}
	b.responding[pad] = true
}

// SetResponding changes whether the device at pad answers the listener check.
func (b *Bus) SetResponding(pad int, responding bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.responding[pad] = responding
}

// FailFind makes Find and Dev fail with err until called again with nil.
func (b *Bus) FailFind(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.findErr = err
}

// FailStarts makes the next n StartWrite/StartRead calls report a driver error.
func (b *Bus) FailStarts(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.startErrs = n
}

// ScriptWaits queues results for successive Wait calls.
func (b *Bus) ScriptWaits(results ...gpib.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.waits = append(b.waits, results...)
}

// ScriptSliceTimeouts queues n expired poll slices.
func (b *Bus) ScriptSliceTimeouts(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := 0; i < n; i++ {
		b.waits = append(b.waits, SliceTimeout)
	}
}

// SetDefaultWait sets the result of Wait once the script is exhausted.
func (b *Bus) SetDefaultWait(st gpib.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.defaultWait = st
}

// OnWait registers fn to be called with the 1-based Wait count before each Wait returns.
func (b *Bus) OnWait(fn func(n int)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.onWait = fn
}

// QueueRead queues data returned by the next read.
func (b *Bus) QueueRead(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.reads = append(b.reads, data)
}

// Respond registers fn to be called with every written command. A non-nil result
// is queued for the next read.
func (b *Bus) Respond(fn func(cmd []byte) []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.responder = fn
}

// --- inspection ---

// Calls returns how many times the named Bus method was called.
func (b *Bus) Calls(method string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.calls[method]
}

// TotalCalls returns the number of Bus method calls of any kind.
func (b *Bus) TotalCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, c := range b.calls {
		n += c
	}

	return n
}

// Trace returns the names of the Bus methods called, in order.
func (b *Bus) Trace() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]string(nil), b.trace...)
}

// Writes returns every written payload as a string, in order.
func (b *Bus) Writes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, len(b.writes))
	for i, w := range b.writes {
		out[i] = string(w)
	}

	return out
}

// TimeoutOf returns the current timeout of h.
func (b *Bus) TimeoutOf(h gpib.Handle) gpib.TimeoutSetting {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.timeoutLocked(h)
}

// OpenHandles returns the number of open device handles.
func (b *Bus) OpenHandles() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.open)
}

// PendingWaits returns the number of scripted Wait results not yet consumed.
func (b *Bus) PendingWaits() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.waits)
}

// --- gpib.Bus ---

func (b *Bus) record(method string) {
	b.calls[method]++
	b.trace = append(b.trace, method)
}

func (b *Bus) timeoutLocked(h gpib.Handle) gpib.TimeoutSetting {
	if t, ok := b.timeouts[h]; ok {
		return t
	}
	if !h.Valid() {
		return DefaultBoardTimeout
	}

	return gpib.TNONE
}

func (b *Bus) allocate(dev device, tmo gpib.TimeoutSetting) gpib.Handle {
	h := b.nextHandle
	b.nextHandle++
	b.open[h] = dev
	b.timeouts[h] = tmo

	return h
}

func (b *Bus) Find(name string) (gpib.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("Find")

	if b.findErr != nil {
		return gpib.InvalidHandle, b.findErr
	}
	dev, ok := b.devices[name]
	if !ok {
		return gpib.InvalidHandle, fmt.Errorf("gpibtest: no device named %q", name)
	}

	return b.allocate(dev, gpib.DefaultOpenTimeout), nil
}

func (b *Bus) Dev(board, pad, _ int, tmo gpib.TimeoutSetting, _ bool, _ int) (gpib.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("Dev")

	if b.findErr != nil {
		return gpib.InvalidHandle, b.findErr
	}
	if board != 0 {
		return gpib.InvalidHandle, errors.New("gpibtest: non-existent board")
	}

	return b.allocate(device{board: board, pad: pad}, tmo), nil
}

func (b *Bus) Offline(h gpib.Handle) gpib.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("Offline")

	if _, ok := b.open[h]; !ok {
		return gpib.Failure(gpib.EDVR)
	}
	delete(b.open, h)
	delete(b.timeouts, h)
	delete(b.pending, h)

	return gpib.Status{}
}

func (b *Bus) SetEOT(h gpib.Handle, _ bool) gpib.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("SetEOT")

	if _, ok := b.open[h]; !ok {
		return gpib.Failure(gpib.EDVR)
	}

	return gpib.Status{}
}

func (b *Bus) AskTimeout(h gpib.Handle) (gpib.TimeoutSetting, gpib.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("AskTimeout")

	return b.timeoutLocked(h), gpib.Status{}
}

func (b *Bus) SetTimeout(h gpib.Handle, t gpib.TimeoutSetting) gpib.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("SetTimeout")

	b.timeouts[h] = t

	return gpib.Status{}
}

func (b *Bus) AskPAD(h gpib.Handle) (int, gpib.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("AskPAD")

	dev, ok := b.open[h]
	if !ok {
		return 0, gpib.Failure(gpib.EDVR)
	}

	return dev.pad, gpib.Status{}
}

func (b *Bus) AskBoard(h gpib.Handle) (int, gpib.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("AskBoard")

	dev, ok := b.open[h]
	if !ok {
		return 0, gpib.Failure(gpib.EDVR)
	}

	return dev.board, gpib.Status{}
}

func (b *Bus) Listener(_ gpib.Handle, pad, _ int) (bool, gpib.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("Listener")

	return b.responding[pad], gpib.Status{}
}

func (b *Bus) StartWrite(h gpib.Handle, data []byte) gpib.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("StartWrite")

	if b.startErrs > 0 {
		b.startErrs--
		return gpib.Failure(gpib.EBUS)
	}
	b.writeLocked(data)
	b.pending[h] = &transfer{write: true, count: len(data)}

	return gpib.Status{}
}

func (b *Bus) StartRead(h gpib.Handle, buf []byte) gpib.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("StartRead")

	if b.startErrs > 0 {
		b.startErrs--
		return gpib.Failure(gpib.EBUS)
	}
	b.pending[h] = &transfer{count: b.readLocked(buf)}

	return gpib.Status{}
}

func (b *Bus) Wait(_ gpib.Handle, _ gpib.WaitMask) gpib.Status {
	b.mu.Lock()
	b.record("Wait")

	st := b.defaultWait
	if len(b.waits) > 0 {
		st = b.waits[0]
		b.waits = b.waits[1:]
	}
	hook := b.onWait
	n := b.calls["Wait"]
	b.mu.Unlock()

	if hook != nil {
		hook(n)
	}

	return st
}

func (b *Bus) Stop(h gpib.Handle) gpib.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("Stop")

	if t, ok := b.pending[h]; ok {
		t.stopped = true
	}

	return gpib.Status{}
}

func (b *Bus) AsyncResult(h gpib.Handle) gpib.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("AsyncResult")

	t, ok := b.pending[h]
	if !ok {
		return gpib.Failure(gpib.EDVR)
	}
	delete(b.pending, h)

	if t.stopped {
		return gpib.Status{Errored: true, Err: gpib.EABO}
	}

	return gpib.Status{Completed: true, EndOfData: !t.write, Count: t.count}
}

func (b *Bus) Write(_ gpib.Handle, data []byte) gpib.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("Write")

	b.writeLocked(data)

	return gpib.Status{Completed: true, Count: len(data)}
}

func (b *Bus) Read(_ gpib.Handle, buf []byte) gpib.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("Read")

	if len(b.reads) == 0 {
		return gpib.Status{TimedOut: true, Errored: true, Err: gpib.EABO}
	}

	return gpib.Status{Completed: true, EndOfData: true, Count: b.readLocked(buf)}
}

func (b *Bus) Clear(h gpib.Handle) gpib.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("Clear")

	b.reads = nil
	delete(b.pending, h)

	return gpib.Status{}
}

func (b *Bus) Local(_ gpib.Handle) gpib.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("Local")

	return gpib.Status{}
}

func (b *Bus) writeLocked(data []byte) {
	cp := append([]byte(nil), data...)
	b.writes = append(b.writes, cp)
	if b.responder != nil {
		if resp := b.responder(cp); resp != nil {
			b.reads = append(b.reads, resp)
		}
	}
}

func (b *Bus) readLocked(buf []byte) int {
	if len(b.reads) == 0 {
		return 0
	}
	data := b.reads[0]
	b.reads = b.reads[1:]

	return copy(buf, data)
}
