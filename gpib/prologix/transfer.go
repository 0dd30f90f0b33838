package prologix

import (
	"context"
	"errors"
	"time"

	"github.com/arloliu/go-gpib/gpib"
	"github.com/arloliu/go-gpib/internal/pool"
)

// transfer is one asynchronous read or write running in its own goroutine.
type transfer struct {
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
	status  gpib.Status // valid once done is closed
}

func (x *transfer) finished() bool {
	select {
	case <-x.done:
		return true
	default:
		return false
	}
}

func timedOut(count int) gpib.Status {
	return gpib.Status{Errored: true, TimedOut: true, Err: gpib.EABO, Count: count}
}

func aborted(count int) gpib.Status {
	return gpib.Status{Errored: true, Err: gpib.EABO, Count: count}
}

func (b *Bus) StartWrite(h gpib.Handle, data []byte) gpib.Status {
	payload := make([]byte, len(data))
	copy(payload, data)

	return b.start(h, "prologix-write", func(ctx context.Context, dev *device) gpib.Status {
		return b.write(ctx, dev, payload)
	})
}

func (b *Bus) StartRead(h gpib.Handle, buf []byte) gpib.Status {
	tmo, st := b.AskTimeout(h)
	if st.Errored {
		return st
	}
	deadline := deadlineFor(tmo.Duration())

	return b.start(h, "prologix-read", func(ctx context.Context, dev *device) gpib.Status {
		return b.read(ctx, dev, buf, deadline)
	})
}

func (b *Bus) start(h gpib.Handle, name string, run func(context.Context, *device) gpib.Status) gpib.Status {
	dev, ok := b.lookup(h)
	if !ok {
		return gpib.Failure(gpib.EDVR)
	}

	dev.mu.Lock()
	defer dev.mu.Unlock()

	if dev.xfer != nil && !dev.xfer.finished() {
		return gpib.Failure(gpib.EOIP)
	}

	ctx, cancel := context.WithCancel(b.taskMgr.Context())
	x := &transfer{cancel: cancel, done: make(chan struct{})}
	err := b.taskMgr.Go(name, func(context.Context) {
		defer close(x.done)
		defer cancel()
		x.status = run(ctx, dev)
	})
	if err != nil {
		cancel()
		b.logger.Error("prologix: cannot start transfer", "handle", h, "error", err)
		return gpib.Failure(gpib.EDVR)
	}
	dev.xfer = x

	return gpib.Status{}
}

func (b *Bus) Wait(h gpib.Handle, _ gpib.WaitMask) gpib.Status {
	dev, ok := b.lookup(h)
	if !ok {
		return gpib.Failure(gpib.EDVR)
	}

	x := dev.pending()
	if x == nil {
		return gpib.Status{Completed: true}
	}

	d := time.Duration(-1)
	if tmo := dev.getTimeout(); !tmo.Infinite() {
		d = tmo.Duration()
	}
	if !pool.WaitSignal(x.done, d) {
		return gpib.Status{TimedOut: true}
	}

	return x.status
}

func (b *Bus) Stop(h gpib.Handle) gpib.Status {
	dev, ok := b.lookup(h)
	if !ok {
		return gpib.Failure(gpib.EDVR)
	}

	dev.mu.Lock()
	x := dev.xfer
	if x == nil || x.finished() {
		dev.mu.Unlock()
		return gpib.Status{}
	}
	x.stopped = true
	dev.mu.Unlock()

	x.cancel()
	<-x.done
	b.logger.Debug("prologix: transfer stopped", "handle", h, "count", x.status.Count)

	return aborted(x.status.Count)
}

func (b *Bus) AsyncResult(h gpib.Handle) gpib.Status {
	dev, ok := b.lookup(h)
	if !ok {
		return gpib.Failure(gpib.EDVR)
	}

	dev.mu.Lock()
	x := dev.xfer
	stopped := x != nil && x.stopped
	dev.mu.Unlock()

	switch {
	case x == nil:
		return gpib.Status{}
	case !x.finished():
		return gpib.Failure(gpib.EOIP)
	case stopped:
		return aborted(x.status.Count)
	default:
		return x.status
	}
}

func (b *Bus) Write(h gpib.Handle, data []byte) gpib.Status {
	return b.sync(h, func(ctx context.Context, dev *device) gpib.Status {
		return b.write(ctx, dev, data)
	})
}

func (b *Bus) Read(h gpib.Handle, buf []byte) gpib.Status {
	return b.sync(h, func(ctx context.Context, dev *device) gpib.Status {
		deadline, _ := ctx.Deadline()
		return b.read(ctx, dev, buf, deadline)
	})
}

func (b *Bus) Clear(h gpib.Handle) gpib.Status {
	return b.sync(h, func(_ context.Context, dev *device) gpib.Status {
		return b.addressedCommand(dev, "++clr")
	})
}

func (b *Bus) Local(h gpib.Handle) gpib.Status {
	return b.sync(h, func(_ context.Context, dev *device) gpib.Status {
		return b.addressedCommand(dev, "++loc")
	})
}

// sync runs op bounded by the device timeout. It fails with EOIP while an
// asynchronous transfer is pending on h.
func (b *Bus) sync(h gpib.Handle, op func(context.Context, *device) gpib.Status) gpib.Status {
	dev, ok := b.lookup(h)
	if !ok {
		return gpib.Failure(gpib.EDVR)
	}
	if x := dev.pending(); x != nil && !x.finished() {
		return gpib.Failure(gpib.EOIP)
	}

	ctx := b.taskMgr.Context()
	if tmo := dev.getTimeout(); !tmo.Infinite() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, tmo.Duration())
		defer cancel()
	}

	return op(ctx, dev)
}

func (b *Bus) addressedCommand(dev *device, cmd string) gpib.Status {
	b.line.Lock()
	defer b.line.Unlock()

	if err := b.address(dev.addr.pad, dev.addr.sad); err != nil {
		b.logger.Error("prologix: address failed", "pad", dev.addr.pad, "error", err)
		return gpib.Failure(gpib.EDVR)
	}
	if err := b.command(cmd); err != nil {
		b.logger.Error("prologix: command failed", "cmd", cmd, "error", err)
		return gpib.Failure(gpib.EDVR)
	}

	return gpib.Status{Completed: true}
}

func (b *Bus) write(ctx context.Context, dev *device, data []byte) gpib.Status {
	b.line.Lock()
	defer b.line.Unlock()

	dev.mu.Lock()
	eot := dev.eot
	dev.mu.Unlock()

	if err := b.address(dev.addr.pad, dev.addr.sad); err != nil {
		return gpib.Failure(gpib.EDVR)
	}
	if err := b.setEOI(eot); err != nil {
		return gpib.Failure(gpib.EDVR)
	}

	n, err := b.writeData(ctx, data)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return timedOut(n)
	case errors.Is(err, context.Canceled):
		return aborted(n)
	case err != nil:
		b.logger.Error("prologix: write failed", "pad", dev.addr.pad, "error", err)
		return gpib.Failure(gpib.EDVR)
	}

	return gpib.Status{Completed: true, Count: n}
}

func (b *Bus) read(ctx context.Context, dev *device, buf []byte, deadline time.Time) gpib.Status {
	b.line.Lock()
	defer b.line.Unlock()

	if err := b.address(dev.addr.pad, dev.addr.sad); err != nil {
		return gpib.Failure(gpib.EDVR)
	}
	if err := b.command("++read eoi"); err != nil {
		return gpib.Failure(gpib.EDVR)
	}

	n, end, err := b.readResponse(ctx, buf, deadline)
	switch end {
	case readData:
		return gpib.Status{Completed: true, EndOfData: n < len(buf), Count: n}
	case readFailed:
		b.logger.Error("prologix: read failed", "pad", dev.addr.pad, "error", err)
		return gpib.Failure(gpib.EDVR)
	}

	// drop what the device still sends; the next command ends the controller's read
	_ = b.port.ResetInputBuffer()
	if end == readTimeout || errors.Is(err, context.DeadlineExceeded) {
		return timedOut(n)
	}

	return aborted(n)
}

func (b *Bus) Listener(board gpib.Handle, pad, sad int) (bool, gpib.Status) {
	if board != gpib.BoardHandle(0) {
		return false, gpib.Failure(gpib.EARG)
	}

	b.line.Lock()
	defer b.line.Unlock()

	if err := b.address(pad, sad); err != nil {
		return false, gpib.Failure(gpib.EDVR)
	}
	if err := b.command("++spoll"); err != nil {
		return false, gpib.Failure(gpib.EDVR)
	}

	buf := make([]byte, 8)
	tmo := gpib.TimeoutSetting(b.boardTimeout.Load())
	n, end, err := b.readResponse(b.taskMgr.Context(), buf, deadlineFor(tmo.Duration()))
	if end == readFailed {
		b.logger.Error("prologix: serial poll failed", "pad", pad, "error", err)
		return false, gpib.Failure(gpib.EDVR)
	}
	if end != readData {
		_ = b.port.ResetInputBuffer()
	}

	return end == readData && n > 0, gpib.Status{}
}
