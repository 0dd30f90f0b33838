package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-gpib/gpib"
	"github.com/arloliu/go-gpib/internal/queue"
	"github.com/arloliu/go-gpib/internal/task"
	"github.com/arloliu/go-gpib/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

// Body is the device exchange of one command kind. It returns the outcome the
// dispatcher folds into the command result, usually ex.Outcome().
type Body func(ctx context.Context, ex *Exchange, cmd *Command) gpib.Outcome

// Route binds a Body to a command kind.
type Route struct {
	Run Body
	// Ack overrides the acknowledgment written by housekeeping after a successful
	// command. Empty uses the dispatcher default.
	Ack string
	// AckTimeout bounds the write of Ack. Zero uses the dispatcher default.
	AckTimeout time.Duration
	// SkipAck disables the acknowledgment for this route.
	SkipAck bool
}

// Dispatcher serializes every access to one instrument. It is safe to call Submit
// from any goroutine.
type Dispatcher struct {
	cfg    *config
	logger logger.Logger
	sink   Sink

	mailbox *queue.Mailbox[Command]
	routes  *xsync.MapOf[Kind, Route]
	// number of Abort commands waiting in the mailbox
	abortsQueued atomic.Int32

	// session and identity are only touched by the worker goroutine.
	session  *gpib.Session
	identity *Identity

	mu       sync.Mutex
	taskMgr  *task.Manager
	started  bool
	halted   atomic.Bool
	haltOnce sync.Once
	done     chan struct{}

	metrics DispatcherMetrics
}

// New creates a dispatcher for the device described by devCfg on bus.
// Call Handle to register command bodies, then Start.
func New(bus gpib.Bus, devCfg *gpib.DeviceConfig, opts ...DispatcherOption) (*Dispatcher, error) {
	if bus == nil {
		return nil, fmt.Errorf("%w: bus is nil", gpib.ErrConfig)
	}
	if devCfg == nil {
		return nil, fmt.Errorf("%w: device config is nil", gpib.ErrConfig)
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	d := &Dispatcher{
		cfg:     cfg,
		logger:  cfg.logger,
		sink:    cfg.sink,
		mailbox: queue.NewMailbox[Command](),
		routes:  xsync.NewMapOf[Kind, Route](),
		session: gpib.NewSession(bus, devCfg),
		done:    make(chan struct{}),
	}
	d.session.SetNotifier(d.sink)

	return d, nil
}

// Handle registers the body of a command kind, replacing an earlier one.
// The kinds processed by the dispatcher itself cannot be routed.
func (d *Dispatcher) Handle(kind Kind, route Route) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	if kind.builtin() {
		return fmt.Errorf("%w: %s", ErrBuiltinKind, kind)
	}
	if route.Run == nil {
		return fmt.Errorf("worker: route %s has no body", kind)
	}
	d.routes.Store(kind, route)

	return nil
}

// HandleFunc registers body for kind with the default acknowledgment.
func (d *Dispatcher) HandleFunc(kind Kind, body Body) error {
	return d.Handle(kind, Route{Run: body})
}

// Start runs the worker goroutine. The worker halts on a Shutdown command, on an
// unrecoverable session setup failure, when ctx is canceled or when Stop is called.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.halted.Load() {
		return ErrDispatcherStopped
	}
	if d.started {
		return ErrDispatcherStarted
	}

	d.taskMgr = task.NewManager(ctx, d.logger)
	if err := d.taskMgr.Go("dispatcher", d.run); err != nil {
		return err
	}
	d.started = true

	return nil
}

// Submit queues cmd. It never blocks. A queued Abort command stops the transfer
// in flight at its next poll slice; other commands wait their turn.
func (d *Dispatcher) Submit(cmd Command) error {
	if d.halted.Load() {
		return ErrDispatcherStopped
	}

	isAbort := cmd.Kind == KindAbort
	if isAbort {
		d.abortsQueued.Add(1)
	}
	if err := d.mailbox.Push(cmd); err != nil {
		if isAbort {
			d.abortsQueued.Add(-1)
		}

		return ErrDispatcherStopped
	}
	d.metrics.incSubmitCount()

	return nil
}

// Stop halts the worker after the current poll slice and waits for it to exit.
// Queued commands are dropped.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	mgr := d.taskMgr
	started := d.started
	d.mu.Unlock()

	if !started {
		d.halt()
		return
	}

	mgr.Stop()
	mgr.Wait()
}

// Done returns a channel closed once the worker has halted.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// Stopped reports whether the worker has halted or is halting.
func (d *Dispatcher) Stopped() bool {
	return d.halted.Load()
}

// QueueLen returns the number of commands waiting.
func (d *Dispatcher) QueueLen() int {
	return d.mailbox.Len()
}

// Metrics returns the dispatcher metrics.
func (d *Dispatcher) Metrics() *DispatcherMetrics {
	return &d.metrics
}

// SessionMetrics returns the metrics of the bus session.
func (d *Dispatcher) SessionMetrics() *gpib.SessionMetrics {
	return d.session.Metrics()
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.halt()

	d.logger.Info("worker: dispatcher started")
	for {
		cmd, err := d.mailbox.Pop(ctx)
		if err != nil {
			d.logger.Debug("worker: mailbox pop stopped", "error", err)
			return
		}
		if cmd.Kind == KindAbort {
			d.abortsQueued.Add(-1)
		}
		if !d.process(ctx, cmd) {
			return
		}
	}
}

func (d *Dispatcher) halt() {
	d.haltOnce.Do(func() {
		d.halted.Store(true)
		d.mailbox.Close()
		if dropped := d.mailbox.Drain(); len(dropped) > 0 {
			d.logger.Warn("worker: dropped queued commands", "count", len(dropped))
		}
		d.closeSession()
		close(d.done)
		d.logger.Info("worker: dispatcher halted")
	})
}

// process handles one command and reports whether the worker keeps running.
func (d *Dispatcher) process(ctx context.Context, cmd Command) bool {
	d.metrics.InflightGauge.Store(1)
	defer d.metrics.InflightGauge.Store(0)
	d.metrics.incCommandCount()

	// a fresh command clears the failure left by the previous one
	d.session.ResetStatus()
	d.logger.Debug("worker: command", "kind", cmd.Kind, "queued", d.mailbox.Len())

	switch cmd.Kind {
	case KindSetupSession:
		err := d.setupSession()
		res := Result{Kind: cmd.Kind, Outcome: gpib.OK, Status: d.session.Status(), Err: err, Skipped: true}
		if err != nil {
			res.Outcome = gpib.Error
		}
		d.complete(cmd, res)
		if errors.Is(err, gpib.ErrConfig) {
			d.logger.Error("worker: unrecoverable session setup failure, halting", "error", err)
			return false
		}

		return true

	case KindShutdown:
		d.halted.Store(true)
		d.closeSession()
		d.complete(cmd, Result{Kind: cmd.Kind, Outcome: gpib.OK, Skipped: true})

		return false
	}

	d.complete(cmd, d.execute(ctx, cmd))

	return true
}

func (d *Dispatcher) execute(ctx context.Context, cmd Command) Result {
	res := Result{Kind: cmd.Kind, Outcome: gpib.OK}

	if err := d.ensureSession(); err != nil {
		res.Outcome = gpib.Error
		res.Err = err
		res.Skipped = true
		res.Status = d.session.Status()
		if d.session.Valid() {
			// the handle survived a failed ping; leave the front panel usable
			d.session.GoToLocal()
		}

		return res
	}

	restore := d.session.BorrowTimeout(d.cfg.workingTimeout)
	defer restore()

	abort := gpib.AnyAbort(gpib.AbortFunc(d.abortPending), gpib.ContextAbort(ctx))
	ex := newExchange(d.session, abort, d.sink)
	route, routed := d.routes.Load(cmd.Kind)

	if d.cfg.precautionaryClear && time.Since(d.session.LastLocal()) > PrecautionaryClearAge {
		d.logger.Debug("worker: precautionary device clear", "since_local", time.Since(d.session.LastLocal()))
		d.session.Clear()
		d.metrics.incBusClearCount()
	}

	if err := d.identify(ctx, ex); err != nil {
		res.Err = err
		res.Skipped = true
	} else {
		res.Err = d.dispatch(ctx, ex, &cmd, route, routed)
	}

	ack, ackTimeout := d.cfg.ack, d.cfg.ackTimeout
	if routed {
		if route.Ack != "" {
			ack = route.Ack
		}
		if route.AckTimeout > 0 {
			ackTimeout = route.AckTimeout
		}
		if route.SkipAck {
			ack = ""
		}
	}
	d.housekeeping(ctx, ack, ackTimeout)

	res.Outcome = ex.Outcome()
	res.Status = d.session.Status()
	if res.Err == nil {
		res.Err = res.Outcome.Err()
	}
	if busFailure(res) {
		d.sink.PostError("GPIB error or timeout")
	}

	return res
}

// abortPending reports whether an Abort command waits behind the running one.
func (d *Dispatcher) abortPending() bool {
	return d.abortsQueued.Load() > 0
}

// busFailure reports whether the command ended with a bus level failure.
func busFailure(res Result) bool {
	switch res.Outcome { //nolint:exhaustive
	case gpib.Error, gpib.Timeout, gpib.PreviousError:
		return true
	}

	return res.Status.Failed()
}

func (d *Dispatcher) dispatch(ctx context.Context, ex *Exchange, cmd *Command, route Route, routed bool) error {
	switch {
	case cmd.Kind == KindAbort:
		d.metrics.incAbortCount()
		ex.Error("Communication aborted")

		return gpib.ErrAborted

	case !routed:
		ex.Error(fmt.Sprintf("No handler for command %s", cmd.Kind))
		return fmt.Errorf("%w: %s", ErrNoRoute, cmd.Kind)
	}

	outcome := gpib.OK
	ok := d.taskMgr.CallWithRecover("route "+cmd.Kind.String(), func() {
		outcome = route.Run(ctx, ex, cmd)
	})
	if !ok {
		d.metrics.incPanicCount()
		ex.record(gpib.Error)
		ex.Error(fmt.Sprintf("Command %s failed", cmd.Kind))

		return fmt.Errorf("%w: %s", ErrHandlerPanic, cmd.Kind)
	}
	if outcome == gpib.Continue {
		outcome = gpib.OK
	}
	ex.record(outcome)

	return nil
}

// setupSession (re)opens the session and reports failures to the sink.
func (d *Dispatcher) setupSession() error {
	err := d.session.Open()
	if err == nil {
		d.metrics.incSessionOpenCount()
		return nil
	}

	d.metrics.incSessionOpenErrCount()
	switch {
	case errors.Is(err, gpib.ErrConfig):
		d.sink.PostError("Bad GPIB controller index or device address")
	case errors.Is(err, gpib.ErrNotFound):
		d.sink.PostError("Cannot find device")
	case errors.Is(err, gpib.ErrUnresponsive):
		d.sink.PostError("Cannot contact device")
	default:
		d.sink.PostError(err.Error())
	}

	return err
}

// ensureSession makes sure an open session answers the liveness check.
func (d *Dispatcher) ensureSession() error {
	if !d.session.Valid() {
		if err := d.setupSession(); err != nil {
			d.sink.PostError("Cannot obtain device descriptor")
			return err
		}

		return nil
	}

	if !d.session.Ping() {
		d.logger.Warn("worker: device is not responding", "handle", d.session.Handle())
		d.sink.PostError("Device is not responding")

		return gpib.ErrUnresponsive
	}

	return nil
}

// identify reads the device identity once per dispatcher lifetime. A failed or
// rejected identity is forgotten so that the next command asks again.
func (d *Dispatcher) identify(ctx context.Context, ex *Exchange) error {
	if d.identity != nil || d.cfg.identifier == nil {
		return nil
	}

	id, err := d.cfg.identifier(ctx, ex)
	if err != nil {
		d.logger.Error("worker: identity query failed", "error", err)
		ex.Error("Cannot query identity - cannot proceed")

		return err
	}

	if d.cfg.expectedModel != "" && !strings.Contains(id.Model, d.cfg.expectedModel) {
		d.logger.Error("worker: unexpected instrument", "identity", id.String(), "expected_model", d.cfg.expectedModel)
		ex.Error(fmt.Sprintf("Not an %s - cannot proceed", d.cfg.expectedModel))

		return fmt.Errorf("%w: model %q", ErrIdentity, id.Model)
	}

	d.identity = &id
	d.logger.Info("worker: instrument identified", "identity", id.String())

	return nil
}

// housekeeping leaves the device in a usable state after a command: a failed bus is
// cleared, otherwise ack is written, then the device returns to local control.
func (d *Dispatcher) housekeeping(ctx context.Context, ack string, ackTimeout time.Duration) {
	if !d.session.Valid() {
		return
	}

	restore := d.session.BorrowTimeout(HousekeepingTimeout)
	defer restore()

	switch {
	case d.session.Failed():
		d.session.Clear()
		d.metrics.incBusClearCount()
	case ack != "":
		// only cancellation of the worker interrupts the acknowledgment
		d.session.AsyncWrite([]byte(ack), ackTimeout, gpib.ContextAbort(ctx))
	}

	if _, st := d.session.GoToLocal(); st.Failed() {
		d.logger.Warn("worker: go to local failed", "status", st)
	}
}

func (d *Dispatcher) complete(cmd Command, res Result) {
	if res.Err != nil {
		d.metrics.incCommandErrCount()
	}
	if res.Skipped && cmd.Kind != KindSetupSession && cmd.Kind != KindShutdown {
		d.metrics.incSkippedCount()
	}

	d.logger.Debug("worker: command complete", "kind", cmd.Kind, "outcome", res.Outcome, "error", res.Err)
	d.sink.PostCommandComplete(cmd.Kind, res)

	if c, ok := cmd.Token.(Completer); ok {
		c.Complete(res)
	}
}

func (d *Dispatcher) closeSession() {
	if err := d.session.Close(); err != nil {
		d.logger.Warn("worker: close session failed", "error", err)
	}
}
