package worker

import "errors"

var (
	// ErrDispatcherStopped is returned by Submit once the worker has halted.
	ErrDispatcherStopped = errors.New("worker: dispatcher stopped")
	// ErrDispatcherStarted is returned by Start when the worker is already running.
	ErrDispatcherStarted = errors.New("worker: dispatcher already started")
	// ErrUnknownKind is returned for a command kind that does not exist.
	ErrUnknownKind = errors.New("worker: unknown command kind")
	// ErrBuiltinKind is returned by Handle for kinds the dispatcher processes itself.
	ErrBuiltinKind = errors.New("worker: kind is handled by the dispatcher")
	// ErrNoRoute means no body is registered for the command kind.
	ErrNoRoute = errors.New("worker: no route for command kind")
	// ErrIdentity means the device identity could not be read or does not match.
	ErrIdentity = errors.New("worker: device identity rejected")
	// ErrHandlerPanic means the command body panicked.
	ErrHandlerPanic = errors.New("worker: command body panicked")
)
