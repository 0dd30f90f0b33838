// Package notify provides worker.Sink implementations: a logging sink, a fan-out
// sink, a channel sink and a sink publishing server-sent events to browsers.
//
// Sinks are called on the bus worker goroutine and never block it.
package notify
