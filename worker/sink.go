package worker

import "github.com/arloliu/go-gpib/gpib"

// Sink receives progress text, errors and one completion event per command.
// Implementations are called on the worker goroutine and must not block.
type Sink interface {
	gpib.Notifier
	PostCommandComplete(kind Kind, result Result)
}

type nopSink struct{}

func (nopSink) PostInfo(string)                  {}
func (nopSink) PostError(string)                 {}
func (nopSink) PostCommandComplete(Kind, Result) {}
