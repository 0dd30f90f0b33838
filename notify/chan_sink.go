package notify

import (
	"sync/atomic"

	"github.com/arloliu/go-gpib/worker"
)

// ChanSink delivers notifications as events on a buffered channel. Events that do
// not fit are dropped and counted.
type ChanSink struct {
	events  chan Event
	dropped atomic.Uint64
}

var _ worker.Sink = (*ChanSink)(nil)

// NewChanSink creates a ChanSink buffering up to size events.
func NewChanSink(size int) *ChanSink {
	if size < 1 {
		size = 1
	}

	return &ChanSink{events: make(chan Event, size)}
}

// Events returns the receive side of the event channel.
func (s *ChanSink) Events() <-chan Event {
	return s.events
}

// Dropped returns the number of events dropped because the channel was full.
func (s *ChanSink) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *ChanSink) PostInfo(text string) {
	s.post(newTextEvent(EventInfo, text))
}

func (s *ChanSink) PostError(text string) {
	s.post(newTextEvent(EventError, text))
}

func (s *ChanSink) PostCommandComplete(kind worker.Kind, res worker.Result) {
	s.post(newCompleteEvent(kind, res))
}

func (s *ChanSink) post(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.dropped.Add(1)
	}
}
