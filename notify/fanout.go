package notify

import "github.com/arloliu/go-gpib/worker"

// Fanout forwards every notification to each of its sinks in order.
type Fanout []worker.Sink

var _ worker.Sink = Fanout(nil)

// NewFanout creates a Fanout of the non-nil sinks.
func NewFanout(sinks ...worker.Sink) Fanout {
	f := make(Fanout, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			f = append(f, s)
		}
	}

	return f
}

func (f Fanout) PostInfo(text string) {
	for _, s := range f {
		s.PostInfo(text)
	}
}

func (f Fanout) PostError(text string) {
	for _, s := range f {
		s.PostError(text)
	}
}

func (f Fanout) PostCommandComplete(kind worker.Kind, res worker.Result) {
	for _, s := range f {
		s.PostCommandComplete(kind, res)
	}
}
