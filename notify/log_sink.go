package notify

import (
	"github.com/arloliu/go-gpib/logger"
	"github.com/arloliu/go-gpib/worker"
)

// LogSink writes notifications to a logger.
type LogSink struct {
	logger logger.Logger
}

var _ worker.Sink = (*LogSink)(nil)

// NewLogSink creates a LogSink. A nil logger uses the package default logger.
func NewLogSink(l logger.Logger) *LogSink {
	if l == nil {
		l = logger.GetLogger()
	}

	return &LogSink{logger: l}
}

func (s *LogSink) PostInfo(text string) {
	s.logger.Info(text)
}

func (s *LogSink) PostError(text string) {
	s.logger.Error(text)
}

func (s *LogSink) PostCommandComplete(kind worker.Kind, res worker.Result) {
	if res.Err != nil {
		s.logger.Info("command complete", "kind", kind, "outcome", res.Outcome, "skipped", res.Skipped, "error", res.Err)
		return
	}
	s.logger.Info("command complete", "kind", kind, "outcome", res.Outcome)
}
