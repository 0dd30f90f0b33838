package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	sse "github.com/alexandrevicenzi/go-sse"
	"github.com/arloliu/go-gpib/internal/task"
	"github.com/arloliu/go-gpib/logger"
	"github.com/arloliu/go-gpib/worker"
)

const (
	// DefaultSSEChannel is the event stream path clients subscribe to.
	DefaultSSEChannel = "/events/gpib"

	// DefaultSSEBacklog is the number of events buffered for the publisher.
	DefaultSSEBacklog = 256

	// ShutdownGrace is how long Shutdown waits for clients to leave.
	ShutdownGrace = time.Second
)

// SSESink publishes notifications as JSON server-sent events. It is also the
// http.Handler clients connect to, usually mounted at "/events/".
//
// Events are handed to a publisher goroutine through a bounded backlog, so a slow
// client never stalls the bus worker; events beyond the backlog are dropped.
type SSESink struct {
	server  *sse.Server
	channel string
	backlog int
	logger  logger.Logger

	queue   *ChanSink
	taskMgr *task.Manager
}

var (
	_ worker.Sink  = (*SSESink)(nil)
	_ http.Handler = (*SSESink)(nil)
)

// SSEOption is a functional option for configuring an SSESink.
type SSEOption func(*SSESink) error

// WithSSEChannel sets the stream path events are published on.
func WithSSEChannel(channel string) SSEOption {
	return func(s *SSESink) error {
		if !strings.HasPrefix(channel, "/") {
			return errors.New("notify: sse channel must start with '/'")
		}
		s.channel = channel

		return nil
	}
}

// WithSSEBacklog sets how many events may wait for the publisher.
func WithSSEBacklog(n int) SSEOption {
	return func(s *SSESink) error {
		if n < 1 {
			return errors.New("notify: sse backlog must be positive")
		}
		s.backlog = n

		return nil
	}
}

// WithSSELogger sets the logger used by the sink and the event server.
func WithSSELogger(l logger.Logger) SSEOption {
	return func(s *SSESink) error {
		if l == nil {
			return errors.New("notify: logger must not be nil")
		}
		s.logger = l

		return nil
	}
}

// NewSSESink creates an SSESink with its own event server and starts the
// publisher. Call Shutdown to stop both.
func NewSSESink(opts ...SSEOption) (*SSESink, error) {
	s := &SSESink{
		channel: DefaultSSEChannel,
		backlog: DefaultSSEBacklog,
		logger:  logger.GetLogger(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	s.queue = NewChanSink(s.backlog)
	s.server = sse.NewServer(&sse.Options{
		Logger: log.New(&logWriter{l: s.logger}, "sse: ", 0),
	})
	s.taskMgr = task.NewManager(context.Background(), s.logger)
	if err := s.taskMgr.Start("sse-publisher", s.publishNext); err != nil {
		return nil, err
	}

	return s, nil
}

// Channel returns the stream path events are published on.
func (s *SSESink) Channel() string {
	return s.channel
}

// ClientCount returns the number of connected clients.
func (s *SSESink) ClientCount() int {
	return s.server.ClientCount()
}

func (s *SSESink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.server.ServeHTTP(w, r)
}

// Dropped returns the number of events dropped because the backlog was full.
func (s *SSESink) Dropped() uint64 {
	return s.queue.Dropped()
}

// Shutdown stops the publisher and the event server.
//
// The event server can only stop once every client has left, so close the HTTP
// server that serves the stream first. Clients still connected after
// ShutdownGrace keep the event server running; Shutdown logs a warning and
// returns instead of blocking.
func (s *SSESink) Shutdown() {
	s.taskMgr.Stop()
	s.taskMgr.Wait()

	deadline := time.Now().Add(ShutdownGrace)
	for s.server.ClientCount() > 0 {
		if time.Now().After(deadline) {
			s.logger.Warn("notify: event stream clients still connected, event server left running",
				"clients", s.server.ClientCount())
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	s.server.Shutdown()
}

func (s *SSESink) PostInfo(text string) {
	s.queue.PostInfo(text)
}

func (s *SSESink) PostError(text string) {
	s.queue.PostError(text)
}

func (s *SSESink) PostCommandComplete(kind worker.Kind, res worker.Result) {
	s.queue.PostCommandComplete(kind, res)
}

func (s *SSESink) publishNext(ctx context.Context) bool {
	select {
	case ev := <-s.queue.Events():
		s.publish(ev)
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *SSESink) publish(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("notify: marshal event", "type", ev.Type, "error", err)
		return
	}
	s.server.SendMessage(s.channel, sse.SimpleMessage(string(data)))
}

// logWriter forwards the event server log lines to a logger.
type logWriter struct {
	l logger.Logger
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.l.Debug(strings.TrimSpace(string(p)))
	return len(p), nil
}
