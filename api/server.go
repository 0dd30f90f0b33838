// Package api exposes the bus worker over HTTP.
//
// Routes:
//
//	POST /api/commands/{kind}   queue a command, the body is an optional JSON payload
//	POST /api/abort             queue an abort
//	GET  /api/metrics           dispatcher and session counters
//	GET  /events/...            notification stream, when an events handler is set
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/arloliu/go-gpib/gpib"
	"github.com/arloliu/go-gpib/logger"
	"github.com/arloliu/go-gpib/worker"
	"github.com/gorilla/mux"
)

// DefaultMaxPayload is the largest accepted command payload in bytes.
const DefaultMaxPayload = 1 << 20

// Dispatcher is the part of worker.Dispatcher the server uses.
type Dispatcher interface {
	Submit(cmd worker.Command) error
	QueueLen() int
	Metrics() *worker.DispatcherMetrics
	SessionMetrics() *gpib.SessionMetrics
}

// Server routes HTTP requests to a Dispatcher.
type Server struct {
	router     *mux.Router
	dispatcher Dispatcher
	events     http.Handler
	maxPayload int64
	logger     logger.Logger
}

// Option is a functional option for configuring a Server.
type Option func(*Server)

// WithEvents mounts h under "/events/".
func WithEvents(h http.Handler) Option {
	return func(s *Server) { s.events = h }
}

// WithMaxPayload limits the size of command payloads.
func WithMaxPayload(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxPayload = n
		}
	}
}

// WithLogger sets the logger of the server.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a Server for d.
func NewServer(d Dispatcher, opts ...Option) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		dispatcher: d,
		maxPayload: DefaultMaxPayload,
		logger:     logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router.HandleFunc("/api/commands/{kind}", s.submitCommand).Methods(http.MethodPost)
	s.router.HandleFunc("/api/abort", s.abort).Methods(http.MethodPost)
	s.router.HandleFunc("/api/metrics", s.metrics).Methods(http.MethodGet)
	if s.events != nil {
		s.router.PathPrefix("/events/").Handler(s.events)
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type submitResponse struct {
	Kind   string `json:"kind"`
	Queued int    `json:"queued"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) submitCommand(w http.ResponseWriter, r *http.Request) {
	kind, err := worker.ParseKind(mux.Vars(r)["kind"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	payload, err := s.readPayload(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	cmd := worker.Command{Kind: kind}
	if payload != nil {
		cmd.Payload = payload
	}
	s.submit(w, cmd)
}

func (s *Server) abort(w http.ResponseWriter, _ *http.Request) {
	s.submit(w, worker.Command{Kind: worker.KindAbort})
}

func (s *Server) submit(w http.ResponseWriter, cmd worker.Command) {
	if err := s.dispatcher.Submit(cmd); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, worker.ErrDispatcherStopped) {
			status = http.StatusServiceUnavailable
		}
		s.writeError(w, status, err)

		return
	}

	s.logger.Debug("api: command queued", "kind", cmd.Kind)
	s.writeJSON(w, http.StatusAccepted, submitResponse{Kind: cmd.Kind.String(), Queued: s.dispatcher.QueueLen()})
}

var errInvalidPayload = errors.New("api: payload is not valid JSON")

// readPayload returns the request body as raw JSON, or nil when it is empty.
func (s *Server) readPayload(r *http.Request) (json.RawMessage, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, s.maxPayload+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > s.maxPayload {
		return nil, errors.New("api: payload too large")
	}
	if len(data) == 0 {
		return nil, nil
	}
	if !json.Valid(data) {
		return nil, errInvalidPayload
	}

	return json.RawMessage(data), nil
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Warn("api: request failed", "status", status, "error", err)
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("api: encode response", "error", err)
	}
}
