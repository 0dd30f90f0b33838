package api

import "net/http"

// MetricsSnapshot is the JSON form of the dispatcher and session counters.
type MetricsSnapshot struct {
	Queued   int               `json:"queued"`
	Inflight bool              `json:"inflight"`
	Commands map[string]uint64 `json:"commands"`
	Session  map[string]uint64 `json:"session"`
}

func (s *Server) metrics(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) snapshot() MetricsSnapshot {
	dm := s.dispatcher.Metrics()
	sm := s.dispatcher.SessionMetrics()

	return MetricsSnapshot{
		Queued:   s.dispatcher.QueueLen(),
		Inflight: dm.InflightGauge.Load() > 0,
		Commands: map[string]uint64{
			"submitted":      dm.SubmitCount.Load(),
			"processed":      dm.CommandCount.Load(),
			"failed":         dm.CommandErrCount.Load(),
			"skipped":        dm.SkippedCount.Load(),
			"aborts":         dm.AbortCount.Load(),
			"panics":         dm.PanicCount.Load(),
			"session_opens":  dm.SessionOpenCount.Load(),
			"session_errors": dm.SessionOpenErrCount.Load(),
			"bus_clears":     dm.BusClearCount.Load(),
		},
		Session: map[string]uint64{
			"opens":         sm.OpenCount.Load(),
			"open_errors":   sm.OpenErrCount.Load(),
			"ping_failures": sm.PingFailCount.Load(),
			"writes":        sm.WriteCount.Load(),
			"reads":         sm.ReadCount.Load(),
			"bytes_written": sm.BytesWritten.Load(),
			"bytes_read":    sm.BytesRead.Load(),
			"polls":         sm.PollCount.Load(),
			"timeouts":      sm.TimeoutCount.Load(),
			"aborts":        sm.AbortCount.Load(),
			"errors":        sm.ErrorCount.Load(),
			"clears":        sm.ClearCount.Load(),
		},
	}
}
