package gpib

import "sync/atomic"

// SessionMetrics contains atomic counters of a session.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type SessionMetrics struct {
	// OpenCount indicates the number of successful session opens.
	OpenCount atomic.Uint64
	// OpenErrCount indicates the number of failed session opens.
	OpenErrCount atomic.Uint64
	// PingFailCount indicates the number of failed liveness checks.
	PingFailCount atomic.Uint64

	// WriteCount indicates the number of write transfers started.
	WriteCount atomic.Uint64
	// ReadCount indicates the number of read transfers started.
	ReadCount atomic.Uint64
	// BytesWritten indicates the number of bytes written.
	BytesWritten atomic.Uint64
	// BytesRead indicates the number of bytes read.
	BytesRead atomic.Uint64
	// PollCount indicates the number of poll slices waited.
	PollCount atomic.Uint64

	// TimeoutCount indicates the number of transfers that ran out of time.
	TimeoutCount atomic.Uint64
	// AbortCount indicates the number of transfers stopped by an abort.
	AbortCount atomic.Uint64
	// ErrorCount indicates the number of transfers that ended with a driver error.
	ErrorCount atomic.Uint64
	// ClearCount indicates the number of device clears sent.
	ClearCount atomic.Uint64
}

func (m *SessionMetrics) countOutcome(o Outcome) {
	switch o { //nolint:exhaustive
	case Timeout:
		m.TimeoutCount.Add(1)
	case Abort:
		m.AbortCount.Add(1)
	case Error:
		m.ErrorCount.Add(1)
	}
}

func (m *SessionMetrics) countTransfer(dir direction, n int) {
	if n < 0 {
		n = 0
	}
	if dir == dirWrite {
		m.WriteCount.Add(1)
		m.BytesWritten.Add(uint64(n))
	} else {
		m.ReadCount.Add(1)
		m.BytesRead.Add(uint64(n))
	}
}
