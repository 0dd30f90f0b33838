package worker

import "sync/atomic"

// DispatcherMetrics contains atomic metrics of a dispatcher.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type DispatcherMetrics struct {
	// SubmitCount indicates the number of commands accepted by Submit.
	SubmitCount atomic.Uint64
	// CommandCount indicates the number of commands processed.
	CommandCount atomic.Uint64
	// CommandErrCount indicates the number of commands that completed with an error.
	CommandErrCount atomic.Uint64
	// SkippedCount indicates the number of commands whose body did not run.
	SkippedCount atomic.Uint64
	// AbortCount indicates the number of abort commands processed.
	AbortCount atomic.Uint64
	// PanicCount indicates the number of command bodies that panicked.
	PanicCount atomic.Uint64

	// SessionOpenCount indicates the number of successful session opens.
	SessionOpenCount atomic.Uint64
	// SessionOpenErrCount indicates the number of failed session opens.
	SessionOpenErrCount atomic.Uint64
	// BusClearCount indicates the number of device clears sent by the dispatcher.
	BusClearCount atomic.Uint64

	// InflightGauge is 1 while a command is being processed.
	InflightGauge atomic.Int32
}

func (m *DispatcherMetrics) incSubmitCount() {
	m.SubmitCount.Add(1)
}

func (m *DispatcherMetrics) incCommandCount() {
	m.CommandCount.Add(1)
}

func (m *DispatcherMetrics) incCommandErrCount() {
	m.CommandErrCount.Add(1)
}

func (m *DispatcherMetrics) incSkippedCount() {
	m.SkippedCount.Add(1)
}

func (m *DispatcherMetrics) incAbortCount() {
	m.AbortCount.Add(1)
}

func (m *DispatcherMetrics) incPanicCount() {
	m.PanicCount.Add(1)
}

func (m *DispatcherMetrics) incSessionOpenCount() {
	m.SessionOpenCount.Add(1)
}

func (m *DispatcherMetrics) incSessionOpenErrCount() {
	m.SessionOpenErrCount.Add(1)
}

func (m *DispatcherMetrics) incBusClearCount() {
	m.BusClearCount.Add(1)
}
