package worker

import (
	"fmt"
	"strings"
	"time"

	"github.com/arloliu/go-gpib/gpib"
)

// Exchange gives a command body access to the device for the duration of one
// command. Every transfer is bounded by its own timeout, stops when the command is
// aborted and is folded into the aggregated outcome of the command.
//
// An Exchange is only valid inside the body it was passed to.
type Exchange struct {
	session *gpib.Session
	abort   gpib.AbortChecker
	sink    Sink
	outcome gpib.Outcome
}

func newExchange(s *gpib.Session, abort gpib.AbortChecker, sink Sink) *Exchange {
	return &Exchange{
		session: s,
		abort:   abort,
		sink:    sink,
		outcome: gpib.OK,
	}
}

// Session returns the bus session of the command.
func (ex *Exchange) Session() *gpib.Session {
	return ex.session
}

// Aborted reports whether the command has been asked to stop.
func (ex *Exchange) Aborted() bool {
	return ex.abort.AbortPending()
}

// Outcome returns the most severe outcome of the transfers so far.
func (ex *Exchange) Outcome() gpib.Outcome {
	return ex.outcome
}

// Failed reports whether the session holds a failed status. Further transfers
// return PreviousError until the next command.
func (ex *Exchange) Failed() bool {
	return ex.session.Failed()
}

// Info posts a progress message.
func (ex *Exchange) Info(text string) {
	ex.sink.PostInfo(text)
}

// Infof posts a formatted progress message.
func (ex *Exchange) Infof(format string, args ...any) {
	ex.sink.PostInfo(fmt.Sprintf(format, args...))
}

// Error posts an error message.
func (ex *Exchange) Error(text string) {
	ex.sink.PostError(text)
}

func (ex *Exchange) record(o gpib.Outcome) gpib.Outcome {
	ex.outcome = gpib.Worst(ex.outcome, o)
	return o
}

// WriteBinary writes data to the device.
func (ex *Exchange) WriteBinary(data []byte, timeout time.Duration) gpib.Outcome {
	return ex.record(ex.session.AsyncWrite(data, timeout, ex.abort))
}

// Write writes a command string to the device.
func (ex *Exchange) Write(cmd string, timeout time.Duration) gpib.Outcome {
	return ex.WriteBinary([]byte(cmd), timeout)
}

// WriteOneOfN writes a command built from format and one integer, e.g.
// WriteOneOfN("CHAN%d;", 2, time.Second).
func (ex *Exchange) WriteOneOfN(format string, n int, timeout time.Duration) gpib.Outcome {
	return ex.Write(fmt.Sprintf(format, n), timeout)
}

// Read reads up to len(buf) bytes from the device.
func (ex *Exchange) Read(buf []byte, timeout time.Duration) (int, gpib.Outcome) {
	n, o := ex.session.AsyncRead(buf, timeout, ex.abort)
	return n, ex.record(o)
}

// QueryBinary writes cmd and reads a reply of at most size bytes.
func (ex *Exchange) QueryBinary(cmd string, size int, timeout time.Duration) ([]byte, gpib.Outcome) {
	if o := ex.Write(cmd, timeout); !o.IsOK() {
		return nil, o
	}

	buf := make([]byte, size)
	n, o := ex.Read(buf, timeout)

	return buf[:n], o
}

// Query writes cmd and returns the reply text without its line terminator.
func (ex *Exchange) Query(cmd string, size int, timeout time.Duration) (string, gpib.Outcome) {
	reply, o := ex.QueryBinary(cmd, size, timeout)
	return strings.TrimRight(string(reply), "\r\n"), o
}

// Switch queries an on/off state, e.g. Switch("DUAC", time.Second) sends "DUAC?;"
// and reports whether the device answered "1".
func (ex *Exchange) Switch(mnemonic string, timeout time.Duration) (bool, gpib.Outcome) {
	reply, o := ex.Query(mnemonic+"?;", 16, timeout)
	if !o.IsOK() {
		return false, o
	}

	return strings.TrimSpace(reply) == "1", o
}
