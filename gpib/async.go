package gpib

import (
	"fmt"
	"time"
)

const (
	// PollSlice is the bus timeout used for each status wait of a transfer.
	PollSlice = T30ms

	// LongWaitThreshold is the elapsed time after which a transfer posts a
	// "still waiting" notice at each whole second.
	LongWaitThreshold = 5 * time.Second

	// DriverSettleDelay is slept between starting a transfer and switching the bus
	// timeout to PollSlice. The linux-gpib driver does not pick up the TNONE timeout
	// of an asynchronous operation immediately; changing the timeout too early makes
	// the transfer itself run with the poll slice timeout.
	//
	// TODO: remove once the driver applies the timeout at submission time.
	DriverSettleDelay = 20 * time.Millisecond
)

var (
	pollSliceSeconds = PollSlice.Duration().Seconds()
	longWaitSeconds  = LongWaitThreshold.Seconds()
)

type direction int

const (
	dirWrite direction = iota
	dirRead
)

func (d direction) String() string {
	if d == dirWrite {
		return "write"
	}

	return "read"
}

// pendingOperation is the state of one in-flight transfer.
type pendingOperation struct {
	dir       direction
	buf       []byte
	requested int
	deadline  float64 // seconds
	elapsed   float64 // seconds, advanced by poll slices
	polls     int
}

// expired reports whether the time budget has been spent.
func (op *pendingOperation) expired() bool {
	return op.elapsed >= op.deadline
}

// advance accounts one expired poll slice. It reports the whole number of seconds
// waited when a "still waiting" notice is due.
func (op *pendingOperation) advance() (int, bool) {
	prev := op.elapsed
	op.polls++
	op.elapsed = float64(op.polls) * pollSliceSeconds

	if op.elapsed > longWaitSeconds && int(op.elapsed) > int(prev) {
		return int(op.elapsed), true
	}

	return 0, false
}

// AsyncWrite writes data to the device and polls until the write completes, the
// driver reports an error, abort reports a pending abort or timeout elapses.
//
// The outcome is PreviousError, without any bus access, when the session status
// already holds a failure. The device timeout is restored before returning.
func (s *Session) AsyncWrite(data []byte, timeout time.Duration, abort AbortChecker) Outcome {
	_, outcome := s.transfer(dirWrite, data, timeout, abort)
	return outcome
}

// AsyncRead reads up to len(buf) bytes from the device, polling like AsyncWrite.
// It returns the number of bytes received.
func (s *Session) AsyncRead(buf []byte, timeout time.Duration, abort AbortChecker) (int, Outcome) {
	return s.transfer(dirRead, buf, timeout, abort)
}

func (s *Session) transfer(dir direction, buf []byte, timeout time.Duration, abort AbortChecker) (int, Outcome) {
	if s.status.Failed() {
		return 0, PreviousError
	}
	if !s.handle.Valid() {
		s.status = Failure(EDVR)
		return 0, Error
	}
	if abort == nil {
		abort = NeverAbort
	}

	h := s.handle
	saved, st := s.bus.AskTimeout(h)
	if st.Errored {
		s.status = st
		s.logger.Error(fmt.Sprintf("gpib: async %s cannot read timeout", dir), "status", st)
		s.metrics.countOutcome(Error)

		return 0, Error
	}
	defer s.bus.SetTimeout(h, saved)

	// the transfer itself runs without timeout, the poll loop bounds it
	s.bus.SetTimeout(h, TNONE)

	if dir == dirWrite {
		s.logger.Debug("gpib: async write", "bytes", len(buf))
		st = s.bus.StartWrite(h, buf)
	} else {
		st = s.bus.StartRead(h, buf)
	}
	s.status = st
	if st.Errored {
		s.logger.Error(fmt.Sprintf("gpib: async %s start failed", dir), "status", st)
		s.metrics.countOutcome(Error)

		return 0, Error
	}

	time.Sleep(DriverSettleDelay)
	s.bus.SetTimeout(h, PollSlice)

	op := &pendingOperation{
		dir:       dir,
		buf:       buf,
		requested: len(buf),
		deadline:  timeout.Seconds(),
	}
	outcome := s.poll(op, abort)

	if outcome != OK {
		s.bus.Stop(h)
	}

	final := s.bus.AsyncResult(h)
	s.status = final
	s.metrics.PollCount.Add(uint64(op.polls))
	s.metrics.countTransfer(dir, final.Count)

	if dir == dirWrite {
		s.logger.Debug("gpib: async write done", "count", final.Count, "requested", op.requested)
	} else {
		s.logger.Debug("gpib: async read done", "count", final.Count, "max", op.requested)
	}

	if outcome == Continue {
		outcome = Timeout
	}

	if !final.Completed {
		switch {
		case op.expired():
			s.logger.Error(fmt.Sprintf("gpib: async %s timeout", dir),
				"timeout", timeout, "elapsed", op.elapsed, "status", final)
		case outcome == Abort:
			s.logger.Warn(fmt.Sprintf("gpib: async %s aborted", dir),
				"elapsed", op.elapsed, "status", final)
		default:
			s.logger.Error(fmt.Sprintf("gpib: async %s failed", dir),
				"status", final, "error", final.Err)
		}
	}
	s.metrics.countOutcome(outcome)

	return final.Count, outcome
}

// poll waits slice by slice until a terminal outcome is recorded or the time budget
// is spent. The transfer is polled at least once, even with a zero budget. It
// returns Continue when the budget ran out.
func (s *Session) poll(op *pendingOperation, abort AbortChecker) Outcome {
	outcome := Continue
	for {
		st := s.bus.Wait(s.handle, WaitTimeout|WaitComplete|WaitEnd)
		s.status = st

		switch {
		case st.TimedOut:
			if secs, due := op.advance(); due {
				s.notifier.PostInfo(fmt.Sprintf("Waiting for device: %ds", secs))
			}
		case st.Errored:
			outcome = Error
		case st.Completed || st.EndOfData:
			outcome = OK
		default:
			// nothing reported: count the slice so the loop stays bounded
			op.advance()
		}

		// a pending abort wins over anything the driver reported in this slice
		if abort.AbortPending() {
			outcome = Abort
		}

		if outcome != Continue || op.expired() {
			break
		}
	}

	return outcome
}
