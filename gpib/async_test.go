package gpib_test

import (
	"context"
	"testing"
	"time"

	"github.com/arloliu/go-gpib/gpib"
	"github.com/arloliu/go-gpib/gpib/gpibtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsyncWrite_CompletesOnFirstPoll(t *testing.T) {
	bus, s := openTestSession(t)

	outcome := s.AsyncWrite([]byte("OPC?;PRES;"), time.Second, gpib.NeverAbort)
	assert.Equal(t, gpib.OK, outcome)
	assert.Equal(t, 1, bus.Calls("Wait"))
	assert.Equal(t, 0, bus.Calls("Stop"))
	assert.Equal(t, []string{"OPC?;PRES;"}, bus.Writes())
	assert.False(t, s.Failed())
	assert.Equal(t, uint64(10), s.Metrics().BytesWritten.Load())
}

func TestAsyncRead_ReturnsReceivedBytes(t *testing.T) {
	bus, s := openTestSession(t)
	bus.QueueRead([]byte("+1.00000E+00\n"))
	bus.ScriptWaits(gpibtest.SliceTimeout, gpibtest.SliceTimeout, gpibtest.EndOfData)

	buf := make([]byte, 100)
	n, outcome := s.AsyncRead(buf, time.Second, nil)
	assert.Equal(t, gpib.OK, outcome)
	assert.Equal(t, "+1.00000E+00\n", string(buf[:n]))
	assert.Equal(t, 3, bus.Calls("Wait"))
	assert.Equal(t, 0, bus.Calls("Stop"))
	assert.Equal(t, uint64(2), s.Metrics().PollCount.Load())
}

func TestAsync_PreviousErrorTouchesNothing(t *testing.T) {
	bus, s := openTestSession(t)
	bus.ScriptWaits(gpibtest.DriverError)

	require.Equal(t, gpib.Error, s.AsyncWrite([]byte("BAD;"), time.Second, nil))
	require.True(t, s.Failed())

	calls := bus.TotalCalls()
	assert.Equal(t, gpib.PreviousError, s.AsyncWrite([]byte("X;"), time.Second, nil))
	n, outcome := s.AsyncRead(make([]byte, 8), time.Second, nil)
	assert.Equal(t, gpib.PreviousError, outcome)
	assert.Zero(t, n)
	assert.Equal(t, calls, bus.TotalCalls())

	s.ResetStatus()
	assert.Equal(t, gpib.OK, s.AsyncWrite([]byte("X;"), time.Second, nil))
}

func TestAsync_DriverErrorStopsTransfer(t *testing.T) {
	bus, s := openTestSession(t)
	bus.ScriptWaits(gpibtest.SliceTimeout, gpibtest.DriverError)

	assert.Equal(t, gpib.Error, s.AsyncWrite([]byte("X;"), time.Second, nil))
	assert.Equal(t, 2, bus.Calls("Wait"))
	assert.Equal(t, 1, bus.Calls("Stop"))
	assert.Equal(t, uint64(1), s.Metrics().ErrorCount.Load())
}

func TestAsync_TimeoutAfterBudget(t *testing.T) {
	bus, s := openTestSession(t)
	// 5.2s worth of expired slices against a 5.0s budget
	slices := int(5.2 / gpib.PollSlice.Duration().Seconds())
	require.Equal(t, 173, slices)
	bus.ScriptSliceTimeouts(slices)

	n, outcome := s.AsyncRead(make([]byte, 16), 5*time.Second, nil)
	assert.Equal(t, gpib.Timeout, outcome)
	assert.Zero(t, n)
	assert.Equal(t, 1, bus.Calls("Stop"))

	// terminated within the budget plus one slice
	waits := bus.Calls("Wait")
	assert.LessOrEqual(t, float64(waits)*0.030, 5.0+0.030)
	assert.GreaterOrEqual(t, float64(waits)*0.030, 5.0)
	assert.True(t, s.Failed(), "stopped transfer leaves an aborted status")
	assert.Equal(t, uint64(1), s.Metrics().TimeoutCount.Load())
}

func TestAsync_TerminatesWithinBudgetForAnyTimeout(t *testing.T) {
	for _, budget := range []time.Duration{0, 10 * time.Millisecond, 30 * time.Millisecond, 100 * time.Millisecond, time.Second} {
		bus, s := openTestSession(t)
		bus.SetDefaultWait(gpibtest.SliceTimeout)

		assert.Equal(t, gpib.Timeout, s.AsyncWrite([]byte("X;"), budget, nil), "budget %v", budget)
		waits := bus.Calls("Wait")
		assert.LessOrEqual(t, float64(waits)*0.030, budget.Seconds()+0.030+1e-9, "budget %v", budget)
	}
}

func TestAsync_ZeroBudgetPollsOnce(t *testing.T) {
	bus, s := openTestSession(t)
	bus.ScriptWaits(gpibtest.Done)

	assert.Equal(t, gpib.OK, s.AsyncWrite([]byte("X;"), 0, nil))
	assert.Equal(t, 1, bus.Calls("Wait"))
	assert.Zero(t, bus.Calls("Stop"))
}

func TestAsync_AbortBeforeCompletion(t *testing.T) {
	bus, s := openTestSession(t)
	// hardware would complete on the fourth poll
	bus.ScriptSliceTimeouts(3)

	abort := gpib.AbortFunc(func() bool { return bus.Calls("Wait") >= 2 })
	outcome := s.AsyncWrite([]byte("SING;"), 10*time.Second, abort)

	assert.Equal(t, gpib.Abort, outcome)
	assert.Equal(t, 2, bus.Calls("Wait"))
	assert.Equal(t, 1, bus.Calls("Stop"))
	assert.Equal(t, uint64(1), s.Metrics().AbortCount.Load())
}

func TestAsync_AbortWinsOverSameSliceCompletion(t *testing.T) {
	bus, s := openTestSession(t)

	outcome := s.AsyncWrite([]byte("X;"), time.Second, gpib.AbortFunc(func() bool { return true }))
	assert.Equal(t, gpib.Abort, outcome)
	assert.Equal(t, 1, bus.Calls("Stop"))
}

func TestAsync_ContextAbort(t *testing.T) {
	bus, s := openTestSession(t)
	bus.SetDefaultWait(gpibtest.SliceTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	bus.OnWait(func(n int) {
		if n == 5 {
			cancel()
		}
	})

	abort := gpib.AnyAbort(nil, gpib.NeverAbort, gpib.ContextAbort(ctx))
	assert.Equal(t, gpib.Abort, s.AsyncWrite([]byte("X;"), time.Minute, abort))
	assert.Equal(t, 5, bus.Calls("Wait"))
}

func TestAsync_StartFailure(t *testing.T) {
	bus, s := openTestSession(t)
	before := bus.TimeoutOf(s.Handle())
	bus.FailStarts(1)

	outcome := s.AsyncWrite([]byte("X;"), time.Second, nil)
	assert.Equal(t, gpib.Error, outcome)
	assert.Equal(t, 0, bus.Calls("Wait"))
	assert.Equal(t, 0, bus.Calls("Stop"))
	assert.Equal(t, before, bus.TimeoutOf(s.Handle()))
	assert.True(t, s.Failed())
}

func TestAsync_TimeoutRestoredOnEveryPath(t *testing.T) {
	scenarios := map[string]func(bus *gpibtest.Bus) gpib.AbortChecker{
		"ok": func(bus *gpibtest.Bus) gpib.AbortChecker {
			return nil
		},
		"error": func(bus *gpibtest.Bus) gpib.AbortChecker {
			bus.ScriptWaits(gpibtest.DriverError)
			return nil
		},
		"timeout": func(bus *gpibtest.Bus) gpib.AbortChecker {
			bus.SetDefaultWait(gpibtest.SliceTimeout)
			return nil
		},
		"abort": func(bus *gpibtest.Bus) gpib.AbortChecker {
			return gpib.AbortFunc(func() bool { return true })
		},
		"start failure": func(bus *gpibtest.Bus) gpib.AbortChecker {
			bus.FailStarts(2)
			return nil
		},
	}

	for name, setup := range scenarios {
		t.Run(name, func(t *testing.T) {
			bus, s := openTestSession(t)
			restore := s.BorrowTimeout(gpib.T10s)
			defer restore()

			abort := setup(bus)
			s.AsyncWrite([]byte("X;"), 300*time.Millisecond, abort)
			assert.Equal(t, gpib.T10s, bus.TimeoutOf(s.Handle()), "after write")

			s.ResetStatus()
			s.AsyncRead(make([]byte, 4), 300*time.Millisecond, abort)
			assert.Equal(t, gpib.T10s, bus.TimeoutOf(s.Handle()), "after read")
		})
	}
}

func TestAsync_LongWaitNotices(t *testing.T) {
	bus, s := openTestSession(t)
	n := &recordingNotifier{}
	s.SetNotifier(n)

	bus.ScriptSliceTimeouts(250)
	assert.Equal(t, gpib.OK, s.AsyncWrite([]byte("X;"), 10*time.Second, nil))
	assert.Equal(t, []string{
		"Waiting for device: 5s",
		"Waiting for device: 6s",
		"Waiting for device: 7s",
	}, n.Infos())

	s.SetNotifier(nil)
	bus.ScriptSliceTimeouts(200)
	assert.Equal(t, gpib.OK, s.AsyncWrite([]byte("X;"), 10*time.Second, nil))
	assert.Len(t, n.Infos(), 3)
}

func TestAsync_TimeoutSequenceOnTheBus(t *testing.T) {
	bus, s := openTestSession(t)
	restore := s.BorrowTimeout(gpib.T30s)
	defer restore()

	var seen []gpib.TimeoutSetting
	bus.OnWait(func(int) { seen = append(seen, bus.TimeoutOf(s.Handle())) })
	bus.ScriptSliceTimeouts(1)

	require.Equal(t, gpib.OK, s.AsyncWrite([]byte("X;"), time.Second, nil))
	assert.Equal(t, []gpib.TimeoutSetting{gpib.PollSlice, gpib.PollSlice}, seen)
	assert.Equal(t, gpib.T30s, bus.TimeoutOf(s.Handle()))
}
