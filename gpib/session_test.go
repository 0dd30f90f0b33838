package gpib_test

import (
	"errors"
	"testing"
	"time"

	"github.com/arloliu/go-gpib/gpib"
	"github.com/arloliu/go-gpib/gpib/gpibtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSession_ByName(t *testing.T) {
	bus, s := openTestSession(t)

	assert.True(t, s.Valid())
	assert.Equal(t, gpib.FirstDeviceHandle, s.Handle())
	assert.Equal(t, 1, bus.Calls("Find"))
	assert.Equal(t, 1, bus.Calls("SetEOT"))
	assert.Equal(t, 1, bus.Calls("Listener"))
	assert.Equal(t, 1, bus.Calls("Local"), "device is returned to local control after contact")
	assert.False(t, s.LastLocal().IsZero())
	assert.Equal(t, uint64(1), s.Metrics().OpenCount.Load())
}

func TestOpenSession_ByAddress(t *testing.T) {
	bus := newTestBus()
	s, err := gpib.OpenSession(bus, newTestConfig(t, gpib.WithExplicitAddress(0, testPAD), gpib.WithOpenTimeout(gpib.T10s)))
	require.NoError(t, err)

	assert.Equal(t, 1, bus.Calls("Dev"))
	assert.Equal(t, 0, bus.Calls("Find"))
	assert.Equal(t, gpib.T10s, bus.TimeoutOf(s.Handle()))
}

func TestOpenSession_ConfigError(t *testing.T) {
	bus := newTestBus()

	_, err := gpib.OpenSession(bus, nil)
	assert.ErrorIs(t, err, gpib.ErrConfig)

	_, err = gpib.OpenSession(nil, newTestConfig(t))
	assert.ErrorIs(t, err, gpib.ErrConfig)
	assert.Equal(t, 0, bus.TotalCalls())
}

func TestOpenSession_NotFound(t *testing.T) {
	bus := newTestBus()
	_, err := gpib.OpenSession(bus, newTestConfig(t, gpib.WithDeviceName("unknown")))
	assert.ErrorIs(t, err, gpib.ErrNotFound)

	bus.FailFind(errors.New("no such board"))
	_, err = gpib.OpenSession(bus, newTestConfig(t, gpib.WithExplicitAddress(0, testPAD)))
	assert.ErrorIs(t, err, gpib.ErrNotFound)
	assert.Equal(t, 0, bus.OpenHandles())
}

func TestOpenSession_Unresponsive(t *testing.T) {
	bus := newTestBus()
	bus.SetResponding(testPAD, false)

	s := gpib.NewSession(bus, newTestConfig(t))
	err := s.Open()
	assert.ErrorIs(t, err, gpib.ErrUnresponsive)
	assert.False(t, s.Valid())
	assert.Equal(t, 0, bus.OpenHandles(), "descriptor released so the next open starts fresh")
	assert.Equal(t, uint64(1), s.Metrics().PingFailCount.Load())

	bus.SetResponding(testPAD, true)
	require.NoError(t, s.Open())
	assert.True(t, s.Valid())
}

func TestSession_ReopenReleasesOldHandle(t *testing.T) {
	bus, s := openTestSession(t)
	first := s.Handle()

	require.NoError(t, s.Open())
	assert.NotEqual(t, first, s.Handle())
	assert.Equal(t, 1, bus.OpenHandles())
}

func TestSession_PingRestoresBoardTimeout(t *testing.T) {
	bus, s := openTestSession(t)
	board := gpib.BoardHandle(0)
	before := bus.TimeoutOf(board)

	assert.True(t, s.Ping())
	assert.Equal(t, before, bus.TimeoutOf(board))

	bus.SetResponding(testPAD, false)
	assert.False(t, s.Ping())
	assert.Equal(t, before, bus.TimeoutOf(board))
	assert.Equal(t, gpibtest.DefaultBoardTimeout, bus.TimeoutOf(board))

	// ping never changes the session status
	assert.False(t, s.Failed())
}

func TestSession_CloseIdempotent(t *testing.T) {
	bus, s := openTestSession(t)

	require.NoError(t, s.Close())
	assert.False(t, s.Valid())
	assert.Equal(t, gpib.InvalidHandle, s.Handle())

	require.NoError(t, s.Close())
	assert.Equal(t, 1, bus.Calls("Offline"))
	assert.False(t, s.Ping())
}

func TestSession_GoToLocal(t *testing.T) {
	_, s := openTestSession(t)

	before := time.Now()
	ts, st := s.GoToLocal()
	assert.True(t, st.OK())
	assert.False(t, ts.Before(before))
	assert.Equal(t, ts, s.LastLocal())

	require.NoError(t, s.Close())
	ts, st = s.GoToLocal()
	assert.True(t, ts.IsZero())
	assert.True(t, st.Errored)
}

func TestSession_BorrowTimeout(t *testing.T) {
	bus, s := openTestSession(t)
	before := bus.TimeoutOf(s.Handle())

	restore := s.BorrowTimeout(gpib.T30s)
	assert.Equal(t, gpib.T30s, bus.TimeoutOf(s.Handle()))

	inner := s.BorrowTimeout(gpib.T1s)
	assert.Equal(t, gpib.T1s, bus.TimeoutOf(s.Handle()))
	inner()
	assert.Equal(t, gpib.T30s, bus.TimeoutOf(s.Handle()))

	restore()
	assert.Equal(t, before, bus.TimeoutOf(s.Handle()))

	got, err := s.AskTimeout()
	require.NoError(t, err)
	assert.Equal(t, before, got)
}

func TestSession_SyncWriteRead(t *testing.T) {
	bus, s := openTestSession(t)
	bus.QueueRead([]byte("1.0,2.0\n"))

	n, err := s.Write([]byte("OUTPMARK;"))
	require.NoError(t, err)
	assert.Equal(t, 9, n)

	buf := make([]byte, 64)
	n, err = s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "1.0,2.0\n", string(buf[:n]))

	// nothing queued: read times out and the session refuses further access
	_, err = s.Read(buf)
	assert.ErrorIs(t, err, gpib.ErrDriver)
	assert.True(t, s.Failed())

	_, err = s.Write([]byte("X;"))
	assert.ErrorIs(t, err, gpib.ErrPreviousError)

	s.ResetStatus()
	_, err = s.Write([]byte("X;"))
	require.NoError(t, err)
	assert.Equal(t, []string{"OUTPMARK;", "X;"}, bus.Writes())
}

func TestSession_Clear(t *testing.T) {
	bus, s := openTestSession(t)

	st := s.Clear()
	assert.True(t, st.OK())
	assert.Equal(t, 1, bus.Calls("Clear"))
	assert.Equal(t, uint64(1), s.Metrics().ClearCount.Load())
}

func TestSession_ClosedSessionRefusesIO(t *testing.T) {
	_, s := openTestSession(t)
	require.NoError(t, s.Close())

	_, err := s.Write([]byte("X;"))
	assert.ErrorIs(t, err, gpib.ErrSessionClosed)

	_, err = s.AskTimeout()
	assert.ErrorIs(t, err, gpib.ErrSessionClosed)

	assert.Equal(t, gpib.Error, s.AsyncWrite([]byte("X;"), time.Second, nil))
}
