package notify

import (
	"errors"
	"testing"

	"github.com/arloliu/go-gpib/gpib"
	"github.com/arloliu/go-gpib/logger"
	"github.com/arloliu/go-gpib/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestLogSink(t *testing.T) {
	l := logger.NewMockLogger()
	l.On("Info", "Get marker data", mock.Anything).Return().Once()
	l.On("Error", "Cal kit transfer error", mock.Anything).Return().Once()
	l.On("Info", "command complete", mock.Anything).Return().Twice()

	s := NewLogSink(l)
	s.PostInfo("Get marker data")
	s.PostError("Cal kit transfer error")
	s.PostCommandComplete(worker.KindSendCalKit, worker.Result{Outcome: gpib.OK})
	s.PostCommandComplete(worker.KindSendCalKit, worker.Result{Outcome: gpib.Timeout, Err: gpib.ErrTimeout})

	l.AssertExpectations(t)
}

func TestChanSink(t *testing.T) {
	s := NewChanSink(2)
	s.PostInfo("Measure and retrieve S2P")
	s.PostCommandComplete(worker.KindMeasureS2P, worker.Result{
		Outcome: gpib.Abort,
		Status:  gpib.Failure(gpib.EABO),
		Err:     gpib.ErrAborted,
	})
	s.PostError("dropped")

	ev := <-s.Events()
	assert.Equal(t, EventInfo, ev.Type)
	assert.Equal(t, "Measure and retrieve S2P", ev.Text)
	assert.False(t, ev.Time.IsZero())

	ev = <-s.Events()
	assert.Equal(t, EventComplete, ev.Type)
	assert.Equal(t, "measure-s2p", ev.Kind)
	assert.Equal(t, "Abort", ev.Outcome)
	assert.Equal(t, gpib.ErrAborted.Error(), ev.Error)
	assert.NotEmpty(t, ev.Status)

	assert.Equal(t, uint64(1), s.Dropped())
}

func TestFanout(t *testing.T) {
	a, b := NewChanSink(4), NewChanSink(4)
	f := NewFanout(a, nil, b)
	require.Len(t, f, 2)

	f.PostInfo("one")
	f.PostError("two")
	f.PostCommandComplete(worker.KindUtility, worker.Result{Err: errors.New("three")})

	for _, s := range []*ChanSink{a, b} {
		require.Len(t, s.Events(), 3)
		assert.Equal(t, EventInfo, (<-s.Events()).Type)
		assert.Equal(t, EventError, (<-s.Events()).Type)
		ev := <-s.Events()
		assert.Equal(t, EventComplete, ev.Type)
		assert.Equal(t, "three", ev.Error)
	}
}
