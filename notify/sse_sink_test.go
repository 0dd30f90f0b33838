package notify

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/arloliu/go-gpib/gpib"
	"github.com/arloliu/go-gpib/logger"
	"github.com/arloliu/go-gpib/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSESink_Options(t *testing.T) {
	_, err := NewSSESink(WithSSEChannel("events"))
	assert.Error(t, err)

	_, err = NewSSESink(WithSSEBacklog(0))
	assert.Error(t, err)

	_, err = NewSSESink(WithSSELogger(nil))
	assert.Error(t, err)

	s, err := NewSSESink(WithSSEChannel("/events/hp8753"), WithSSELogger(logger.NewPermissiveMockLogger()))
	require.NoError(t, err)
	defer s.Shutdown()
	assert.Equal(t, "/events/hp8753", s.Channel())
}

func TestSSESink_PublishesJSONEvents(t *testing.T) {
	sink, err := NewSSESink(WithSSELogger(logger.NewPermissiveMockLogger()))
	require.NoError(t, err)

	srv := httptest.NewServer(sink)
	t.Cleanup(srv.Close)

	respCh := make(chan *http.Response, 1)
	go func() {
		resp, err := http.Get(srv.URL + DefaultSSEChannel)
		if assert.NoError(t, err) {
			respCh <- resp
		}
	}()

	require.Eventually(t, func() bool { return sink.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	sink.PostCommandComplete(worker.KindRetrieveTrace, worker.Result{Outcome: gpib.OK})

	var resp *http.Response
	select {
	case resp = <-respCh:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "no response from event stream")
	}
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var ev Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &ev))
		assert.Equal(t, EventComplete, ev.Type)
		assert.Equal(t, "retrieve-trace", ev.Kind)
		assert.Equal(t, "OK", ev.Outcome)

		break
	}

	// the event server stops only after its clients have left
	require.NoError(t, resp.Body.Close())
	require.Eventually(t, func() bool { return sink.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	requireReturns(t, sink.Shutdown)
}

func TestSSESink_ShutdownWithConnectedClient(t *testing.T) {
	sink, err := NewSSESink(WithSSELogger(logger.NewPermissiveMockLogger()))
	require.NoError(t, err)

	srv := httptest.NewServer(sink)
	t.Cleanup(srv.Close)

	respCh := make(chan *http.Response, 1)
	go func() {
		resp, err := http.Get(srv.URL + DefaultSSEChannel)
		if err == nil {
			respCh <- resp
		}
	}()
	require.Eventually(t, func() bool { return sink.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	start := time.Now()
	requireReturns(t, sink.Shutdown)
	assert.GreaterOrEqual(t, time.Since(start), ShutdownGrace)

	// the client can still leave through the running event server
	select {
	case resp := <-respCh:
		require.NoError(t, resp.Body.Close())
	case <-time.After(2 * time.Second):
		require.FailNow(t, "no response from event stream")
	}
	require.Eventually(t, func() bool { return sink.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

// requireReturns fails the test when fn blocks for longer than a few seconds.
func requireReturns(t *testing.T, fn func()) {
	t.Helper()

	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		require.FailNow(t, "call did not return")
	}
}
